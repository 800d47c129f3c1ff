/*

Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0

*/
package exports

import (
	"reflect"

	"github.com/redhatinsights/deid-export-go/errors"
	"github.com/redhatinsights/deid-export-go/models"
)

const (
	infoKey     = "info"
	exportKey   = "export"
	originIDKey = "origin_id"
)

// OriginIDPath is the dotted path of the origin id hash on a destination
// container.
const OriginIDPath = infoKey + "." + exportKey + "." + originIDKey

// BuildMetadata computes the payload used to create or update the destination
// counterpart of origin. Only fields in both the fixed whitelist of t and the
// configured whitelist are copied. The origin id hash is always stamped at
// info.export.origin_id, overriding any copied value.
func BuildMetadata(origin *models.Container, t models.ContainerType, cfg *models.ContainerConfig) (map[string]interface{}, error) {
	if origin == nil || origin.ID == "" {
		return nil, errors.Newf(errors.MissingIdentifier, "build metadata", "origin %s has no id", t)
	}

	var whitelist models.Whitelist
	if cfg != nil {
		whitelist = cfg.Whitelist
	}

	info := map[string]interface{}{}
	if whitelist.Info.All {
		info = models.CopyMap(origin.Info)
		if info == nil {
			info = map[string]interface{}{}
		}
	} else {
		for _, key := range whitelist.Info.Fields {
			if v, ok := origin.Info[key]; ok {
				info[key] = models.CopyValue(v)
			}
		}
	}

	export, ok := info[exportKey].(map[string]interface{})
	if !ok {
		export = map[string]interface{}{}
	}
	export[originIDKey] = models.HashOriginID(origin.ID)
	info[exportKey] = export

	meta := map[string]interface{}{infoKey: info}
	for _, field := range whitelist.Metadata.Resolve(models.MetadataWhitelist[t]) {
		if !models.AllowedField(t, field) {
			continue
		}
		if _, set := meta[field]; set {
			continue
		}
		v, ok := origin.Fields[field]
		if !ok || isZero(v) {
			continue
		}
		meta[field] = models.CopyValue(v)
	}
	return meta, nil
}

func isZero(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.String:
		return rv.Len() == 0
	}
	return rv.IsZero()
}
