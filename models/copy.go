/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package models

// CopyMap deep copies a decoded JSON or YAML object.
func CopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = CopyValue(v)
	}
	return out
}

// CopyValue deep copies nested maps and slices; other values are returned as is.
func CopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return CopyMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = CopyValue(item)
		}
		return out
	}
	return v
}
