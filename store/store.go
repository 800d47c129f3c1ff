/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package store

import (
	"context"
	"errors"
	"io"

	"github.com/redhatinsights/deid-export-go/models"
)

var ErrNotFound = errors.New("not found")

// Client is the capability contract of the remote store. Every method returns
// resolved snapshots; nothing returned is refreshed behind the caller's back.
type Client interface {
	Get(ctx context.Context, id string) (*models.Container, error)
	GetProject(ctx context.Context, id string) (*models.Container, error)
	GetSession(ctx context.Context, id string) (*models.Container, error)
	// Lookup resolves a path of labels such as "group/project/subject".
	Lookup(ctx context.Context, path string) (*models.Container, error)

	// FindFirst returns the first child of parentID matching filter, or nil
	// when nothing matches.
	FindFirst(ctx context.Context, parentID string, childType models.ContainerType, filter string) (*models.Container, error)
	ListChildren(ctx context.Context, parentID string, childType models.ContainerType) ([]models.Container, error)
	AddChild(ctx context.Context, parentID string, childType models.ContainerType, fields map[string]interface{}) (string, error)
	// UpdateMetadata merges fields into the container; keys that are not
	// present in fields are left untouched.
	UpdateMetadata(ctx context.Context, id string, fields map[string]interface{}) error

	// GetFile returns the named file of a container, or nil when absent.
	GetFile(ctx context.Context, containerID, name string) (*models.File, error)
	DownloadFile(ctx context.Context, containerID, name string, w io.Writer) error
	UploadFile(ctx context.Context, containerID, name string, r io.Reader) error
	DeleteFile(ctx context.Context, containerID, name string) error
}

// ClientFactory builds an independent client from a credential. Export
// workers each build their own client.
type ClientFactory func(credential string) (Client, error)

// StaticFactory returns a factory that always hands out c. It is only
// suitable for clients that are safe for concurrent use.
func StaticFactory(c Client) ClientFactory {
	return func(string) (Client, error) {
		return c, nil
	}
}

// ApplyFields splits a create/update payload onto a container: label and
// code go to their own fields, info is merged and anything else lands in
// Fields.
func ApplyFields(c *models.Container, fields map[string]interface{}) {
	for k, v := range fields {
		switch k {
		case "label":
			c.Label, _ = v.(string)
		case "code":
			c.Code, _ = v.(string)
		case "info":
			info, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			if c.Info == nil {
				c.Info = map[string]interface{}{}
			}
			mergeMaps(c.Info, info)
		default:
			if c.Fields == nil {
				c.Fields = map[string]interface{}{}
			}
			c.Fields[k] = v
		}
	}
}

func mergeMaps(dst, src map[string]interface{}) {
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]interface{})
		dstMap, dstIsMap := dst[k].(map[string]interface{})
		if srcIsMap && dstIsMap {
			mergeMaps(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
}
