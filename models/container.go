/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package models

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

type ContainerType string

const (
	Project     ContainerType = "project"
	Subject     ContainerType = "subject"
	Session     ContainerType = "session"
	Acquisition ContainerType = "acquisition"
)

// ParseContainerType validates a container type read from the store or the
// command line.
func ParseContainerType(s string) (ContainerType, error) {
	switch t := ContainerType(s); t {
	case Project, Subject, Session, Acquisition:
		return t, nil
	}
	return "", fmt.Errorf("unknown container type '%s'", s)
}

// ChildType returns the type of the containers directly below t, or "" for
// acquisitions.
func (t ContainerType) ChildType() ContainerType {
	switch t {
	case Project:
		return Subject
	case Subject:
		return Session
	case Session:
		return Acquisition
	}
	return ""
}

// Parents holds the ids of a container's ancestors.
type Parents struct {
	Project string `json:"project,omitempty"`
	Subject string `json:"subject,omitempty"`
	Session string `json:"session,omitempty"`
}

// File is a file attached to a container.
type File struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Container is a resolved snapshot of a node in the store hierarchy. It is
// never refreshed in place; callers fetch a new snapshot through the store.
type Container struct {
	ID      string                 `json:"id"`
	Type    ContainerType          `json:"container_type"`
	Label   string                 `json:"label,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Parents Parents                `json:"parents"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	Info    map[string]interface{} `json:"info,omitempty"`
	Files   []File                 `json:"files,omitempty"`
}

// ParentID returns the id of the direct parent of the container.
func (c *Container) ParentID() string {
	switch c.Type {
	case Subject:
		return c.Parents.Project
	case Session:
		return c.Parents.Subject
	case Acquisition:
		return c.Parents.Session
	}
	return ""
}

// File returns the named file, or nil.
func (c *Container) File(name string) *File {
	for i := range c.Files {
		if c.Files[i].Name == name {
			return &c.Files[i]
		}
	}
	return nil
}

// OriginIDHash returns the value stamped at info.export.origin_id, if any.
func (c *Container) OriginIDHash() string {
	export, ok := c.Info["export"].(map[string]interface{})
	if !ok {
		return ""
	}
	hash, _ := export["origin_id"].(string)
	return hash
}

// HashOriginID is the one-way hash of an origin container id stored on its
// destination counterpart. It is a 40 character sha1 hex digest.
func HashOriginID(id string) string {
	sum := sha1.Sum([]byte(id))
	return hex.EncodeToString(sum[:])
}
