/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package template

import (
	"fmt"
	"strconv"
	"strings"
)

const fieldsKey = "fields"

// target is the resolved location of a dotted path inside a profile.
type target struct {
	parent map[string]interface{}
	key    string
	// set when the path addresses an action of a named field entry,
	// e.g. dicom.fields.PatientID.replace-with
	fields []interface{}
	name   string
	action string
}

func resolve(profile map[string]interface{}, path string) (*target, bool) {
	parts := strings.Split(path, ".")
	current := profile
	for i, part := range parts {
		if i == len(parts)-1 {
			return &target{parent: current, key: part}, true
		}
		if part == fieldsKey {
			rest := parts[i+1:]
			if len(rest) != 2 {
				return nil, false
			}
			fields, ok := current[fieldsKey].([]interface{})
			if !ok {
				return nil, false
			}
			return &target{fields: fields, name: rest[0], action: rest[1]}, true
		}
		next, ok := current[part].(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// exists reports whether the path names a value already in the profile.
func (t *target) exists() bool {
	if t.fields != nil {
		return t.field() != nil
	}
	_, ok := t.parent[t.key]
	return ok
}

func (t *target) field() map[string]interface{} {
	for _, f := range t.fields {
		entry, ok := f.(map[string]interface{})
		if ok && entry["name"] == t.name {
			if _, has := entry[t.action]; has {
				return entry
			}
		}
	}
	return nil
}

// set converts raw to the type of the value it replaces and stores it.
func (t *target) set(raw string) error {
	if t.fields != nil {
		entry := t.field()
		if entry == nil {
			return fmt.Errorf("no field %s with action %s", t.name, t.action)
		}
		v, err := convertLike(entry[t.action], raw)
		if err != nil {
			return err
		}
		entry[t.action] = v
		return nil
	}
	v, err := convertLike(t.parent[t.key], raw)
	if err != nil {
		return err
	}
	t.parent[t.key] = v
	return nil
}

func convertLike(existing interface{}, raw string) (interface{}, error) {
	switch existing.(type) {
	case bool:
		return strconv.ParseBool(raw)
	case int:
		return strconv.Atoi(raw)
	case float64:
		return strconv.ParseFloat(raw, 64)
	}
	return raw, nil
}
