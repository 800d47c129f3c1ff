/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"

	"github.com/redhatinsights/deid-export-go/models"
)

const (
	containerTable = "containers"
	fileTable      = "files"

	pkIndex     = "id"
	parentIndex = "parent"
	ownerIndex  = "container"
)

type containerRecord struct {
	ID        string
	Parent    string
	Type      string
	Seq       uint64
	Container models.Container
}

type fileRecord struct {
	Key         string
	ContainerID string
	Seq         uint64
	File        models.File
	Data        []byte
}

func memorySchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			containerTable: {
				Name: containerTable,
				Indexes: map[string]*memdb.IndexSchema{
					pkIndex: {
						Name:    pkIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					parentIndex: {
						Name:         parentIndex,
						AllowMissing: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "Parent"},
								&memdb.StringFieldIndex{Field: "Type"},
							},
						},
					},
				},
			},
			fileTable: {
				Name: fileTable,
				Indexes: map[string]*memdb.IndexSchema{
					pkIndex: {
						Name:    pkIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
					ownerIndex: {
						Name:    ownerIndex,
						Indexer: &memdb.StringFieldIndex{Field: "ContainerID"},
					},
				},
			},
		},
	}
}

// MemoryStore is an in-process Client backed by go-memdb. It is safe for
// concurrent use and backs the test suites.
type MemoryStore struct {
	db  *memdb.MemDB
	seq atomic.Uint64
}

var _ Client = (*MemoryStore)(nil)

func NewMemoryStore() (*MemoryStore, error) {
	db, err := memdb.NewMemDB(memorySchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create memory store: %w", err)
	}
	return &MemoryStore{db: db}, nil
}

// AddProject creates a top-level project. The group is matched by the first
// segment of Lookup paths.
func (m *MemoryStore) AddProject(group, label string) (string, error) {
	c := models.Container{
		ID:     uuid.NewString(),
		Type:   models.Project,
		Label:  label,
		Fields: map[string]interface{}{"group": group},
	}
	return c.ID, m.insert(c, "")
}

// AddFile attaches a file with content to a container. An existing file of
// the same name is replaced.
func (m *MemoryStore) AddFile(containerID string, file models.File, data []byte) error {
	txn := m.db.Txn(true)
	defer txn.Abort()
	if _, err := m.getRecord(txn, containerID); err != nil {
		return err
	}
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.Size == 0 {
		file.Size = int64(len(data))
	}
	rec := &fileRecord{
		Key:         fileKey(containerID, file.Name),
		ContainerID: containerID,
		Seq:         m.seq.Add(1),
		File:        file,
		Data:        append([]byte(nil), data...),
	}
	if existing, err := txn.First(fileTable, pkIndex, rec.Key); err == nil && existing != nil {
		rec.Seq = existing.(*fileRecord).Seq
	}
	if err := txn.Insert(fileTable, rec); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// FileData returns the content of a stored file.
func (m *MemoryStore) FileData(containerID, name string) ([]byte, error) {
	txn := m.db.Txn(false)
	raw, err := txn.First(fileTable, pkIndex, fileKey(containerID, name))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("file '%s' on container %s: %w", name, containerID, ErrNotFound)
	}
	return append([]byte(nil), raw.(*fileRecord).Data...), nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Container, error) {
	txn := m.db.Txn(false)
	rec, err := m.getRecord(txn, id)
	if err != nil {
		return nil, err
	}
	return m.snapshot(txn, rec)
}

func (m *MemoryStore) GetProject(ctx context.Context, id string) (*models.Container, error) {
	return m.getTyped(ctx, id, models.Project)
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*models.Container, error) {
	return m.getTyped(ctx, id, models.Session)
}

func (m *MemoryStore) getTyped(ctx context.Context, id string, t models.ContainerType) (*models.Container, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Type != t {
		return nil, fmt.Errorf("container %s is a %s, not a %s: %w", id, c.Type, t, ErrNotFound)
	}
	return c, nil
}

func (m *MemoryStore) Lookup(ctx context.Context, path string) (*models.Container, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 {
		return nil, fmt.Errorf("path '%s' must name at least a group and a project", path)
	}
	txn := m.db.Txn(false)
	group, label := segments[0], segments[1]

	var current *containerRecord
	it, err := txn.Get(containerTable, pkIndex)
	if err != nil {
		return nil, err
	}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rec := obj.(*containerRecord)
		if rec.Type == string(models.Project) && rec.Container.Label == label && rec.Container.Fields["group"] == group {
			if current == nil || rec.Seq < current.Seq {
				current = rec
			}
		}
	}
	if current == nil {
		return nil, fmt.Errorf("path '%s': %w", path, ErrNotFound)
	}

	for _, segment := range segments[2:] {
		childType := models.ContainerType(current.Type).ChildType()
		children, err := m.children(txn, current.ID, childType)
		if err != nil {
			return nil, err
		}
		var next *containerRecord
		for _, child := range children {
			name := child.Container.Label
			if childType == models.Subject {
				name = child.Container.Code
			}
			if name == segment {
				next = child
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("path '%s': %w", path, ErrNotFound)
		}
		current = next
	}
	return m.snapshot(txn, current)
}

func (m *MemoryStore) FindFirst(ctx context.Context, parentID string, childType models.ContainerType, filter string) (*models.Container, error) {
	conditions, err := ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	txn := m.db.Txn(false)
	children, err := m.children(txn, parentID, childType)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if Matches(&child.Container, conditions) {
			return m.snapshot(txn, child)
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListChildren(ctx context.Context, parentID string, childType models.ContainerType) ([]models.Container, error) {
	txn := m.db.Txn(false)
	children, err := m.children(txn, parentID, childType)
	if err != nil {
		return nil, err
	}
	result := make([]models.Container, 0, len(children))
	for _, child := range children {
		c, err := m.snapshot(txn, child)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, nil
}

func (m *MemoryStore) AddChild(ctx context.Context, parentID string, childType models.ContainerType, fields map[string]interface{}) (string, error) {
	txn := m.db.Txn(false)
	parent, err := m.getRecord(txn, parentID)
	if err != nil {
		return "", err
	}
	if models.ContainerType(parent.Type).ChildType() != childType {
		return "", fmt.Errorf("a %s cannot be created under a %s", childType, parent.Type)
	}

	c := models.Container{
		ID:      uuid.NewString(),
		Type:    childType,
		Parents: parent.Container.Parents,
	}
	switch parent.Type {
	case string(models.Project):
		c.Parents.Project = parent.ID
	case string(models.Subject):
		c.Parents.Subject = parent.ID
	case string(models.Session):
		c.Parents.Session = parent.ID
	}
	ApplyFields(&c, models.CopyMap(fields))
	return c.ID, m.insert(c, parent.ID)
}

func (m *MemoryStore) UpdateMetadata(ctx context.Context, id string, fields map[string]interface{}) error {
	txn := m.db.Txn(true)
	defer txn.Abort()
	rec, err := m.getRecord(txn, id)
	if err != nil {
		return err
	}
	updated := *rec
	updated.Container = copyContainer(rec.Container)
	ApplyFields(&updated.Container, models.CopyMap(fields))
	if err := txn.Insert(containerTable, &updated); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (m *MemoryStore) GetFile(ctx context.Context, containerID, name string) (*models.File, error) {
	txn := m.db.Txn(false)
	if _, err := m.getRecord(txn, containerID); err != nil {
		return nil, err
	}
	raw, err := txn.First(fileTable, pkIndex, fileKey(containerID, name))
	if err != nil || raw == nil {
		return nil, err
	}
	file := raw.(*fileRecord).File
	return &file, nil
}

func (m *MemoryStore) DownloadFile(ctx context.Context, containerID, name string, w io.Writer) error {
	data, err := m.FileData(containerID, name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, bytes.NewReader(data))
	return err
}

func (m *MemoryStore) UploadFile(ctx context.Context, containerID, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return m.AddFile(containerID, models.File{Name: name}, data)
}

func (m *MemoryStore) DeleteFile(ctx context.Context, containerID, name string) error {
	txn := m.db.Txn(true)
	defer txn.Abort()
	n, err := txn.DeleteAll(fileTable, pkIndex, fileKey(containerID, name))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("file '%s' on container %s: %w", name, containerID, ErrNotFound)
	}
	txn.Commit()
	return nil
}

func (m *MemoryStore) insert(c models.Container, parentID string) error {
	txn := m.db.Txn(true)
	defer txn.Abort()
	rec := &containerRecord{
		ID:        c.ID,
		Parent:    parentID,
		Type:      string(c.Type),
		Seq:       m.seq.Add(1),
		Container: c,
	}
	if err := txn.Insert(containerTable, rec); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (m *MemoryStore) getRecord(txn *memdb.Txn, id string) (*containerRecord, error) {
	raw, err := txn.First(containerTable, pkIndex, id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("container %s: %w", id, ErrNotFound)
	}
	return raw.(*containerRecord), nil
}

// children returns the children of a parent in creation order.
func (m *MemoryStore) children(txn *memdb.Txn, parentID string, childType models.ContainerType) ([]*containerRecord, error) {
	it, err := txn.Get(containerTable, parentIndex, parentID, string(childType))
	if err != nil {
		return nil, err
	}
	var result []*containerRecord
	for obj := it.Next(); obj != nil; obj = it.Next() {
		result = append(result, obj.(*containerRecord))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

// snapshot copies a record and attaches its files so callers never share
// state with the database.
func (m *MemoryStore) snapshot(txn *memdb.Txn, rec *containerRecord) (*models.Container, error) {
	c := copyContainer(rec.Container)
	it, err := txn.Get(fileTable, ownerIndex, rec.ID)
	if err != nil {
		return nil, err
	}
	var files []*fileRecord
	for obj := it.Next(); obj != nil; obj = it.Next() {
		files = append(files, obj.(*fileRecord))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Seq < files[j].Seq })
	c.Files = nil
	for _, f := range files {
		c.Files = append(c.Files, f.File)
	}
	return &c, nil
}

func fileKey(containerID, name string) string {
	return containerID + "/" + name
}

func copyContainer(c models.Container) models.Container {
	c.Fields = models.CopyMap(c.Fields)
	c.Info = models.CopyMap(c.Info)
	c.Files = append([]models.File(nil), c.Files...)
	return c
}
