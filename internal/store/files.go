// Package store implements the File Blob Store: a single content table
// shared by source code, static content, and gzip-compressed match replays,
// keyed by (name, owning entity, owning id).
package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fairplay/pkg/models"
)

// Requester identifies who is asking for a file, for future authorization
// hooks; the blob store itself does not enforce access control.
type Requester int

const (
	RequesterUnauthenticated Requester = iota
	RequesterSystem
	RequesterAccount
)

// FileStore is a thin, stateless wrapper around the files table.
type FileStore struct {
	db *gorm.DB
}

func NewFileStore(db *gorm.DB) *FileStore {
	return &FileStore{db: db}
}

// Write upserts a blob identified by (name, owningEntity, owningID). If
// gzip is true, content is compressed before storage.
func (s *FileStore) Write(ctx context.Context, owningEntity models.FileOwningEntity, owningID *uint, name string, kind models.FileKind, content []byte, gzipIt bool) error {
	stored := content
	compression := models.CompressionUncompressed
	if gzipIt {
		compressed, err := compress(content)
		if err != nil {
			return fmt.Errorf("compress file %q: %w", name, err)
		}
		stored = compressed
		compression = models.CompressionGzip
	}

	f := models.File{
		OwningEntity: owningEntity,
		OwningID:     owningID,
		Name:         name,
		LastUpdate:   time.Now().UTC(),
		Kind:         kind,
		Compression:  compression,
		Content:      stored,
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owning_entity"}, {Name: "owning_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_update", "kind", "compression", "content",
		}),
	}).Create(&f).Error
}

// Read fetches a blob and transparently decompresses it if it was stored
// gzip-compressed.
func (s *FileStore) Read(ctx context.Context, owningEntity models.FileOwningEntity, owningID *uint, name string) ([]byte, error) {
	var f models.File
	q := s.db.WithContext(ctx).Where("owning_entity = ? AND name = ?", owningEntity, name)
	if owningID != nil {
		q = q.Where("owning_id = ?", *owningID)
	} else {
		q = q.Where("owning_id IS NULL")
	}
	if err := q.First(&f).Error; err != nil {
		return nil, err
	}
	if f.Compression == models.CompressionGzip {
		return decompress(f.Content)
	}
	return f.Content, nil
}

// Delete removes a blob. Missing blobs are not an error.
func (s *FileStore) Delete(ctx context.Context, owningEntity models.FileOwningEntity, owningID *uint, name string) error {
	q := s.db.WithContext(ctx).Where("owning_entity = ? AND name = ?", owningEntity, name)
	if owningID != nil {
		q = q.Where("owning_id = ?", *owningID)
	} else {
		q = q.Where("owning_id IS NULL")
	}
	return q.Delete(&models.File{}).Error
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(compressed []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
