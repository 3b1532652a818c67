// Package registry is the durable source of truth for where every uploaded
// file lives. A record binds the public file id to the platform and the
// coordinates its adapter returned at store time; lose this table and the
// bytes on the platform become unreachable.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"imgrelay-backend/internal/backend"
	"imgrelay-backend/internal/store"
)

var ErrDuplicateID = errors.New("file id already exists")
var ErrNotFound = store.ErrNotFound

// FileRecord is one registry entry. ID and Platform are immutable once
// assigned; Coordinates are persisted verbatim and never recomputed.
type FileRecord struct {
	ID          string
	Platform    backend.Platform
	Coordinates backend.Coordinates
	FileName    string
	ContentType string
	SizeBytes   int64
	UploadIP    string
	Timestamp   int64 // upload time in Unix milliseconds; embedded in the id
	Tags        []string
	Directory   string
	Label       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Summary is the listing projection of a record; coordinates stay private.
type Summary struct {
	FileID      string    `json:"file_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	FileSize    int64     `json:"file_size"`
	Platform    string    `json:"platform"`
	Timestamp   int64     `json:"timestamp"`
	CreatedAt   time.Time `json:"created_at"`
}

// Registry persists FileRecords through the shared store. All writes are
// durably committed before the call returns (see store.New).
type Registry struct {
	store *store.Store
}

func New(s *store.Store) *Registry {
	return &Registry{store: s}
}

// Insert writes a new record. Fails with ErrDuplicateID if the id is taken.
func (r *Registry) Insert(ctx context.Context, rec *FileRecord) error {
	coords, err := json.Marshal(rec.Coordinates)
	if err != nil {
		return fmt.Errorf("encode coordinates: %w", err)
	}
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err = store.Exec(ctx, r.store.DB,
		`INSERT INTO files (id, platform, coordinates, file_name, content_type, size_bytes,
		                    upload_ip, ts, tags, directory, label, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, string(rec.Platform), string(coords), rec.FileName, rec.ContentType,
		rec.SizeBytes, rec.UploadIP, rec.Timestamp, string(tagsJSON), rec.Directory,
		rec.Label, now, now)
	if err != nil {
		if errors.Is(r.store.Dialect.MapError(err), store.ErrUniqueViolation) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
		}
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

// Get returns the record for id, or ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*FileRecord, error) {
	row, err := store.QueryRow(ctx, r.store.DB,
		`SELECT id, platform, coordinates, file_name, content_type, size_bytes,
		        upload_ip, ts, tags, directory, label, created_at, updated_at
		 FROM files WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return recordFromRow(row)
}

// List returns summaries ordered newest first. Offset-based and restartable.
func (r *Registry) List(ctx context.Context, limit, offset int) ([]Summary, error) {
	rows, err := store.QueryRows(ctx, r.store.DB,
		`SELECT id, file_name, content_type, size_bytes, platform, ts, created_at
		 FROM files
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	summaries := make([]Summary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, Summary{
			FileID:      asString(row["id"]),
			FileName:    asString(row["file_name"]),
			ContentType: asString(row["content_type"]),
			FileSize:    asInt64(row["size_bytes"]),
			Platform:    asString(row["platform"]),
			Timestamp:   asInt64(row["ts"]),
			CreatedAt:   asTime(row["created_at"]),
		})
	}
	return summaries, nil
}

// Count returns the total number of records.
func (r *Registry) Count(ctx context.Context) (int64, error) {
	row, err := store.QueryRow(ctx, r.store.DB, "SELECT COUNT(*) AS n FROM files")
	if err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return asInt64(row["n"]), nil
}

// Delete removes the record for id. Idempotent: a missing id is not an error.
// The object on the external platform is intentionally left alone.
func (r *Registry) Delete(ctx context.Context, id string) error {
	_, err := store.Exec(ctx, r.store.DB, "DELETE FROM files WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	return nil
}

func recordFromRow(row map[string]any) (*FileRecord, error) {
	rec := &FileRecord{
		ID:          asString(row["id"]),
		Platform:    backend.Platform(asString(row["platform"])),
		FileName:    asString(row["file_name"]),
		ContentType: asString(row["content_type"]),
		SizeBytes:   asInt64(row["size_bytes"]),
		UploadIP:    asString(row["upload_ip"]),
		Timestamp:   asInt64(row["ts"]),
		Directory:   asString(row["directory"]),
		Label:       asString(row["label"]),
		CreatedAt:   asTime(row["created_at"]),
		UpdatedAt:   asTime(row["updated_at"]),
	}

	if raw := asString(row["coordinates"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Coordinates); err != nil {
			return nil, fmt.Errorf("decode coordinates for %s: %w", rec.ID, err)
		}
	}
	if raw := asString(row["tags"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Tags); err != nil {
			// Tags are display metadata; a bad blob should not make the file unreachable.
			rec.Tags = nil
		}
	}
	return rec, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asTime(v any) time.Time {
	t, _ := v.(time.Time)
	return t
}
