// Package gateway orchestrates the store and fetch pipelines: it validates
// the request, dispatches to the right platform adapter, and keeps the
// registry consistent with what actually landed upstream.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"imgrelay-backend/internal/backend"
	"imgrelay-backend/internal/registry"
	"imgrelay-backend/internal/store"
)

// SystemOwnerID is the user id programmatic (API-key) callers resolve to,
// and the owner whose configs back fetch-time credential fallback.
const SystemOwnerID int64 = 1

// Registry is the slice of the metadata registry the gateway needs.
type Registry interface {
	Insert(ctx context.Context, rec *registry.FileRecord) error
	Get(ctx context.Context, id string) (*registry.FileRecord, error)
	List(ctx context.Context, limit, offset int) ([]registry.Summary, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id string) error
}

// ConfigProvider resolves the credential blob for (owner, platform). The
// gateway only reads configs, never writes them.
type ConfigProvider interface {
	Get(ctx context.Context, userID int64, platform backend.Platform) (json.RawMessage, error)
}

// Gateway presents the uniform store/fetch contract over the three platform
// adapters and the registry. All dependencies are injected so tests can
// substitute fakes.
type Gateway struct {
	reg      Registry
	configs  ConfigProvider
	backends map[backend.Platform]backend.Backend
	ids      idGenerator
}

func New(reg Registry, configs ConfigProvider, backends map[backend.Platform]backend.Backend) *Gateway {
	return &Gateway{reg: reg, configs: configs, backends: backends}
}

// StoreRequest is one upload passing through the gateway.
type StoreRequest struct {
	Platform    string
	OwnerID     int64
	FileName    string
	ContentType string
	Data        []byte
	UploadIP    string
}

// Store runs the upload pipeline: Validate, Dispatch, Persist. The registry
// record is written if and only if the upstream store call succeeded, never
// before, and a registry failure never un-fails the upstream write (that gap
// is logged for manual reconciliation).
func (g *Gateway) Store(ctx context.Context, req *StoreRequest) (*registry.FileRecord, error) {
	// Validate: known platform and a usable config, before any adapter call.
	platform, err := backend.ParsePlatform(req.Platform)
	if err != nil {
		return nil, InvalidPlatformError(req.Platform)
	}
	be, ok := g.backends[platform]
	if !ok {
		return nil, InvalidPlatformError(req.Platform)
	}

	cfg, err := g.configs.Get(ctx, req.OwnerID, platform)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ConfigMissingError(string(platform))
		}
		return nil, RegistryError(fmt.Sprintf("load %s config: %v", platform, err))
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	fileName := RecoverFileName(req.FileName)
	if fileName == "" {
		fileName = "file_" + uuid.NewString()
	}

	// Dispatch: a single sequential adapter call, no retries, no fallback.
	coords, err := be.Store(ctx, &backend.Object{
		FileName:    fileName,
		ContentType: contentType,
		Data:        req.Data,
	}, cfg)
	if err != nil {
		return nil, mapBackendError(platform, err)
	}

	// Persist: write-after-success.
	ts := g.ids.next()
	rec := &registry.FileRecord{
		ID:          fmt.Sprintf("%d_%s", ts, fileName),
		Platform:    platform,
		Coordinates: coords,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   int64(len(req.Data)),
		UploadIP:    req.UploadIP,
		Timestamp:   ts,
		Label:       "None",
	}
	if err := g.reg.Insert(ctx, rec); err != nil {
		// The bytes exist upstream but nothing points at them anymore.
		log.Printf("ORPHANED UPLOAD: platform=%s id=%s coordinates=%v: registry insert failed: %v",
			platform, rec.ID, coords, err)
		return nil, RegistryError("Failed to persist file record")
	}
	return rec, nil
}

// Fetch runs the read pipeline: Lookup, Resolve, Stream. The adapter named in
// the stored record does the work; coordinates-embedded credentials take
// precedence over the system owner's fallback config.
func (g *Gateway) Fetch(ctx context.Context, id string) (*registry.FileRecord, *backend.FetchResult, error) {
	rec, err := g.reg.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, NotFoundError(id)
		}
		return nil, nil, RegistryError(fmt.Sprintf("lookup %s: %v", id, err))
	}

	be, ok := g.backends[rec.Platform]
	if !ok {
		return nil, nil, InvalidPlatformError(string(rec.Platform))
	}

	// Fallback credentials for records whose coordinates carry none.
	cfg, err := g.configs.Get(ctx, SystemOwnerID, rec.Platform)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, RegistryError(fmt.Sprintf("load fallback config: %v", err))
	}

	res, err := be.Fetch(ctx, rec.Coordinates, cfg)
	if err != nil {
		return nil, nil, mapBackendError(rec.Platform, err)
	}
	return rec, res, nil
}

// Delete removes the registry record only; the object on the external
// platform is left in place.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	if _, err := g.reg.Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(id)
		}
		return RegistryError(fmt.Sprintf("lookup %s: %v", id, err))
	}
	if err := g.reg.Delete(ctx, id); err != nil {
		return RegistryError(fmt.Sprintf("delete %s: %v", id, err))
	}
	return nil
}

// List returns a page of summaries plus the total count.
func (g *Gateway) List(ctx context.Context, limit, offset int) ([]registry.Summary, int64, error) {
	files, err := g.reg.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, RegistryError(fmt.Sprintf("list files: %v", err))
	}
	total, err := g.reg.Count(ctx)
	if err != nil {
		return nil, 0, RegistryError(fmt.Sprintf("count files: %v", err))
	}
	return files, total, nil
}

func mapBackendError(platform backend.Platform, err error) *AppError {
	if errors.Is(err, backend.ErrConfigMissing) {
		return ConfigMissingError(string(platform))
	}
	var upErr *backend.UpstreamError
	if errors.As(err, &upErr) {
		return UpstreamError(upErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return UpstreamError(fmt.Sprintf("%s: timeout", platform))
	}
	return UpstreamError(fmt.Sprintf("%s: %v", platform, err))
}

// idGenerator hands out process-monotonic millisecond timestamps so two
// uploads in the same millisecond still get distinct ids.
type idGenerator struct {
	mu   sync.Mutex
	last int64
}

func (g *idGenerator) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now().UnixMilli()
	if now <= g.last {
		now = g.last + 1
	}
	g.last = now
	return now
}
