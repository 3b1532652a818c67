package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"

	"imgrelay-backend/internal/backend"
	"imgrelay-backend/internal/registry"
	"imgrelay-backend/internal/store"
)

// fakeRegistry is an in-memory Registry with the same uniqueness and
// not-found semantics as the real one.
type fakeRegistry struct {
	mu      sync.Mutex
	records map[string]*registry.FileRecord
	failing bool
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{records: make(map[string]*registry.FileRecord)}
}

func (f *fakeRegistry) Insert(_ context.Context, rec *registry.FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("disk full")
	}
	if _, ok := f.records[rec.ID]; ok {
		return registry.ErrDuplicateID
	}
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeRegistry) Get(_ context.Context, id string) (*registry.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRegistry) List(_ context.Context, limit, offset int) ([]registry.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.records))
	for id := range f.records {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	var out []registry.Summary
	for i, id := range ids {
		if i < offset || len(out) >= limit {
			continue
		}
		rec := f.records[id]
		out = append(out, registry.Summary{FileID: rec.ID, FileName: rec.FileName, Platform: string(rec.Platform)})
	}
	return out, nil
}

func (f *fakeRegistry) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.records)), nil
}

func (f *fakeRegistry) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

// fakeConfigs serves canned config blobs.
type fakeConfigs struct {
	configs map[string]json.RawMessage // key: "<owner>/<platform>"
}

func (f *fakeConfigs) Get(_ context.Context, userID int64, platform backend.Platform) (json.RawMessage, error) {
	cfg, ok := f.configs[fmt.Sprintf("%d/%s", userID, platform)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cfg, nil
}

// fakeBackend echoes stored bytes back on fetch and counts calls.
type fakeBackend struct {
	mu         sync.Mutex
	objects    map[string][]byte // keyed by coordinate "Key"
	coords     backend.Coordinates
	storeErr   error
	storeCalls int
	fetchCalls int
	lastCoords backend.Coordinates
	lastConfig []byte
	seq        int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: make(map[string][]byte)}
}

func (f *fakeBackend) Store(_ context.Context, obj *backend.Object, rawConfig []byte) (backend.Coordinates, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storeCalls++
	f.lastConfig = rawConfig
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	if f.coords != nil {
		key := f.coords["TgFileId"]
		f.objects[key] = obj.Data
		return f.coords, nil
	}
	f.seq++
	key := fmt.Sprintf("obj-%d", f.seq)
	f.objects[key] = obj.Data
	return backend.Coordinates{"Key": key}, nil
}

func (f *fakeBackend) Fetch(_ context.Context, coords backend.Coordinates, rawConfig []byte) (*backend.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	f.lastCoords = coords
	f.lastConfig = rawConfig
	key := coords["Key"]
	if key == "" {
		key = coords["TgFileId"]
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, &backend.UpstreamError{Platform: backend.PlatformTelegram, Reason: "unknown object"}
	}
	return &backend.FetchResult{Body: io.NopCloser(bytes.NewReader(data)), ContentType: "image/png"}, nil
}

func newTestGateway(reg Registry, be backend.Backend) *Gateway {
	configs := &fakeConfigs{configs: map[string]json.RawMessage{
		"1/telegram": json.RawMessage(`{"botToken":"tok","chatId":"123"}`),
	}}
	return New(reg, configs, map[backend.Platform]backend.Backend{
		backend.PlatformTelegram: be,
	})
}

func TestStoreFetchRoundTrip(t *testing.T) {
	reg := newFakeRegistry()
	be := newFakeBackend()
	gw := newTestGateway(reg, be)

	payload := []byte("not really a png, but bytes are bytes")
	rec, err := gw.Store(context.Background(), &StoreRequest{
		Platform:    "telegram",
		OwnerID:     1,
		FileName:    "cat.png",
		ContentType: "image/png",
		Data:        payload,
	})
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if rec.Platform != backend.PlatformTelegram {
		t.Fatalf("expected platform telegram, got %s", rec.Platform)
	}

	got, res, err := gw.Fetch(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	defer res.Body.Close()
	if got.ID != rec.ID {
		t.Fatalf("fetched record id %s, want %s", got.ID, rec.ID)
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("round trip mismatch: got %q, want %q", data, payload)
	}
}

func TestStoreReturnsAdapterCoordinates(t *testing.T) {
	reg := newFakeRegistry()
	be := newFakeBackend()
	be.coords = backend.Coordinates{"TgFileId": "ABC", "TgChatId": "123"}
	gw := newTestGateway(reg, be)

	rec, err := gw.Store(context.Background(), &StoreRequest{
		Platform:    "telegram",
		OwnerID:     1,
		FileName:    "photo.png",
		ContentType: "image/png",
		Data:        []byte("png bytes"),
	})
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if rec.Coordinates["TgFileId"] != "ABC" {
		t.Fatalf("coordinates not persisted verbatim: %v", rec.Coordinates)
	}

	// The fetch must hand exactly the stored coordinates back to the adapter.
	if _, res, err := gw.Fetch(context.Background(), rec.ID); err != nil {
		t.Fatalf("fetch failed: %v", err)
	} else {
		res.Body.Close()
	}
	if be.lastCoords["TgFileId"] != "ABC" {
		t.Fatalf("adapter received coordinates %v, want TgFileId=ABC", be.lastCoords)
	}
}

func TestStoreUpstreamFailureLeavesNoRecord(t *testing.T) {
	reg := newFakeRegistry()
	be := newFakeBackend()
	be.storeErr = &backend.UpstreamError{Platform: backend.PlatformTelegram, Reason: "status 500"}
	gw := newTestGateway(reg, be)

	_, err := gw.Store(context.Background(), &StoreRequest{
		Platform: "telegram",
		OwnerID:  1,
		FileName: "cat.png",
		Data:     []byte("x"),
	})
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "UPSTREAM_ERROR" {
		t.Fatalf("expected UPSTREAM_ERROR, got %v", err)
	}

	n, _ := reg.Count(context.Background())
	if n != 0 {
		t.Fatalf("registry should be empty after upstream failure, has %d records", n)
	}
}

func TestStoreRegistryFailureSurfacesRegistryError(t *testing.T) {
	reg := newFakeRegistry()
	reg.failing = true
	be := newFakeBackend()
	gw := newTestGateway(reg, be)

	_, err := gw.Store(context.Background(), &StoreRequest{
		Platform: "telegram",
		OwnerID:  1,
		FileName: "cat.png",
		Data:     []byte("x"),
	})
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "REGISTRY_ERROR" {
		t.Fatalf("expected REGISTRY_ERROR, got %v", err)
	}
}

func TestConcurrentStoresAllPersisted(t *testing.T) {
	reg := newFakeRegistry()
	be := newFakeBackend()
	gw := newTestGateway(reg, be)

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := gw.Store(context.Background(), &StoreRequest{
				Platform: "telegram",
				OwnerID:  1,
				FileName: fmt.Sprintf("file-%d.bin", i),
				Data:     []byte{byte(i)},
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent store failed: %v", err)
		}
	}

	count, _ := reg.Count(context.Background())
	if count != n {
		t.Fatalf("expected %d records, got %d", n, count)
	}
}

func TestFetchUnknownIDNoAdapterCall(t *testing.T) {
	reg := newFakeRegistry()
	be := newFakeBackend()
	gw := newTestGateway(reg, be)

	_, _, err := gw.Fetch(context.Background(), "1700000000000_missing.png")
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if be.fetchCalls != 0 {
		t.Fatalf("adapter was called %d times for an unknown id", be.fetchCalls)
	}
}

func TestStoreUnsupportedPlatformFailsBeforeAnyCall(t *testing.T) {
	reg := newFakeRegistry()
	be := newFakeBackend()
	gw := newTestGateway(reg, be)

	_, err := gw.Store(context.Background(), &StoreRequest{
		Platform: "fax",
		OwnerID:  1,
		FileName: "cat.png",
		Data:     []byte("x"),
	})
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "INVALID_PLATFORM" {
		t.Fatalf("expected INVALID_PLATFORM, got %v", err)
	}
	if be.storeCalls != 0 {
		t.Fatal("adapter must not be called for an unsupported platform")
	}
	if n, _ := reg.Count(context.Background()); n != 0 {
		t.Fatal("registry must not be touched for an unsupported platform")
	}
}

func TestStoreWithoutConfigFails(t *testing.T) {
	reg := newFakeRegistry()
	be := newFakeBackend()
	gw := newTestGateway(reg, be)

	_, err := gw.Store(context.Background(), &StoreRequest{
		Platform: "telegram",
		OwnerID:  42, // no config saved for this owner
		FileName: "cat.png",
		Data:     []byte("x"),
	})
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "CONFIG_MISSING" {
		t.Fatalf("expected CONFIG_MISSING, got %v", err)
	}
	if be.storeCalls != 0 {
		t.Fatal("adapter must not be called without a config")
	}
}

func TestDeleteIsLocalOnly(t *testing.T) {
	reg := newFakeRegistry()
	be := newFakeBackend()
	gw := newTestGateway(reg, be)

	rec, err := gw.Store(context.Background(), &StoreRequest{
		Platform: "telegram",
		OwnerID:  1,
		FileName: "cat.png",
		Data:     []byte("x"),
	})
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}

	if err := gw.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if n, _ := reg.Count(context.Background()); n != 0 {
		t.Fatal("record not removed")
	}
	// The platform copy must be left alone: no adapter traffic beyond the store.
	if be.fetchCalls != 0 || be.storeCalls != 1 {
		t.Fatalf("unexpected adapter traffic: store=%d fetch=%d", be.storeCalls, be.fetchCalls)
	}

	// Deleting again reports not found at the gateway level.
	err = gw.Delete(context.Background(), rec.ID)
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND on second delete, got %v", err)
	}
}

func TestIDGeneratorMonotonicUnderContention(t *testing.T) {
	var gen idGenerator
	const n = 1000
	seen := make(map[int64]bool, n)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts := gen.next()
			mu.Lock()
			defer mu.Unlock()
			if seen[ts] {
				t.Errorf("duplicate timestamp %d", ts)
			}
			seen[ts] = true
		}()
	}
	wg.Wait()
}
