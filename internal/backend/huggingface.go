package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultHuggingFaceBase is the HF Hub endpoint used unless a test overrides it.
const DefaultHuggingFaceBase = "https://huggingface.co"

// HuggingFaceConfig is the per-user credential blob for the HuggingFace adapter.
type HuggingFaceConfig struct {
	Token     string `json:"token"`
	Repo      string `json:"repo"`
	Path      string `json:"path"`
	IsPrivate bool   `json:"isPrivate"`
}

// HuggingFace relays files as commits to a model repository on the HF Hub.
// Store uses the NDJSON commit endpoint; fetch streams the file back through
// the resolve endpoint. There is no maintained Go SDK for the Hub, so this
// adapter speaks the REST API directly.
type HuggingFace struct {
	base   string
	client *http.Client
}

func NewHuggingFace(timeout time.Duration) *HuggingFace {
	return &HuggingFace{
		base:   DefaultHuggingFaceBase,
		client: &http.Client{Timeout: timeout},
	}
}

// NewHuggingFaceWithBase creates an adapter against a non-default endpoint.
// Used by tests to point at a local fake Hub.
func NewHuggingFaceWithBase(base string, timeout time.Duration) *HuggingFace {
	hf := NewHuggingFace(timeout)
	hf.base = base
	return hf
}

// commitLine is one NDJSON line of the commit payload.
type commitLine struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type commitResponse struct {
	CommitOID string `json:"commitOid"`
	CommitURL string `json:"commitUrl"`
}

func (h *HuggingFace) Store(ctx context.Context, obj *Object, rawConfig []byte) (Coordinates, error) {
	var cfg HuggingFaceConfig
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("decode huggingface config: %w", err)
		}
	}
	if cfg.Token == "" || cfg.Repo == "" {
		return nil, ErrConfigMissing
	}

	filePath := obj.FileName
	if cfg.Path != "" {
		filePath = cfg.Path + "/" + filePath
	}

	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	_ = enc.Encode(commitLine{Key: "header", Value: map[string]string{
		"summary": "Upload via ImgBed",
	}})
	_ = enc.Encode(commitLine{Key: "file", Value: map[string]string{
		"path":     filePath,
		"encoding": "base64",
		"content":  base64.StdEncoding.EncodeToString(obj.Data),
	}})

	commitURL := fmt.Sprintf("%s/api/models/%s/commit/main", h.base, cfg.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, commitURL, &payload)
	if err != nil {
		return nil, upstreamErr(PlatformHuggingFace, "build commit request", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Token)
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, upstreamErr(PlatformHuggingFace, "commit file", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, upstreamErr(PlatformHuggingFace,
			fmt.Sprintf("commit file: status %d: %s", resp.StatusCode, bytes.TrimSpace(body)), nil)
	}

	var commit commitResponse
	if err := json.NewDecoder(resp.Body).Decode(&commit); err != nil {
		return nil, upstreamErr(PlatformHuggingFace, "decode commit response", err)
	}
	if commit.CommitOID == "" {
		return nil, upstreamErr(PlatformHuggingFace, "incomplete response", nil)
	}

	return Coordinates{
		"Repo":     cfg.Repo,
		"FilePath": filePath,
		"FileUrl":  h.resolveURL(cfg.Repo, filePath),
		"Oid":      commit.CommitOID,
	}, nil
}

func (h *HuggingFace) resolveURL(repo, filePath string) string {
	return fmt.Sprintf("%s/%s/resolve/main/%s", h.base, repo, url.PathEscape(filePath))
}

func (h *HuggingFace) Fetch(ctx context.Context, coords Coordinates, rawConfig []byte) (*FetchResult, error) {
	token := coords["HfToken"]
	if token == "" && len(rawConfig) > 0 {
		var cfg HuggingFaceConfig
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("decode huggingface config: %w", err)
		}
		token = cfg.Token
	}
	if token == "" {
		return nil, ErrConfigMissing
	}

	repo := coords["Repo"]
	filePath := coords["FilePath"]
	if repo == "" || filePath == "" {
		return nil, upstreamErr(PlatformHuggingFace, "incomplete coordinates", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.resolveURL(repo, filePath), nil)
	if err != nil {
		return nil, upstreamErr(PlatformHuggingFace, "build download request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, upstreamErr(PlatformHuggingFace, "download file", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, upstreamErr(PlatformHuggingFace,
			fmt.Sprintf("download file: status %d", resp.StatusCode), nil)
	}

	return &FetchResult{Body: resp.Body, ContentType: resp.Header.Get("Content-Type")}, nil
}
