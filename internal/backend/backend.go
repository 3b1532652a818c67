// Package backend contains the adapters that relay file bytes to the external
// hosting platforms and pull them back. Each adapter maps the gateway's uniform
// store/fetch contract onto one platform's wire protocol; the gateway never
// sees anything platform-specific beyond the opaque coordinates.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Platform identifies one of the supported external platforms.
type Platform string

const (
	PlatformDiscord     Platform = "discord"
	PlatformHuggingFace Platform = "huggingface"
	PlatformTelegram    Platform = "telegram"
)

var ErrInvalidPlatform = errors.New("invalid platform")

// ParsePlatform validates a caller-supplied platform name.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformDiscord, PlatformHuggingFace, PlatformTelegram:
		return Platform(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPlatform, s)
}

// Platforms lists all supported platforms.
func Platforms() []Platform {
	return []Platform{PlatformDiscord, PlatformHuggingFace, PlatformTelegram}
}

// Object is the byte buffer handed to an adapter's Store call.
type Object struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Coordinates is the platform-specific data an adapter returns at store time
// and needs back at fetch time. Opaque to the gateway; persisted verbatim.
type Coordinates map[string]string

// FetchResult carries a fetched byte stream back to the gateway. ContentType
// is the upstream's value and may be empty; callers fall back to the type
// recorded at upload time.
type FetchResult struct {
	Body        io.ReadCloser
	ContentType string
}

// ErrConfigMissing is returned when neither the stored coordinates nor the
// supplied config carry usable credentials.
var ErrConfigMissing = errors.New("platform config missing")

// UpstreamError wraps any failure of the external platform: HTTP errors,
// malformed responses, network errors, timeouts. Adapters never retry; the
// upstream status and message are preserved for diagnostics.
type UpstreamError struct {
	Platform Platform
	Reason   string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Platform, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Reason)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func upstreamErr(p Platform, reason string, err error) *UpstreamError {
	return &UpstreamError{Platform: p, Reason: reason, Err: err}
}

// Backend is the capability set every adapter implements.
//
// Store pushes the object to the platform using the caller's config and
// returns the coordinates needed to fetch it later. If the platform response
// is missing any field required for a later fetch, Store fails with an
// UpstreamError instead of partially succeeding.
//
// Fetch replays the platform's download protocol for previously returned
// coordinates. The raw config is optional: credentials embedded in the
// coordinates at upload time take precedence, so retrieval keeps working
// after the uploader's config changes or disappears.
type Backend interface {
	Store(ctx context.Context, obj *Object, rawConfig []byte) (Coordinates, error)
	Fetch(ctx context.Context, coords Coordinates, rawConfig []byte) (*FetchResult, error)
}
