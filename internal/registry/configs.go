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

// ConfigStore persists per-user platform credential blobs. The gateway only
// ever reads these; writes happen through the configuration handlers.
type ConfigStore struct {
	store *store.Store
}

func NewConfigStore(s *store.Store) *ConfigStore {
	return &ConfigStore{store: s}
}

// Get returns the raw config blob for (userID, platform), or store.ErrNotFound.
func (c *ConfigStore) Get(ctx context.Context, userID int64, platform backend.Platform) (json.RawMessage, error) {
	row, err := store.QueryRow(ctx, c.store.DB,
		"SELECT config FROM configs WHERE user_id = $1 AND platform = $2",
		userID, string(platform))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(asString(row["config"])), nil
}

// Set upserts the config blob for (userID, platform).
func (c *ConfigStore) Set(ctx context.Context, userID int64, platform backend.Platform, cfg json.RawMessage) error {
	if !json.Valid(cfg) {
		return errors.New("config is not valid JSON")
	}
	_, err := store.Exec(ctx, c.store.DB,
		`INSERT INTO configs (user_id, platform, config, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, platform) DO UPDATE SET
		   config = excluded.config,
		   updated_at = excluded.updated_at`,
		userID, string(platform), string(cfg), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// All returns every platform config the user has saved, keyed by platform name.
func (c *ConfigStore) All(ctx context.Context, userID int64) (map[string]json.RawMessage, error) {
	rows, err := store.QueryRows(ctx, c.store.DB,
		"SELECT platform, config FROM configs WHERE user_id = $1", userID)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}

	configs := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		configs[asString(row["platform"])] = json.RawMessage(asString(row["config"]))
	}
	return configs, nil
}
