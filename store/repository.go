package store

import (
	"context"
	"fmt"

	"autopilot/config"
	"autopilot/types"
)

// Repository exposes the typed collections the auto-pilot keeps in a Store
type Repository struct {
	store  Store
	prefix string
}

// NewRepository namespaces every key with prefix (e.g. "autopilot:")
func NewRepository(s Store, prefix string) *Repository {
	return &Repository{store: s, prefix: prefix}
}

func (r *Repository) key(name string) string { return r.prefix + name }

// LoadConfig returns the saved cycle config. found is false when nothing was saved yet.
func (r *Repository) LoadConfig(ctx context.Context) (cfg types.CycleConfig, found bool, err error) {
	found, err = GetJSON(ctx, r.store, r.key(config.KeyConfig), &cfg)
	return cfg, found, err
}

// SaveConfig persists the cycle config
func (r *Repository) SaveConfig(ctx context.Context, cfg types.CycleConfig) error {
	return SetJSON(ctx, r.store, r.key(config.KeyConfig), cfg)
}

// Features returns the feature toggles, or the defaults when none are saved
func (r *Repository) Features(ctx context.Context) (types.FeatureToggles, error) {
	features := types.DefaultFeatureToggles()
	if _, err := GetJSON(ctx, r.store, r.key(config.KeyFeatures), &features); err != nil {
		return types.DefaultFeatureToggles(), err
	}
	return features, nil
}

// SaveFeatures persists the feature toggles
func (r *Repository) SaveFeatures(ctx context.Context, features types.FeatureToggles) error {
	return SetJSON(ctx, r.store, r.key(config.KeyFeatures), features)
}

// Posts returns the post collection, newest first
func (r *Repository) Posts(ctx context.Context) ([]types.GeneratedPost, error) {
	var posts []types.GeneratedPost
	if _, err := GetJSON(ctx, r.store, r.key(config.KeyPosts), &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// PrependPost adds a post at the head of the collection
func (r *Repository) PrependPost(ctx context.Context, post types.GeneratedPost) error {
	return UpdateJSON(ctx, r.store, r.key(config.KeyPosts), func(posts *[]types.GeneratedPost) error {
		*posts = append([]types.GeneratedPost{post}, *posts...)
		return nil
	})
}

// UpdatePost applies fn to the post with the given id
func (r *Repository) UpdatePost(ctx context.Context, id string, fn func(*types.GeneratedPost) error) error {
	return UpdateJSON(ctx, r.store, r.key(config.KeyPosts), func(posts *[]types.GeneratedPost) error {
		for i := range *posts {
			if (*posts)[i].ID == id {
				return fn(&(*posts)[i])
			}
		}
		return fmt.Errorf("post %s: %w", id, ErrNotFound)
	})
}

// Logs returns the activity log collection, newest first
func (r *Repository) Logs(ctx context.Context) ([]types.ActivityLogEntry, error) {
	var logs []types.ActivityLogEntry
	if _, err := GetJSON(ctx, r.store, r.key(config.KeyLogs), &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// PrependLog adds an entry at the head of the log collection and drops
// everything past limit.
func (r *Repository) PrependLog(ctx context.Context, entry types.ActivityLogEntry, limit int) error {
	return UpdateJSON(ctx, r.store, r.key(config.KeyLogs), func(logs *[]types.ActivityLogEntry) error {
		next := append([]types.ActivityLogEntry{entry}, *logs...)
		if len(next) > limit {
			next = next[:limit]
		}
		*logs = next
		return nil
	})
}

// Credential returns the user selected API key, or "" when none is saved
func (r *Repository) Credential(ctx context.Context) (string, error) {
	var key string
	if _, err := GetJSON(ctx, r.store, r.key(config.KeyCredential), &key); err != nil {
		return "", err
	}
	return key, nil
}

// SaveCredential persists the user selected API key
func (r *Repository) SaveCredential(ctx context.Context, key string) error {
	return SetJSON(ctx, r.store, r.key(config.KeyCredential), key)
}
