package trends

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"autopilot/store"
)

// DefaultSeenTTL is how long a used story stays excluded
const DefaultSeenTTL = 24 * time.Hour

// Seen remembers stories that already became a post so consecutive cycles
// pick different stories.
type Seen interface {
	Contains(ctx context.Context, hash string) (bool, error)
	Add(ctx context.Context, hash string) error
}

// StoreSeen keeps story hashes with their insertion time under one key
type StoreSeen struct {
	store store.Store
	key   string
	ttl   time.Duration
	now   func() time.Time
}

func NewStoreSeen(s store.Store, key string, ttl time.Duration) *StoreSeen {
	if ttl <= 0 {
		ttl = DefaultSeenTTL
	}
	return &StoreSeen{store: s, key: key, ttl: ttl, now: time.Now}
}

func (s *StoreSeen) Contains(ctx context.Context, hash string) (bool, error) {
	var seen map[string]time.Time
	if _, err := store.GetJSON(ctx, s.store, s.key, &seen); err != nil {
		return false, err
	}
	at, ok := seen[hash]
	return ok && s.now().Sub(at) < s.ttl, nil
}

// Add records hash and drops entries older than the TTL
func (s *StoreSeen) Add(ctx context.Context, hash string) error {
	now := s.now()
	return store.UpdateJSON(ctx, s.store, s.key, func(seen *map[string]time.Time) error {
		if *seen == nil {
			*seen = make(map[string]time.Time)
		}
		for h, at := range *seen {
			if now.Sub(at) >= s.ttl {
				delete(*seen, h)
			}
		}
		(*seen)[hash] = now
		return nil
	})
}

// StoryHash returns sha256(normalizedURL + "|" + normalizedTitle)
func StoryHash(s *Story) string {
	h := sha256.Sum256([]byte(normalizeURL(s.URL) + "|" + normalizeTitle(s.Title)))
	return hex.EncodeToString(h[:])
}

func normalizeTitle(t string) string {
	return strings.Join(strings.Fields(strings.ToLower(t)), " ")
}

// normalizeURL lowercases scheme and host and strips the fragment, tracking
// parameters and trailing slash.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()
	return strings.TrimRight(u.String(), "/")
}
