// Package settings holds the runtime-tunable resolver settings. Values are
// adjustable through the admin API without a restart and persist through
// the record store.
package settings

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/types"
)

// Clamp bounds for the numeric settings, in seconds.
const (
	MinTimeout  = 5
	MaxTimeout  = 120
	MinCacheTTL = 60
	MaxCacheTTL = 86400
)

// Settings is the tunable resolver configuration. Timeout and CacheTTL are
// expressed in seconds on the wire.
type Settings struct {
	Timeout      int  `json:"timeout"`
	AutoRetry    bool `json:"autoRetry"`
	CacheEnabled bool `json:"cacheEnabled"`
	CacheTTL     int  `json:"cacheTtl"`
}

// Default returns the settings used before an operator ever saves any.
func Default() Settings {
	return Settings{
		Timeout:      30,
		AutoRetry:    true,
		CacheEnabled: true,
		CacheTTL:     3600,
	}
}

// Clamped returns a copy with out-of-range numeric values pulled back into
// bounds. Updates never fail on bad numbers, they get corrected.
func (s Settings) Clamped() Settings {
	s.Timeout = clamp(s.Timeout, MinTimeout, MaxTimeout)
	s.CacheTTL = clamp(s.CacheTTL, MinCacheTTL, MaxCacheTTL)
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// persister is the slice of the record store the service needs.
type persister interface {
	GetSettingsJSON() ([]byte, error)
	PutSettingsJSON(data []byte) error
}

// Service serves the current settings to readers and persists updates.
type Service struct {
	mu    sync.RWMutex
	cur   Settings
	store persister
	log   *logging.Logger
}

// NewService loads persisted settings from the store, falling back to
// defaults when none were saved or the blob does not parse.
func NewService(store persister, log *logging.Logger) *Service {
	svc := &Service{
		cur:   Default(),
		store: store,
		log:   log.WithComponent("settings"),
	}

	data, err := store.GetSettingsJSON()
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			svc.log.WithError(err).Warn("failed to load persisted settings, using defaults")
		}
		return svc
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		svc.log.WithError(err).Warn("persisted settings unreadable, using defaults")
		return svc
	}
	svc.cur = loaded.Clamped()
	svc.log.Info("loaded persisted settings",
		"timeout", svc.cur.Timeout, "cache_ttl", svc.cur.CacheTTL)
	return svc
}

// Current returns a snapshot of the active settings.
func (s *Service) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update clamps, persists and activates new settings. The clamped result
// is returned so callers can echo what actually took effect.
func (s *Service) Update(next Settings) (Settings, error) {
	next = next.Clamped()

	data, err := json.Marshal(next)
	if err != nil {
		return Settings{}, err
	}
	if err := s.store.PutSettingsJSON(data); err != nil {
		return Settings{}, err
	}

	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()

	s.log.Info("settings updated",
		"timeout", next.Timeout, "auto_retry", next.AutoRetry,
		"cache_enabled", next.CacheEnabled, "cache_ttl", next.CacheTTL)
	return next, nil
}

// Timeout returns the extraction timeout as a duration.
func (s *Service) Timeout() time.Duration {
	return time.Duration(s.Current().Timeout) * time.Second
}

// CacheTTL returns the cache TTL as a duration.
func (s *Service) CacheTTL() time.Duration {
	return time.Duration(s.Current().CacheTTL) * time.Second
}
