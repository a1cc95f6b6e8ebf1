package store

import (
	"sort"
	"sync"
	"time"

	"embed-resolver-go/pkg/types"
)

// Memory is the map-backed Store used when no store path is configured.
type Memory struct {
	mu       sync.RWMutex
	videos   map[string]types.VideoRecord
	domains  map[string]types.DomainRecord
	settings []byte
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		videos:  make(map[string]types.VideoRecord),
		domains: make(map[string]types.DomainRecord),
	}
}

func (m *Memory) GetVideo(videoID string) (types.VideoRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.videos[videoID]
	if !ok {
		return types.VideoRecord{}, types.ErrNotFound
	}
	return rec, nil
}

func (m *Memory) PutVideo(rec types.VideoRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.videos[rec.VideoID] = rec
	return nil
}

func (m *Memory) TouchVideo(videoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.videos[videoID]
	if !ok {
		return types.ErrNotFound
	}
	rec.LastAccessed = time.Now().UTC()
	rec.AccessCount++
	m.videos[videoID] = rec
	return nil
}

func (m *Memory) ListVideos() ([]types.VideoRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.VideoRecord, 0, len(m.videos))
	for _, rec := range m.videos {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ResolvedAt.After(out[j].ResolvedAt)
	})
	return out, nil
}

func (m *Memory) ListDomains() ([]types.DomainRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.DomainRecord, 0, len(m.domains))
	for _, rec := range m.domains {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Domain < out[j].Domain
	})
	return out, nil
}

func (m *Memory) PutDomain(rec types.DomainRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.domains[rec.Domain] = rec
	return nil
}

func (m *Memory) DeleteDomain(domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.domains[domain]; !ok {
		return types.ErrNotFound
	}
	delete(m.domains, domain)
	return nil
}

func (m *Memory) GetSettingsJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.settings == nil {
		return nil, types.ErrNotFound
	}
	out := make([]byte, len(m.settings))
	copy(out, m.settings)
	return out, nil
}

func (m *Memory) PutSettingsJSON(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings = make([]byte, len(data))
	copy(m.settings, data)
	return nil
}

func (m *Memory) Close() error { return nil }
