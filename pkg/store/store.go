// Package store persists resolved video records, the stream domain
// allow-list and runtime settings. Two implementations exist: an in-memory
// store for ephemeral deployments and a SQLite-backed one for persistence
// across restarts.
package store

import "embed-resolver-go/pkg/types"

// Store is the persistence contract the resolver and the admin API work
// against. Implementations must be safe for concurrent use.
type Store interface {
	// GetVideo returns the record for a video id, or types.ErrNotFound.
	GetVideo(videoID string) (types.VideoRecord, error)
	// PutVideo inserts or replaces the record keyed by its VideoID.
	PutVideo(rec types.VideoRecord) error
	// TouchVideo bumps LastAccessed to now and increments AccessCount.
	TouchVideo(videoID string) error
	// ListVideos returns all records, most recently resolved first.
	ListVideos() ([]types.VideoRecord, error)

	// ListDomains returns the configured stream domains.
	ListDomains() ([]types.DomainRecord, error)
	// PutDomain inserts or updates a domain entry.
	PutDomain(rec types.DomainRecord) error
	// DeleteDomain removes a domain, or returns types.ErrNotFound.
	DeleteDomain(domain string) error

	// GetSettingsJSON returns the persisted settings blob, or
	// types.ErrNotFound when none was ever saved.
	GetSettingsJSON() ([]byte, error)
	// PutSettingsJSON replaces the persisted settings blob.
	PutSettingsJSON(data []byte) error

	Close() error
}
