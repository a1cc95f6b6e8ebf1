// Package types defines core domain types used throughout the application.
package types

import "time"

// VideoRecord is the durable result of a successful resolution. A record is
// created on the first successful extraction for an id and updated in place
// afterwards; normal operation never deletes it.
type VideoRecord struct {
	VideoID      string    `json:"videoId"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Quality      string    `json:"quality"`
	ResolvedAt   time.Time `json:"resolvedAt"`
	LastAccessed time.Time `json:"lastAccessed"`
	AccessCount  int64     `json:"accessCount"`
}

// ExtractResult is the normalized output of the extraction engine.
type ExtractResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Quality string `json:"quality"`
}

// DomainRecord is one whitelist entry. The record model is kept even when
// enforcement is switched off so a deployment can re-enable the check
// without code changes.
type DomainRecord struct {
	Domain  string    `json:"domain"`
	Active  bool      `json:"active"`
	AddedAt time.Time `json:"addedAt"`
}
