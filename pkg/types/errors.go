package types

import (
	"errors"
	"fmt"
)

// Error taxonomy surfaced by the resolver and the streaming proxy. Handlers
// map these to HTTP status codes; everything else becomes a generic 500.
var (
	// ErrInvalidVideoID means the supplied id does not match ^\d+$.
	ErrInvalidVideoID = errors.New("invalid video id")

	// ErrExtractionFailed means no heuristic located a media URL.
	ErrExtractionFailed = errors.New("no media URL found")

	// ErrUpstream means the embed source was unreachable or non-2xx.
	ErrUpstream = errors.New("upstream error")

	// ErrInvalidToken means a stream token was malformed or tampered.
	ErrInvalidToken = errors.New("invalid stream token")

	// ErrUnauthorized means a missing or invalid bearer token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned by stores for absent records.
	ErrNotFound = errors.New("not found")
)

// UpstreamStatusError reports a non-2xx status from the embed source so the
// caller can decide whether to pass the status through.
type UpstreamStatusError struct {
	Status int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

// Is makes UpstreamStatusError match ErrUpstream in errors.Is checks.
func (e *UpstreamStatusError) Is(target error) bool {
	return target == ErrUpstream
}
