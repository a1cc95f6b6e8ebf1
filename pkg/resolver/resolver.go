// Package resolver orchestrates video resolution: validate the id, consult
// the cache and the record store, fall back to live extraction, and persist
// what extraction finds.
package resolver

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"embed-resolver-go/pkg/cache"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/metrics"
	"embed-resolver-go/pkg/settings"
	"embed-resolver-go/pkg/store"
	"embed-resolver-go/pkg/types"
)

var videoIDRe = regexp.MustCompile(`^\d+$`)

// Engine extracts a media URL from the embed page for a video id.
type Engine interface {
	Extract(ctx context.Context, videoID, season, episode string) (types.ExtractResult, error)
	// ResetClient discards the HTTP client state before a retry, so the
	// retry starts from fresh connections and a fresh TLS session.
	ResetClient()
}

// Publisher receives freshly resolved records. Satisfied by store.Mirror.
type Publisher interface {
	Publish(rec types.VideoRecord)
}

// Resolver is the resolution pipeline. Records are keyed by the composite
// id ("123" for movies, "123:2:5" for a series episode) in both the cache
// and the store.
type Resolver struct {
	engine   Engine
	cache    *cache.Cache
	store    store.Store
	settings *settings.Service
	mirror   Publisher
	log      *logging.Logger
	now      func() time.Time
}

func New(engine Engine, c *cache.Cache, st store.Store, svc *settings.Service, mirror Publisher, log *logging.Logger) *Resolver {
	return &Resolver{
		engine:   engine,
		cache:    c,
		store:    st,
		settings: svc,
		mirror:   mirror,
		log:      log.WithComponent("resolver"),
		now:      time.Now,
	}
}

// Resolve returns the record for a video id, serving from the cache or the
// store when possible and extracting otherwise.
func (r *Resolver) Resolve(ctx context.Context, videoID, season, episode string) (types.VideoRecord, error) {
	return r.resolve(ctx, videoID, season, episode, false, false)
}

// Refresh drops the cached entry and forces a fresh extraction, ignoring
// any stored record.
func (r *Resolver) Refresh(ctx context.Context, videoID, season, episode string) (types.VideoRecord, error) {
	r.cache.Invalidate(cache.Key(videoID, season, episode))
	return r.resolve(ctx, videoID, season, episode, true, false)
}

func (r *Resolver) resolve(ctx context.Context, videoID, season, episode string, force, retried bool) (types.VideoRecord, error) {
	if !videoIDRe.MatchString(videoID) {
		r.log.Error("rejected video id", "video_id", videoID)
		metrics.ResolvesTotal.WithLabelValues("failed").Inc()
		return types.VideoRecord{}, types.ErrInvalidVideoID
	}

	key := cache.Key(videoID, season, episode)
	cfg := r.settings.Current()

	if !force {
		if cfg.CacheEnabled {
			if rec, ok := r.cache.Get(key); ok {
				r.log.Info("cache hit", "key", key)
				metrics.ResolvesTotal.WithLabelValues("cache_hit").Inc()
				_ = r.store.TouchVideo(key)
				return rec, nil
			}
		}

		if rec, err := r.store.GetVideo(key); err == nil {
			if r.urlFresh(rec.URL) {
				r.log.Info("store hit", "key", key)
				metrics.ResolvesTotal.WithLabelValues("store_hit").Inc()
				_ = r.store.TouchVideo(key)
				if cfg.CacheEnabled {
					r.cache.Set(key, rec, r.settings.CacheTTL())
				}
				return rec, nil
			}
			r.log.Info("stored url expired, re-extracting", "key", key)
		}
	}

	extractCtx, cancel := context.WithTimeout(ctx, r.settings.Timeout())
	defer cancel()

	start := r.now()
	res, err := r.engine.Extract(extractCtx, videoID, season, episode)
	metrics.ExtractionDuration.Observe(r.now().Sub(start).Seconds())
	if err != nil {
		if !retried && cfg.AutoRetry && retryable(err) {
			r.log.WithError(err).Warn("extraction failed, retrying with a fresh client", "key", key)
			r.engine.ResetClient()
			return r.resolve(ctx, videoID, season, episode, force, true)
		}
		r.log.WithError(err).Error("extraction failed", "key", key)
		metrics.ResolvesTotal.WithLabelValues("failed").Inc()
		return types.VideoRecord{}, err
	}

	now := r.now().UTC()
	rec := types.VideoRecord{
		VideoID:      key,
		Title:        res.Title,
		URL:          res.URL,
		Quality:      res.Quality,
		ResolvedAt:   now,
		LastAccessed: now,
		AccessCount:  1,
	}
	if prev, err := r.store.GetVideo(key); err == nil {
		rec.AccessCount = prev.AccessCount + 1
	}

	if err := r.store.PutVideo(rec); err != nil {
		r.log.WithError(err).Error("failed to persist record", "key", key)
	}
	r.mirror.Publish(rec)
	if cfg.CacheEnabled {
		r.cache.Set(key, rec, r.settings.CacheTTL())
	}

	outcome := "extracted"
	if retried {
		outcome = "retry_ok"
	}
	metrics.ResolvesTotal.WithLabelValues(outcome).Inc()
	r.log.Info("resolved", "key", key, "title", rec.Title, "quality", rec.Quality, "retried", retried)
	return rec, nil
}

// retryable reports whether a second attempt with a fresh client could
// plausibly succeed. Context errors and bad input are terminal.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, types.ErrExtractionFailed) ||
		errors.Is(err, types.ErrUpstream) ||
		errors.Is(err, context.DeadlineExceeded)
}

// urlFresh checks the expires= query parameter a signed media URL carries.
// URLs without one, or with an unparseable value, are assumed fresh.
func (r *Resolver) urlFresh(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	exp := u.Query().Get("expires")
	if exp == "" {
		return true
	}
	epoch, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return true
	}
	return r.now().Unix() < epoch
}
