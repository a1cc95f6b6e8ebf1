// Package scraper implements the extraction engine: it fetches an embed
// page for a numeric video id and applies an ordered set of heuristics to
// locate the direct media URL, title and quality label.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"embed-resolver-go/pkg/config"
	"embed-resolver-go/pkg/httpclient"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/types"

	"golang.org/x/time/rate"
)

// maxPageSize caps how much of an embed page is read. Pages past this are
// not legitimate embed documents.
const maxPageSize = 5 << 20

// sampleURL is served only in the explicit sample-fallback debug mode.
const sampleURL = "https://test-streams.mux.dev/x36xhzz/x36xhzz.m3u8"

// Engine fetches embed pages and extracts direct media URLs.
type Engine struct {
	client         *httpclient.Client
	log            *logging.Logger
	baseURL        string
	titleSuffix    string
	sampleFallback bool
	limiter        *rate.Limiter
}

// New creates an extraction engine.
func New(client *httpclient.Client, cfg *config.Config, log *logging.Logger) *Engine {
	r := cfg.ScrapeRate
	if r <= 0 {
		r = 2
	}
	return &Engine{
		client:         client,
		log:            log.WithComponent("scraper"),
		baseURL:        strings.TrimRight(cfg.EmbedBaseURL, "/"),
		titleSuffix:    cfg.EmbedTitleSuffix,
		sampleFallback: cfg.SampleFallback,
		limiter:        rate.NewLimiter(rate.Limit(r), 1),
	}
}

// SourceURL builds the embed page URL for an id and optional season/episode.
func (e *Engine) SourceURL(videoID, season, episode string) string {
	u := e.baseURL + "/" + videoID
	if season != "" && episode != "" {
		u += "/" + season + "/" + episode
	}
	return u
}

// Extract fetches the embed page and locates the media URL. Id format is
// the resolver's responsibility; the engine only has to survive whatever
// the upstream serves.
func (e *Engine) Extract(ctx context.Context, videoID, season, episode string) (types.ExtractResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return types.ExtractResult{}, err
	}

	sourceURL := e.SourceURL(videoID, season, episode)
	e.log.Debug("fetching embed page", "url", sourceURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return types.ExtractResult{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", httpclient.UserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return types.ExtractResult{}, fmt.Errorf("%w: %v", types.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.ExtractResult{}, &types.UpstreamStatusError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return types.ExtractResult{}, fmt.Errorf("%w: reading page: %v", types.ErrUpstream, err)
	}
	html := string(body)

	mediaURL := e.findMediaURL(ctx, html, sourceURL)
	if mediaURL == "" {
		if e.sampleFallback {
			e.log.Warn("no media URL found, serving sample content", "id", videoID)
			mediaURL = sampleURL
		} else {
			return types.ExtractResult{}, types.ErrExtractionFailed
		}
	}

	return types.ExtractResult{
		Title:   e.extractTitle(html, videoID),
		URL:     mediaURL,
		Quality: extractQuality(html),
	}, nil
}

// ResetClient discards the HTTP session. The resolver calls this before its
// single auto-retry so the retry does not reuse a poisoned connection.
func (e *Engine) ResetClient() {
	e.client.Reset()
}

// extractTitle pulls the page title, strips the embed site suffix and falls
// back to "Video {id}".
func (e *Engine) extractTitle(html, videoID string) string {
	if m := titleRe.FindStringSubmatch(html); len(m) > 1 {
		title := strings.TrimSpace(m[1])
		if e.titleSuffix != "" {
			title = strings.TrimSuffix(title, e.titleSuffix)
			title = strings.TrimSpace(title)
		}
		if title != "" {
			return title
		}
	}
	return fmt.Sprintf("Video %s", videoID)
}

func extractQuality(html string) string {
	if m := qualityRe.FindStringSubmatch(html); len(m) > 1 {
		return m[1]
	}
	return "HD"
}
