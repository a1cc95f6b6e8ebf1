// Package streams implements the range-aware stream proxy. Clients present
// an opaque token, the handler decrypts it into the upstream media URL and
// relays bytes without ever exposing that URL.
package streams

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"embed-resolver-go/pkg/httpclient"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/metrics"
	"embed-resolver-go/pkg/vault"
)

// Handler proxies media streams addressed by vault tokens.
type Handler struct {
	client *httpclient.Client
	vault  *vault.Vault
	log    *logging.Logger
}

// NewHandler creates a stream proxy handler.
func NewHandler(client *httpclient.Client, v *vault.Vault, log *logging.Logger) *Handler {
	return &Handler{
		client: client,
		vault:  v,
		log:    log.WithComponent("stream"),
	}
}

// RegisterRoutes registers the stream routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{token}", h.handleStream)
	r.Head("/stream/{token}", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	mediaURL, err := h.vault.Decrypt(token)
	if err != nil {
		h.log.Warn("rejected stream token", "remote_addr", r.RemoteAddr)
		metrics.StreamRequestsTotal.WithLabelValues("bad_token").Inc()
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	upReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, mediaURL, nil)
	if err != nil {
		h.upstreamFailure(w, err)
		return
	}
	upReq.Header.Set("User-Agent", httpclient.UserAgent())
	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		upReq.Header.Set("Range", rangeHeader)
	}

	resp, err := h.client.Do(upReq)
	if err != nil {
		h.upstreamFailure(w, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		h.log.Warn("upstream refused stream", "status", resp.StatusCode)
		metrics.StreamRequestsTotal.WithLabelValues("upstream_error").Inc()
		w.WriteHeader(resp.StatusCode)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = guessContentType(mediaURL)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	body := io.Reader(resp.Body)
	status := resp.StatusCode
	rangeHeader := r.Header.Get("Range")

	switch {
	case status == http.StatusPartialContent:
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			w.Header().Set("Content-Length", cl)
		}
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			w.Header().Set("Content-Range", cr)
		}
	case rangeHeader != "" && resp.ContentLength > 0:
		// Upstream ignored the range, satisfy it here.
		start, end, ok := ParseRange(rangeHeader, resp.ContentLength)
		if ok {
			if _, err := io.CopyN(io.Discard, resp.Body, start); err != nil {
				h.upstreamFailure(w, err)
				return
			}
			body = io.LimitReader(resp.Body, end-start+1)
			status = http.StatusPartialContent
			w.Header().Set("Content-Range", ContentRange(start, end, resp.ContentLength))
			w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		}
	default:
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			w.Header().Set("Content-Length", cl)
		}
	}

	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		metrics.StreamRequestsTotal.WithLabelValues("ok").Inc()
		return
	}

	n, copyErr := io.Copy(w, body)
	metrics.StreamBytesTotal.Add(float64(n))
	if copyErr != nil {
		// Client disconnects are routine for video playback.
		h.log.Debug("stream relay ended early", "bytes", n, "error", copyErr)
	}

	result := "ok"
	if status == http.StatusPartialContent {
		result = "partial"
	}
	metrics.StreamRequestsTotal.WithLabelValues(result).Inc()
}

// upstreamFailure answers with a generic error. The upstream URL must not
// appear in anything sent to the client.
func (h *Handler) upstreamFailure(w http.ResponseWriter, err error) {
	h.log.WithError(err).Error("upstream fetch failed")
	metrics.StreamRequestsTotal.WithLabelValues("upstream_error").Inc()
	http.Error(w, "upstream fetch failed", http.StatusInternalServerError)
}

// ParseRange parses a single-range header like "bytes=0-1023" against a
// known size. An open end ("bytes=500-") runs to the last byte; a suffix
// range ("bytes=-500") covers the final 500 bytes.
func ParseRange(header string, size int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false
	}
	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}

	if startStr == "" {
		// Suffix range.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}
	end = size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, true
}

// ContentRange formats the Content-Range header for a satisfied range.
func ContentRange(start, end, size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", start, end, size)
}

// guessContentType guesses the content type based on file extension.
func guessContentType(urlStr string) string {
	if i := strings.IndexAny(urlStr, "?#"); i >= 0 {
		urlStr = urlStr[:i]
	}
	ext := strings.ToLower(path.Ext(urlStr))

	contentTypes := map[string]string{
		".mp4":  "video/mp4",
		".mkv":  "video/x-matroska",
		".webm": "video/webm",
		".mov":  "video/quicktime",
		".m3u8": "application/vnd.apple.mpegurl",
		".ts":   "video/MP2T",
		".m4s":  "video/iso.segment",
		".m4a":  "audio/mp4",
		".aac":  "audio/aac",
		".mp3":  "audio/mpeg",
	}

	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
