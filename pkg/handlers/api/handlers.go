// Package api provides the HTTP handlers for the resolver API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"embed-resolver-go/pkg/auth"
	"embed-resolver-go/pkg/cache"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/settings"
	"embed-resolver-go/pkg/store"
	"embed-resolver-go/pkg/types"
	"embed-resolver-go/pkg/vault"
)

const version = "1.0.0"

// VideoResolver is the resolution pipeline surface the API needs.
type VideoResolver interface {
	Resolve(ctx context.Context, videoID, season, episode string) (types.VideoRecord, error)
	Refresh(ctx context.Context, videoID, season, episode string) (types.VideoRecord, error)
}

// Handlers contains all API handlers.
type Handlers struct {
	resolver VideoResolver
	vault    *vault.Vault
	store    store.Store
	settings *settings.Service
	auth     *auth.Manager
	cache    *cache.Cache
	logStore *logging.Store
	baseURL  string
	log      *logging.Logger
}

// NewHandlers creates a Handlers instance with its dependencies.
func NewHandlers(
	resolver VideoResolver,
	v *vault.Vault,
	st store.Store,
	svc *settings.Service,
	am *auth.Manager,
	c *cache.Cache,
	logStore *logging.Store,
	baseURL string,
	log *logging.Logger,
) *Handlers {
	return &Handlers{
		resolver: resolver,
		vault:    v,
		store:    st,
		settings: svc,
		auth:     am,
		cache:    c,
		logStore: logStore,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		log:      log.WithComponent("api"),
	}
}

// RegisterRoutes registers all API routes on the router.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/api/status", h.handleStatus)
	r.Post("/api/auth/login", h.handleLogin)
	r.Get("/api/video/{id}", h.handleVideo)
	r.Get("/api/domains", h.handleListDomains)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Post("/api/auth/logout", h.handleLogout)
		r.Get("/api/videos", h.handleListVideos)

		r.Get("/api/settings", h.handleGetSettings)
		r.Put("/api/settings", h.handlePutSettings)

		r.Post("/api/domains", h.handleAddDomain)
		r.Put("/api/domains/{domain}", h.handleUpdateDomain)
		r.Delete("/api/domains/{domain}", h.handleDeleteDomain)

		r.Get("/api/logs", h.handleGetLogs)
		r.Post("/api/logs", h.handleAppendLog)
		r.Delete("/api/logs", h.handleClearLogs)
		r.Get("/api/logs/stream", h.handleLogStream)

		r.Post("/api/cache/clear", h.handleCacheClear)
		r.Post("/api/cache/refresh/{id}", h.handleCacheRefresh)
		r.Post("/api/cache/refresh/{id}/{season}/{episode}", h.handleCacheRefresh)
	})
}

// requireAuth gates admin endpoints behind a bearer session token.
func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.auth.Validate(bearerToken(r)) {
			h.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return r.Header.Get("X-Session-Token")
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "running",
		"version":      version,
		"authEnabled":  h.auth.Enabled(),
		"cacheEntries": h.cache.Len(),
	})
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, ok := h.auth.Login(req.Password)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(bearerToken(r))
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handleVideo resolves a video id and answers with the record, its direct
// URL replaced by an opaque stream proxy URL.
func (h *Handlers) handleVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	season := r.URL.Query().Get("season")
	episode := r.URL.Query().Get("episode")

	rec, err := h.resolver.Resolve(r.Context(), id, season, episode)
	if err != nil {
		h.writeResolveError(w, err)
		return
	}
	h.writeRecord(w, r, rec)
}

func (h *Handlers) writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidVideoID):
		h.writeError(w, http.StatusBadRequest, "invalid video id")
	case errors.Is(err, types.ErrUpstream):
		h.writeError(w, http.StatusBadGateway, "embed source unavailable")
	case errors.Is(err, types.ErrExtractionFailed):
		h.writeError(w, http.StatusBadGateway, "no media url found")
	default:
		h.writeError(w, http.StatusInternalServerError, "resolution failed")
	}
}

// writeRecord tokenizes the media URL so clients never see it directly.
func (h *Handlers) writeRecord(w http.ResponseWriter, r *http.Request, rec types.VideoRecord) {
	token, err := h.vault.Encrypt(rec.URL)
	if err != nil {
		h.log.WithError(err).Error("failed to tokenize media url", "video_id", rec.VideoID)
		h.writeError(w, http.StatusInternalServerError, "resolution failed")
		return
	}
	rec.URL = h.externalBase(r) + "/stream/" + token
	h.writeJSON(w, http.StatusOK, rec)
}

// externalBase prefers the configured base URL and falls back to the
// request's own host.
func (h *Handlers) externalBase(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (h *Handlers) handleListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.store.ListVideos()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	h.writeJSON(w, http.StatusOK, videos)
}

func (h *Handlers) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.settings.Current())
}

func (h *Handlers) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	applied, err := h.settings.Update(req)
	if err != nil {
		h.log.WithError(err).Error("failed to update settings")
		h.writeError(w, http.StatusInternalServerError, "failed to persist settings")
		return
	}
	h.writeJSON(w, http.StatusOK, applied)
}

func (h *Handlers) handleListDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := h.store.ListDomains()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list domains")
		return
	}
	h.writeJSON(w, http.StatusOK, domains)
}

func (h *Handlers) handleAddDomain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
		Active *bool  `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	domain := strings.ToLower(strings.TrimSpace(req.Domain))
	if domain == "" || strings.ContainsAny(domain, " /") {
		h.writeError(w, http.StatusBadRequest, "invalid domain")
		return
	}

	rec := types.DomainRecord{Domain: domain, Active: true, AddedAt: time.Now().UTC()}
	if req.Active != nil {
		rec.Active = *req.Active
	}
	if err := h.store.PutDomain(rec); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to save domain")
		return
	}
	h.log.Info("domain saved", "domain", rec.Domain, "active", rec.Active)
	h.writeJSON(w, http.StatusCreated, rec)
}

// handleUpdateDomain toggles an existing domain's active flag.
func (h *Handlers) handleUpdateDomain(w http.ResponseWriter, r *http.Request) {
	domain := strings.ToLower(chi.URLParam(r, "domain"))

	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	existing, found := h.findDomain(domain)
	if !found {
		h.writeError(w, http.StatusNotFound, "domain not found")
		return
	}
	existing.Active = req.Active
	if err := h.store.PutDomain(existing); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to save domain")
		return
	}
	h.log.Info("domain updated", "domain", domain, "active", req.Active)
	h.writeJSON(w, http.StatusOK, existing)
}

func (h *Handlers) findDomain(domain string) (types.DomainRecord, bool) {
	list, err := h.store.ListDomains()
	if err != nil {
		return types.DomainRecord{}, false
	}
	for _, d := range list {
		if d.Domain == domain {
			return d, true
		}
	}
	return types.DomainRecord{}, false
}

func (h *Handlers) handleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	// Stored domains are lowercase, so the lookup key must be too.
	domain := strings.ToLower(chi.URLParam(r, "domain"))
	if err := h.store.DeleteDomain(domain); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "domain not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to delete domain")
		return
	}
	h.log.Info("domain deleted", "domain", domain)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	h.writeJSON(w, http.StatusOK, h.logStore.List(limit))
}

// handleAppendLog lets the admin frontend push its own entries into the
// shared log buffer.
func (h *Handlers) handleAppendLog(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level   string `json:"level"`
		Source  string `json:"source"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	level := strings.ToUpper(req.Level)
	switch level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		level = "INFO"
	}
	source := req.Source
	if source == "" {
		source = "frontend"
	}

	entry := h.logStore.Append(level, source, req.Message)
	h.writeJSON(w, http.StatusCreated, entry)
}

func (h *Handlers) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	h.logStore.Clear()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handlers) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleCacheRefresh drops the cached entry and re-resolves immediately.
func (h *Handlers) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	season := chi.URLParam(r, "season")
	if season == "" {
		season = r.URL.Query().Get("season")
	}
	episode := chi.URLParam(r, "episode")
	if episode == "" {
		episode = r.URL.Query().Get("episode")
	}

	rec, err := h.resolver.Refresh(r.Context(), id, season, episode)
	if err != nil {
		h.writeResolveError(w, err)
		return
	}
	h.writeRecord(w, r, rec)
}

// Helper methods

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: message})
}
