package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"embed-resolver-go/pkg/auth"
	"embed-resolver-go/pkg/cache"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/settings"
	"embed-resolver-go/pkg/store"
	"embed-resolver-go/pkg/types"
	"embed-resolver-go/pkg/vault"
)

type fakeResolver struct {
	rec        types.VideoRecord
	err        error
	refreshed  bool
	lastID     string
	lastSeason string
}

func (f *fakeResolver) Resolve(ctx context.Context, id, season, episode string) (types.VideoRecord, error) {
	f.lastID, f.lastSeason = id, season
	return f.rec, f.err
}

func (f *fakeResolver) Refresh(ctx context.Context, id, season, episode string) (types.VideoRecord, error) {
	f.refreshed = true
	f.lastID = id
	return f.rec, f.err
}

type harness struct {
	router   chi.Router
	resolver *fakeResolver
	vault    *vault.Vault
	store    *store.Memory
	logStore *logging.Store
	token    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logging.New("error", false, io.Discard)

	fr := &fakeResolver{rec: types.VideoRecord{
		VideoID:     "123",
		Title:       "Big Movie",
		URL:         "https://cdn.example/v.mp4?expires=4102444800",
		Quality:     "1080p",
		ResolvedAt:  time.Now().UTC(),
		AccessCount: 1,
	}}

	v, err := vault.New("", log)
	if err != nil {
		t.Fatal(err)
	}
	st := store.NewMemory()
	logStore := logging.NewStore(100)
	am := auth.New("s3cret", log)
	token, _ := am.Login("s3cret")

	h := NewHandlers(fr, v, st, settings.NewService(st, log), am, cache.New(log), logStore, "http://resolver.local", log)
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	return &harness{router: r, resolver: fr, vault: v, store: st, logStore: logStore, token: token}
}

func (h *harness) do(t *testing.T, method, path string, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if authed {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return env
}

func TestHandleStatus(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/status", "", false)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Error("expected success envelope")
	}
	data := env.Data.(map[string]interface{})
	if data["status"] != "running" || data["authEnabled"] != true {
		t.Errorf("data = %v", data)
	}
}

func TestHandleLogin(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/auth/login", `{"password":"wrong"}`, false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/api/auth/login", `{"password":"s3cret"}`, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Data.(map[string]interface{})["token"] == "" {
		t.Error("login did not return a token")
	}
}

func TestHandleVideo_TokenizesURL(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/video/123", "", false)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]interface{})

	streamURL, _ := data["url"].(string)
	if !strings.HasPrefix(streamURL, "http://resolver.local/stream/") {
		t.Fatalf("url = %q, want a stream proxy URL", streamURL)
	}
	if strings.Contains(streamURL, "cdn.example") {
		t.Error("direct media URL leaked into the response")
	}

	// The embedded token must decrypt back to the original URL.
	token := strings.TrimPrefix(streamURL, "http://resolver.local/stream/")
	plain, err := h.vault.Decrypt(token)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if plain != "https://cdn.example/v.mp4?expires=4102444800" {
		t.Errorf("decrypted = %q", plain)
	}
}

func TestHandleVideo_SeasonEpisodeForwarded(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/api/video/123?season=2&episode=5", "", false)
	if h.resolver.lastID != "123" || h.resolver.lastSeason != "2" {
		t.Errorf("resolver got id=%q season=%q", h.resolver.lastID, h.resolver.lastSeason)
	}
}

func TestHandleVideo_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid id", types.ErrInvalidVideoID, http.StatusBadRequest},
		{"upstream down", &types.UpstreamStatusError{Status: 503}, http.StatusBadGateway},
		{"nothing found", types.ErrExtractionFailed, http.StatusBadGateway},
		{"unexpected", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.resolver.err = tt.err
			rec := h.do(t, http.MethodGet, "/api/video/123", "", false)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if env := decodeEnvelope(t, rec); env.Success {
				t.Error("error responses must not claim success")
			}
		})
	}
}

func TestAdminEndpointsRequireAuth(t *testing.T) {
	h := newHarness(t)
	paths := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/settings"},
		{http.MethodPut, "/api/settings"},
		{http.MethodPost, "/api/domains"},
		{http.MethodGet, "/api/logs"},
		{http.MethodPost, "/api/logs"},
		{http.MethodPost, "/api/cache/clear"},
		{http.MethodPost, "/api/cache/refresh/123"},
	}
	for _, p := range paths {
		rec := h.do(t, p.method, p.path, "", false)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestHandleSettings_UpdateClamps(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPut, "/api/settings",
		`{"timeout":900,"autoRetry":false,"cacheEnabled":true,"cacheTtl":10}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]interface{})
	if data["timeout"].(float64) != settings.MaxTimeout {
		t.Errorf("timeout = %v, want clamped to %d", data["timeout"], settings.MaxTimeout)
	}
	if data["cacheTtl"].(float64) != settings.MinCacheTTL {
		t.Errorf("cacheTtl = %v, want clamped to %d", data["cacheTtl"], settings.MinCacheTTL)
	}

	rec = h.do(t, http.MethodGet, "/api/settings", "", true)
	env = decodeEnvelope(t, rec)
	if env.Data.(map[string]interface{})["autoRetry"] != false {
		t.Error("updated settings not visible on GET")
	}
}

func TestHandleDomains_CRUD(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/domains", `{"domain":"Player.Example.COM"}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d (body %s)", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/api/domains", "", true)
	env := decodeEnvelope(t, rec)
	list := env.Data.([]interface{})
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	if list[0].(map[string]interface{})["domain"] != "player.example.com" {
		t.Errorf("domain not lowercased: %v", list[0])
	}

	rec = h.do(t, http.MethodPut, "/api/domains/player.example.com", `{"active":false}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d (body %s)", rec.Code, rec.Body.String())
	}
	env = decodeEnvelope(t, rec)
	if env.Data.(map[string]interface{})["active"] != false {
		t.Error("update did not deactivate the domain")
	}

	rec = h.do(t, http.MethodPut, "/api/domains/missing.example.com", `{"active":true}`, true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("update missing domain status = %d, want 404", rec.Code)
	}

	// Delete matches the stored lowercase form regardless of request casing.
	rec = h.do(t, http.MethodDelete, "/api/domains/Player.Example.COM", "", true)
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec = h.do(t, http.MethodDelete, "/api/domains/player.example.com", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/api/domains", `{"domain":""}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty domain status = %d, want 400", rec.Code)
	}
}

func TestHandleLogs(t *testing.T) {
	h := newHarness(t)
	h.logStore.Append("INFO", "test", "one")
	h.logStore.Append("WARN", "test", "two")

	rec := h.do(t, http.MethodGet, "/api/logs?limit=1", "", true)
	env := decodeEnvelope(t, rec)
	list := env.Data.([]interface{})
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	if list[0].(map[string]interface{})["message"] != "two" {
		t.Errorf("limit should keep the newest entry, got %v", list[0])
	}

	rec = h.do(t, http.MethodGet, "/api/logs?limit=bogus", "", true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}

	h.do(t, http.MethodDelete, "/api/logs", "", true)
	if got := h.logStore.Len(); got != 1 {
		t.Errorf("after clear Len() = %d, want just the clear marker", got)
	}
}

func TestHandleAppendLog(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/logs", `{"level":"warn","message":"player stalled"}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	entries := h.logStore.List(0)
	if len(entries) != 1 {
		t.Fatalf("Len = %d, want 1", len(entries))
	}
	if entries[0].Level != "WARN" || entries[0].Source != "frontend" || entries[0].Message != "player stalled" {
		t.Errorf("entry = %+v", entries[0])
	}

	rec = h.do(t, http.MethodPost, "/api/logs", `{"level":"info"}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message status = %d, want 400", rec.Code)
	}
}

func TestHandleCacheRefresh_PathSeasonEpisode(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/cache/refresh/123/2/5", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if !h.resolver.refreshed || h.resolver.lastID != "123" {
		t.Errorf("refresh not forwarded, resolver = %+v", h.resolver)
	}
}

func TestHandleCacheRefresh(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/cache/refresh/123", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if !h.resolver.refreshed {
		t.Error("refresh endpoint did not call Refresh")
	}
}

func TestHandleLogStream_WebSocket(t *testing.T) {
	h := newHarness(t)
	h.logStore.Append("INFO", "test", "backlog")

	srv := httptest.NewServer(h.router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/logs/stream"
	header := http.Header{"Authorization": []string{"Bearer " + h.token}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v (resp %v)", err, resp)
	}
	defer conn.Close()

	var entry logging.Entry
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&entry); err != nil {
		t.Fatalf("read backlog entry: %v", err)
	}
	if entry.Message != "backlog" {
		t.Errorf("entry = %+v", entry)
	}

	// A live entry arrives over the same connection.
	h.logStore.Append("INFO", "test", "live")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&entry); err != nil {
		t.Fatalf("read live entry: %v", err)
	}
	if entry.Message != "live" {
		t.Errorf("entry = %+v", entry)
	}
}
