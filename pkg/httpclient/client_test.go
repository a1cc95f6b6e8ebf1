package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"embed-resolver-go/pkg/config"
	"embed-resolver-go/pkg/logging"
)

func newTestClient(cfg *config.Config) *Client {
	return New(cfg, logging.New("error", false, io.Discard))
}

func TestClient_Do(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	c := newTestClient(&config.Config{})

	req, err := http.NewRequest(http.MethodGet, upstream.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}
}

func TestClient_needsFingerprint(t *testing.T) {
	c := newTestClient(&config.Config{
		FingerprintHosts: []string{"protected.example", "cdn.shield"},
	})

	tests := []struct {
		url  string
		want bool
	}{
		{"https://protected.example/e/12345", true},
		{"https://sub.cdn.shield/v.mp4", true},
		{"https://open.example/e/12345", false},
		{"https://PROTECTED.EXAMPLE/e/1", true},
	}

	for _, tt := range tests {
		if got := c.needsFingerprint(tt.url); got != tt.want {
			t.Errorf("needsFingerprint(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestClient_ResetReplacesClients(t *testing.T) {
	c := newTestClient(&config.Config{})

	before := c.defaultClient
	c.Reset()
	if c.defaultClient == before {
		t.Error("Reset should replace the default client")
	}
	if len(c.proxyClients) != 0 {
		t.Error("Reset should drop cached proxy clients")
	}
}

// A Client.Timeout would bound body reads too and cut streams relayed for
// longer than the timeout, so none of the clients may carry one. Slow
// upstreams are still caught while waiting for response headers.
func TestClient_NoOverallTimeout(t *testing.T) {
	c := newTestClient(&config.Config{})

	check := func(name string, client *http.Client) {
		t.Helper()
		if client.Timeout != 0 {
			t.Errorf("%s client has Timeout = %v, body reads must be unbounded", name, client.Timeout)
		}
	}
	check("default", c.defaultClient)
	check("utls", c.utlsClient)

	c.Reset()
	check("default after reset", c.defaultClient)
	check("utls after reset", c.utlsClient)

	check("proxy", c.createProxyClient("http://proxy.example:8080"))

	tr, ok := c.defaultClient.Transport.(*http.Transport)
	if !ok {
		t.Fatal("default client transport is not *http.Transport")
	}
	if tr.ResponseHeaderTimeout == 0 {
		t.Error("header wait must stay bounded on the transport")
	}
}

func TestClient_UnsupportedProxySchemeFallsBack(t *testing.T) {
	c := newTestClient(&config.Config{})

	client := c.createProxyClient("ftp://proxy.example:21")
	if client != c.defaultClient {
		t.Error("unsupported proxy scheme should fall back to the default client")
	}
}
