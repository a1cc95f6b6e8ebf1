// Package httpclient provides a configurable HTTP client with proxy support.
//
// Embed hosts behind TLS fingerprint checks are fetched through a uTLS
// round-tripper with a Chrome hello; everything else uses a pooled default
// transport. Reset discards all live clients, which is how the resolver
// starts a clean session before an extraction retry.
package httpclient

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"embed-resolver-go/pkg/config"
	"embed-resolver-go/pkg/logging"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Client wraps http.Client with fingerprint and proxy routing.
type Client struct {
	mu               sync.RWMutex
	defaultClient    *http.Client
	utlsClient       *http.Client
	proxyClients     map[string]*http.Client
	fingerprintHosts []string
	globalProxies    []string
	log              *logging.Logger
}

// New creates a new HTTP client with the given configuration.
func New(cfg *config.Config, log *logging.Logger) *Client {
	c := &Client{
		proxyClients:     make(map[string]*http.Client),
		fingerprintHosts: cfg.FingerprintHosts,
		globalProxies:    cfg.GlobalProxies,
		log:              log.WithComponent("httpclient"),
	}
	c.defaultClient = newPooledClient()
	c.utlsClient = &http.Client{Transport: newUTLSRoundTripper()}
	return c
}

// Reset discards all live clients and their pooled connections. The next
// request starts from a fresh session.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.defaultClient.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	c.defaultClient = newPooledClient()
	c.utlsClient = &http.Client{Transport: newUTLSRoundTripper()}
	c.proxyClients = make(map[string]*http.Client)
	c.log.Debug("http clients reset")
}

// UserAgent returns the browser user agent used for embed page fetches.
func UserAgent() string {
	return defaultUserAgent
}

// newPooledClient builds a client with no overall timeout. Client.Timeout
// also bounds body reads, which would cut long-running streams; only dialing,
// the TLS handshake and the header wait are bounded. Callers bound the rest
// with request contexts.
func newPooledClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext:           ipv4DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}
}

// ipv4DialContext forces IPv4-only connections. Avoids broken IPv6 paths in
// container environments.
func ipv4DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network == "tcp" {
		network = "tcp4"
	}
	d := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 60 * time.Second,
	}
	return d.DialContext(ctx, network, addr)
}

// Do executes an HTTP request, routing through the appropriate client.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.clientForURL(req.URL.String()).Do(req)
}

// clientForURL picks a client based on fingerprint and proxy routing rules.
func (c *Client) clientForURL(targetURL string) *http.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.needsFingerprint(targetURL) {
		c.log.Debug("using fingerprint client", "url", targetURL)
		return c.utlsClient
	}

	if len(c.globalProxies) > 0 {
		proxyURL := c.globalProxies[0]
		if client, ok := c.proxyClients[proxyURL]; ok {
			return client
		}
	}

	return c.defaultClient
}

// EnsureProxyClients builds clients for the configured proxies up front so
// the first proxied request does not pay the setup cost.
func (c *Client) EnsureProxyClients() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.globalProxies {
		if _, ok := c.proxyClients[p]; !ok {
			c.proxyClients[p] = c.createProxyClient(p)
		}
	}
}

// needsFingerprint returns true if the URL's host requires a browser-like
// TLS fingerprint. Callers hold at least a read lock.
func (c *Client) needsFingerprint(targetURL string) bool {
	lower := strings.ToLower(targetURL)
	for _, host := range c.fingerprintHosts {
		if strings.Contains(lower, strings.ToLower(host)) {
			return true
		}
	}
	return false
}

// createProxyClient creates a new HTTP client for the given proxy URL.
func (c *Client) createProxyClient(proxyURL string) *http.Client {
	transport := &http.Transport{
		DialContext:           ipv4DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		c.log.Error("failed to parse proxy URL", "url", proxyURL, "error", err)
		return c.defaultClient
	}

	switch parsedURL.Scheme {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(parsedURL, proxy.Direct)
		if err != nil {
			c.log.Error("failed to create SOCKS5 dialer", "error", err)
			return c.defaultClient
		}
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.Dial = dialer.Dial
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	default:
		c.log.Warn("unsupported proxy scheme", "scheme", parsedURL.Scheme)
		return c.defaultClient
	}

	return &http.Client{Transport: transport}
}

// utlsRoundTripper implements http.RoundTripper with utls and HTTP/2 support.
type utlsRoundTripper struct {
	dialer      *net.Dialer
	h2Transport *http2.Transport
}

func newUTLSRoundTripper() *utlsRoundTripper {
	return &utlsRoundTripper{
		dialer: &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 60 * time.Second,
		},
		h2Transport: &http2.Transport{
			DisableCompression: false,
			AllowHTTP:          false,
		},
	}
}

func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// Only handle HTTPS
	if req.URL.Scheme != "https" {
		return http.DefaultTransport.RoundTrip(req)
	}

	addr := req.URL.Host
	if !strings.Contains(addr, ":") {
		addr = addr + ":443"
	}

	conn, err := t.dialer.DialContext(req.Context(), "tcp4", addr)
	if err != nil {
		return nil, err
	}

	tlsConfig := &utls.Config{
		ServerName: req.URL.Hostname(),
	}

	// Chrome 120 hello with HTTP/2
	utlsConn := utls.UClient(conn, tlsConfig, utls.HelloChrome_120)
	if err := utlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, err
	}

	if utlsConn.ConnectionState().NegotiatedProtocol == "h2" {
		h2Conn, err := t.h2Transport.NewClientConn(utlsConn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return h2Conn.RoundTrip(req)
	}

	return t.doHTTP1Request(utlsConn, req)
}

func (t *utlsRoundTripper) doHTTP1Request(conn net.Conn, req *http.Request) (*http.Response, error) {
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// Wrap body to close connection when done
	resp.Body = &connCloser{resp.Body, conn}
	return resp, nil
}

type connCloser struct {
	io.ReadCloser
	conn net.Conn
}

func (c *connCloser) Close() error {
	c.ReadCloser.Close()
	return c.conn.Close()
}
