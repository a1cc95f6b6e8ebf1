package scraper

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"embed-resolver-go/pkg/httpclient"
	"embed-resolver-go/pkg/urlutil"
)

var (
	anchorRe      = regexp.MustCompile(`(?is)<a\b[^>]*>`)
	hrefRe        = regexp.MustCompile(`(?i)href\s*=\s*["']([^"']+)["']`)
	sourceTagRe   = regexp.MustCompile(`(?i)<source[^>]+src\s*=\s*["']([^"']+)["']`)
	quotedMediaRe = regexp.MustCompile(`["']((?:https?:)?//[^"'\s]+\.(?:mp4|m3u8|mkv|webm|mov)(?:\?[^"'\s]*)?)["']`)
	signedLinkRe  = regexp.MustCompile(`(?i)href\s*=\s*["']([^"']*\.(?:mp4|m3u8|mkv|webm|mov)[^"']*signature=[^"']*)["']`)
	scriptURLRe   = regexp.MustCompile(`videoUrl\s*=\s*\\?["']([^"']*expires=[^"']*?)\\?["']`)
	titleRe       = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	qualityRe     = regexp.MustCompile(`(?i)data-quality\s*=\s*["']([^"']+)["']`)
)

var mediaExtensions = []string{".mp4", ".m3u8", ".mkv", ".webm", ".mov"}

var signatureParams = []string{"signature=", "token=", "expires="}

// escapeNormalizer undoes the escaping embed pages apply to URL literals
// inside inline script.
var escapeNormalizer = strings.NewReplacer(
	`\/`, "/",
	`\u0026`, "&",
	`\x26`, "&",
	`\\`, `\`,
)

// findMediaURL applies the extraction heuristics in priority order and
// returns the first match, or "" when nothing applies.
func (e *Engine) findMediaURL(ctx context.Context, html, sourceURL string) string {
	// 1. Explicit download button with a signed media href.
	if u := e.downloadButtonURL(ctx, html, sourceURL); u != "" {
		return u
	}

	// 2. <source src="..."> tag.
	if m := sourceTagRe.FindStringSubmatch(html); len(m) > 1 {
		return urlutil.ResolveURL(m[1], sourceURL)
	}

	// 3. Any quoted URL carrying a media extension.
	if m := quotedMediaRe.FindStringSubmatch(html); len(m) > 1 {
		return urlutil.ResolveURL(m[1], sourceURL)
	}

	// 4. Signed download link anywhere in the page.
	if m := signedLinkRe.FindStringSubmatch(html); len(m) > 1 {
		return urlutil.ResolveURL(m[1], sourceURL)
	}

	// 5. videoUrl = "...expires=..." literal in inline script. Packed
	// scripts are unpacked first so the literal becomes visible.
	scanned := html
	if unpacked, ok := e.unpackScripts(html); ok {
		scanned += "\n" + unpacked
	}
	if m := scriptURLRe.FindStringSubmatch(scanned); len(m) > 1 {
		return urlutil.ResolveURL(escapeNormalizer.Replace(m[1]), sourceURL)
	}

	return ""
}

// downloadButtonURL scans anchor tags mentioning "download" for a signed
// media href, resolves it against the source origin and follows redirects
// to the final URL.
func (e *Engine) downloadButtonURL(ctx context.Context, html, sourceURL string) string {
	for _, tag := range anchorRe.FindAllString(html, -1) {
		if !strings.Contains(strings.ToLower(tag), "download") {
			continue
		}
		m := hrefRe.FindStringSubmatch(tag)
		if len(m) < 2 {
			continue
		}
		href := m[1]
		if !hasMediaExtension(href) || !hasSignatureParam(href) {
			continue
		}
		resolved := urlutil.ResolveURL(href, sourceURL)
		return e.resolveFinalURL(ctx, resolved)
	}
	return ""
}

// resolveFinalURL follows redirects with a HEAD request and returns the
// final URL. Falls back to the input when the upstream refuses HEAD.
func (e *Engine) resolveFinalURL(ctx context.Context, rawURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return rawURL
	}
	req.Header.Set("User-Agent", httpclient.UserAgent())

	resp, err := e.client.Do(req)
	if err != nil {
		return rawURL
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return rawURL
	}
	if final := resp.Request.URL.String(); final != "" {
		return final
	}
	return rawURL
}

func hasMediaExtension(u string) bool {
	lower := strings.ToLower(u)
	for _, ext := range mediaExtensions {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

func hasSignatureParam(u string) bool {
	lower := strings.ToLower(u)
	for _, p := range signatureParams {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
