// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Secrets
	AdminPassword string
	VaultKey      string // hex-encoded 32 bytes; ephemeral key generated when empty

	// Embed source
	EmbedBaseURL     string
	EmbedTitleSuffix string
	SampleFallback   bool
	ScrapeRate       float64 // embed page fetches per second, per host

	// Transport
	FingerprintHosts []string // hosts fetched with a browser TLS fingerprint
	GlobalProxies    []string

	// Persistence
	StorePath        string // sqlite database path; empty keeps records in memory
	MirrorWebhookURL string

	// Origin policy
	EnforceOrigin bool

	// Logging
	LogLevel  string
	LogJSON   bool
	LogBuffer int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	port := getEnvInt("PORT", 7860)
	cfg := &Config{
		Port:             port,
		BaseURL:          getEnvString("BASE_URL", fmt.Sprintf("http://localhost:%d", port)),
		ReadTimeout:      getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:     getEnvDuration("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:      getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
		VaultKey:         os.Getenv("VAULT_KEY"),
		EmbedBaseURL:     getEnvString("EMBED_BASE_URL", "https://vidsrc.xyz/embed"),
		EmbedTitleSuffix: getEnvString("EMBED_TITLE_SUFFIX", " - VidSrc"),
		SampleFallback:   getEnvBool("SCRAPER_SAMPLE_FALLBACK", false),
		ScrapeRate:       getEnvFloat("SCRAPE_RATE", 2),
		FingerprintHosts: getEnvStringSlice("FINGERPRINT_HOSTS", nil),
		GlobalProxies:    getEnvStringSlice("GLOBAL_PROXIES", nil),
		StorePath:        getEnvString("STORE_PATH", ""),
		MirrorWebhookURL: getEnvString("MIRROR_WEBHOOK_URL", ""),
		EnforceOrigin:    getEnvBool("ENFORCE_ORIGIN", false),
		LogLevel:         getEnvString("LOG_LEVEL", "info"),
		LogJSON:          getEnvBool("LOG_JSON", false),
		LogBuffer:        getEnvInt("LOG_BUFFER", 1000),
	}

	// Legacy single proxy support
	if globalProxy := os.Getenv("GLOBAL_PROXY"); globalProxy != "" && len(cfg.GlobalProxies) == 0 {
		cfg.GlobalProxies = []string{globalProxy}
	}

	return cfg
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil && f > 0 {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return strings.ToLower(val) == "true" || val == "1"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		// Try parsing as seconds first
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		// Try parsing as duration string
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultVal
}
