// Package app provides the main application setup and dependency injection.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"embed-resolver-go/pkg/auth"
	"embed-resolver-go/pkg/cache"
	"embed-resolver-go/pkg/config"
	"embed-resolver-go/pkg/handlers/api"
	"embed-resolver-go/pkg/handlers/streams"
	"embed-resolver-go/pkg/httpclient"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/metrics"
	"embed-resolver-go/pkg/resolver"
	"embed-resolver-go/pkg/scraper"
	"embed-resolver-go/pkg/server"
	"embed-resolver-go/pkg/settings"
	"embed-resolver-go/pkg/store"
	"embed-resolver-go/pkg/vault"
)

// App is the main application container.
type App struct {
	Log    *logging.Logger
	Config *config.Config
	Server *server.Server
	Store  store.Store
	Mirror *store.Mirror
}

// New creates and initializes the application.
func New() (*App, error) {
	cfg := config.Load()

	logStore := logging.NewStore(cfg.LogBuffer)
	log := logging.NewWithStore(cfg.LogLevel, cfg.LogJSON, os.Stdout, logStore)
	log.Info("initializing embed resolver", "port", cfg.Port, "log_level", cfg.LogLevel)

	var st store.Store
	if cfg.StorePath != "" {
		sqliteStore, err := store.OpenSQLite(context.Background(), cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		st = sqliteStore
		log.Info("using sqlite record store", "path", cfg.StorePath)
	} else {
		st = store.NewMemory()
		log.Info("using in-memory record store")
	}

	v, err := vault.New(cfg.VaultKey, log)
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}

	client := httpclient.New(cfg, log)
	if len(cfg.GlobalProxies) > 0 {
		client.EnsureProxyClients()
		log.Info("proxy routing enabled", "proxies", len(cfg.GlobalProxies))
	}
	engine := scraper.New(client, cfg, log)
	settingsSvc := settings.NewService(st, log)
	resolutionCache := cache.New(log)
	mirror := store.NewMirror(cfg.MirrorWebhookURL, log)
	pipeline := resolver.New(engine, resolutionCache, st, settingsSvc, mirror, log)
	authMgr := auth.New(cfg.AdminPassword, log)

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	registry.MustRegister(collectors.NewGoCollector())

	srv := server.New(cfg, st, log)

	apiHandlers := api.NewHandlers(pipeline, v, st, settingsSvc, authMgr, resolutionCache, logStore, cfg.BaseURL, log)
	apiHandlers.RegisterRoutes(srv.Router())

	streamHandler := streams.NewHandler(client, v, log)
	streamHandler.RegisterRoutes(srv.Router())

	srv.Router().Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &App{
		Log:    log,
		Config: cfg,
		Server: srv,
		Store:  st,
		Mirror: mirror,
	}, nil
}

// Run starts the application.
func (a *App) Run() error {
	a.Log.Info("starting embed resolver server", "port", a.Config.Port)
	return a.Server.Start()
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() {
	a.Log.Info("shutting down application")
	a.Mirror.Close()
	if err := a.Store.Close(); err != nil {
		a.Log.WithError(err).Warn("store close failed")
	}
}
