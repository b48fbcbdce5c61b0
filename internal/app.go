package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dgellow/release-watch/internal/config"
	"github.com/dgellow/release-watch/internal/crypto"
	"github.com/dgellow/release-watch/internal/feed"
	"github.com/dgellow/release-watch/internal/idp"
	"github.com/dgellow/release-watch/internal/log"
	"github.com/dgellow/release-watch/internal/metrics"
	"github.com/dgellow/release-watch/internal/server"
	"github.com/dgellow/release-watch/internal/session"
	"github.com/dgellow/release-watch/internal/storage"
	"github.com/dgellow/release-watch/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// ServiceName identifies the process in traces and logs
	ServiceName = "release-watch"

	stateTTL        = 10 * time.Minute
	shutdownTimeout = 30 * time.Second
)

// App represents the complete login service
type App struct {
	config     config.Config
	httpServer *server.HTTPServer
	handler    http.Handler
	store      storage.AccountStore
	closers    []io.Closer
	checks     map[string]server.Pinger
	shutdown   func(context.Context) error
}

// NewApp creates the application with all dependencies built
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	log.LogInfoWithFields("app", "Building release-watch application", map[string]any{
		"addr":       cfg.Addr,
		"clientHost": cfg.OAuth.ClientHost,
		"storage":    string(cfg.Storage.Kind),
		"tags":       cfg.Tags.Enabled,
	})

	app := &App{config: cfg, checks: map[string]server.Pinger{}}

	shutdownTracing, err := tracing.Setup(ctx, ServiceName, cfg.Tracing.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to setup tracing: %w", err)
	}
	app.shutdown = shutdownTracing

	store, closer, err := setupStorage(ctx, cfg)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}
	app.store = store
	app.addCloser(closer)
	if pinger, ok := store.(server.Pinger); ok {
		app.checks["storage"] = pinger
	}

	sessions, state, err := setupSessions(cfg)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("failed to setup sessions: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	enricher, cacheCloser, err := setupEnricher(ctx, cfg, m)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("failed to setup tag enrichment: %w", err)
	}
	app.addCloser(cacheCloser)
	if pinger, ok := cacheCloser.(server.Pinger); ok {
		app.checks["cache"] = pinger
	}

	githubURL := strings.TrimRight(cfg.OAuth.GitHubURL, "/")
	provider := idp.NewGitHubProvider(cfg.OAuth.ClientID, string(cfg.OAuth.ClientSecret),
		idp.WithEndpoint(githubURL+"/login/oauth/authorize", githubURL+"/login/oauth/access_token"),
		idp.WithAPIBaseURL(cfg.OAuth.GitHubAPIURL),
		idp.WithHTTPClient(&http.Client{Timeout: cfg.OAuth.Timeout}),
	)

	oauthHandlers := server.NewOAuthHandlers(provider, store, sessions, state, enricher, m, server.OAuthSettings{
		ClientHost: cfg.OAuth.ClientHost,
		Timeout:    cfg.OAuth.Timeout,
	})

	app.handler = server.NewRouter(oauthHandlers, sessions, store, m, server.NewHealthHandler(app.checks))
	app.httpServer = server.NewHTTPServer(app.handler, cfg.Addr)

	return app, nil
}

func (a *App) addCloser(c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, c)
	}
}

// Run starts and manages the application lifecycle
func (a *App) Run() error {
	log.LogInfoWithFields("app", "Starting release-watch", map[string]any{
		"addr": a.config.Addr,
	})

	// Channel to signal errors that should trigger shutdown
	errChan := make(chan error, 1)

	go func() {
		if err := a.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	var runErr error
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("app", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		runErr = err
		log.LogErrorWithFields("app", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("app", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": shutdownTimeout.String(),
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("app", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		runErr = errors.Join(runErr, err)
	}
	a.close(shutdownCtx)

	log.LogInfoWithFields("app", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return runErr
}

// close releases storage, cache and tracing resources
func (a *App) close(ctx context.Context) {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.LogWarnWithFields("app", "Failed to close resource", map[string]any{
				"error": err.Error(),
			})
		}
	}
	a.closers = nil
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			log.LogWarnWithFields("app", "Failed to flush traces", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

// setupStorage creates the account store selected by configuration
func setupStorage(ctx context.Context, cfg config.Config) (storage.AccountStore, io.Closer, error) {
	if cfg.Storage.Kind == config.StorageMemory {
		log.LogWarnWithFields("storage", "Using in-memory storage, accounts are lost on restart", nil)
		return storage.NewMemoryStorage(), nil, nil
	}

	// Create encryptor for access tokens at rest
	encryptor, err := crypto.NewEncryptor([]byte(cfg.Storage.EncryptionKey))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	switch cfg.Storage.Kind {
	case config.StorageFirestore:
		store, err := storage.NewFirestoreStorage(ctx, storage.FirestoreOptions{
			ProjectID:       cfg.Storage.FirestoreProject,
			Database:        cfg.Storage.FirestoreDatabase,
			Collection:      cfg.Storage.FirestoreCollection,
			CredentialsFile: cfg.Storage.FirestoreCredentialsFile,
		}, encryptor)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		return store, store, nil
	case config.StoragePostgres:
		log.LogInfoWithFields("storage", "Using PostgreSQL storage", nil)
		store, err := storage.NewPostgresStorage(ctx, string(cfg.Storage.PostgresDSN), encryptor)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create PostgreSQL storage: %w", err)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage kind %q", cfg.Storage.Kind)
	}
}

// setupSessions derives one subkey per purpose from the session secret
func setupSessions(cfg config.Config) (*session.TokenService, *crypto.StateSigner, error) {
	secret := []byte(cfg.Session.Secret)

	tokenKey, err := crypto.DeriveKey(secret, crypto.PurposeSessionToken)
	if err != nil {
		return nil, nil, err
	}
	stateKey, err := crypto.DeriveKey(secret, crypto.PurposeOAuthState)
	if err != nil {
		return nil, nil, err
	}

	sessions, err := session.NewTokenService(tokenKey, cfg.Session.TTL)
	if err != nil {
		return nil, nil, err
	}
	return sessions, crypto.NewStateSigner(stateKey, stateTTL), nil
}

// setupEnricher builds the tag enricher, or returns nil when enrichment is off
func setupEnricher(ctx context.Context, cfg config.Config, m *metrics.Metrics) (server.RepoEnricher, io.Closer, error) {
	if !cfg.Tags.Enabled {
		log.LogInfoWithFields("feed", "Tag enrichment disabled", nil)
		return nil, nil, nil
	}

	client := feed.NewClient(cfg.Tags.FeedURL, &http.Client{Timeout: cfg.OAuth.Timeout})

	if cfg.Tags.RedisURL == "" {
		return feed.NewEnricher(client, nil, m), nil, nil
	}
	cache, err := feed.NewRedisCacheFromURL(ctx, string(cfg.Tags.RedisURL), cfg.Tags.CacheTTL)
	if err != nil {
		return nil, nil, err
	}
	log.LogInfoWithFields("feed", "Tag cache enabled", map[string]any{
		"ttl": cfg.Tags.CacheTTL.String(),
	})
	return feed.NewEnricher(client, cache, m), cache, nil
}
