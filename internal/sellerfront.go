package internal

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sellerdesk/seller-front/internal/config"
	"github.com/sellerdesk/seller-front/internal/log"
	"github.com/sellerdesk/seller-front/internal/marketplace"
	"github.com/sellerdesk/seller-front/internal/server"
	"github.com/sellerdesk/seller-front/internal/tokenstore"
)

const memoryCleanupInterval = 5 * time.Minute

// SellerFront represents the complete seller integration application
type SellerFront struct {
	config     config.Config
	httpServer *server.HTTPServer
	backend    tokenstore.KeyedStore
	cancelBg   context.CancelFunc
}

// NewSellerFront creates the application with all dependencies built
func NewSellerFront(ctx context.Context, cfg config.Config) (*SellerFront, error) {
	log.LogInfoWithFields("sellerfront", "Building seller-front application", map[string]any{
		"baseURL": cfg.Server.BaseURL,
		"storage": string(cfg.Session.Storage),
	})

	if _, err := url.Parse(cfg.Server.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	bgCtx, cancelBg := context.WithCancel(context.Background())

	backend, err := setupStorage(ctx, bgCtx, cfg)
	if err != nil {
		cancelBg()
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	market := marketplace.New(cfg.Marketplace.APIBaseURL, cfg.Session.UpstreamTimeout.Std())

	srv := server.New(cfg, backend, market, nil)
	httpServer := server.NewHTTPServer(srv.Handler(), cfg.Server.Addr)

	return &SellerFront{
		config:     cfg,
		httpServer: httpServer,
		backend:    backend,
		cancelBg:   cancelBg,
	}, nil
}

// Run starts and manages the complete application lifecycle
func (s *SellerFront) Run() error {
	log.LogInfoWithFields("sellerfront", "Starting seller-front application", map[string]any{
		"addr": s.config.Server.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer s.cancelBg()

	errChan := make(chan error, 1)

	go func() {
		if err := s.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("sellerfront", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("sellerfront", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	case <-ctx.Done():
		shutdownReason = "context cancelled"
		log.LogInfoWithFields("sellerfront", "Context cancelled, shutting down", nil)
	}

	log.LogInfoWithFields("sellerfront", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": "30s",
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := s.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("sellerfront", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	closeBackend(s.backend)

	log.LogInfoWithFields("sellerfront", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}

// setupStorage creates the session backend for the configured storage
// kind. Cookie storage has no backend; the whole record rides in the
// session cookie.
func setupStorage(ctx, bgCtx context.Context, cfg config.Config) (tokenstore.KeyedStore, error) {
	switch cfg.Session.Storage {
	case config.StorageCookie, "":
		log.LogInfoWithFields("storage", "Using cookie storage", nil)
		return nil, nil

	case config.StorageMemory:
		log.LogInfoWithFields("storage", "Using in-memory storage", nil)
		store := tokenstore.NewMemoryStore()
		store.StartCleanup(bgCtx, memoryCleanupInterval)
		return store, nil

	case config.StorageRedis:
		log.LogInfoWithFields("storage", "Using Redis storage", map[string]any{
			"addr": cfg.Session.RedisAddr,
		})
		return tokenstore.NewRedisStore(ctx, cfg.Session.RedisAddr, string(cfg.Session.RedisPassword))

	case config.StorageFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":  cfg.Session.FirestoreProject,
			"database": cfg.Session.FirestoreDatabase,
		})
		return tokenstore.NewFirestoreStore(ctx, cfg.Session.FirestoreProject, cfg.Session.FirestoreDatabase)

	default:
		return nil, fmt.Errorf("unknown storage kind: %q", cfg.Session.Storage)
	}
}

func closeBackend(backend tokenstore.KeyedStore) {
	closer, ok := backend.(interface{ Close() error })
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		log.LogWarnWithFields("storage", "Failed to close storage backend", map[string]any{
			"error": err.Error(),
		})
	}
}
