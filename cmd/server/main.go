package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rpattn/homegraph/internal/auth"
	"github.com/rpattn/homegraph/internal/config"
	"github.com/rpattn/homegraph/internal/db"
	"github.com/rpattn/homegraph/internal/domain"
	"github.com/rpattn/homegraph/internal/export"
	"github.com/rpattn/homegraph/internal/graph"
	"github.com/rpattn/homegraph/internal/ingestion"
	"github.com/rpattn/homegraph/internal/knowledge"
	"github.com/rpattn/homegraph/internal/middleware"
	"github.com/rpattn/homegraph/internal/repository"
	syncpkg "github.com/rpattn/homegraph/internal/sync"
	"github.com/rpattn/homegraph/internal/tools"
	"github.com/rpattn/homegraph/pkg/logger"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, conn.Pool, "./migrations"); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}

	store := repository.NewPostgresStore(conn.Pool)

	// Build the graph index from the store before serving anything.
	index := graph.NewIndex()
	if err := index.Rebuild(ctx, store, store); err != nil {
		zlog.Fatal("failed to build graph index", zap.Error(err))
	}
	zlog.Info("graph index built", zap.Int("entities", index.Len()))

	knowledgeSvc := knowledge.NewService(store, store, index, zlog)

	resolver := domain.ConflictResolver{Window: cfg.Sync.ConflictWindow}
	engine := syncpkg.NewEngine(cfg.Sync.DeviceID, cfg.Sync.UserID, store, index, resolver, zlog)

	toolSvc := tools.NewService(knowledgeSvc, zlog)
	registry := tools.NewRegistry(toolSvc)

	exportSvc := export.NewService(store, store)
	ingestSvc := ingestion.NewService(knowledgeSvc, zlog)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	logging := middleware.LoggingMiddleware(zlog)
	loading := middleware.DataLoaderMiddleware(store)
	wrap := func(h http.Handler) http.Handler {
		return corsHandler.Handler(logging(auth.Middleware(loading(h))))
	}

	mux := http.NewServeMux()
	mux.Handle("/tools", wrap(tools.NewHTTPHandler(registry, zlog)))
	mux.Handle("/sync", wrap(syncpkg.NewHTTPHandler(engine, zlog)))
	mux.Handle("/export/inventory", wrap(export.NewHTTPHandler(exportSvc, zlog)))
	mux.Handle("/import", wrap(ingestion.NewHTTPHandler(ingestSvc)))
	mux.Handle("/history", wrap(knowledge.NewHistoryHandler(knowledgeSvc)))
	mux.Handle("/history/diff", wrap(knowledge.NewDiffHandler(knowledgeSvc)))
	mux.Handle("/conflicts", wrap(knowledge.NewConflictHandler(store)))

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Periodic exchanges with configured peers.
	if len(cfg.Sync.Peers) > 0 {
		go runPeerSync(ctx, cfg.Sync, engine, zlog)
	}

	go func() {
		zlog.Info("starting server",
			zap.String("addr", server.Addr),
			zap.String("device_id", cfg.Sync.DeviceID),
			zap.Int("peers", len(cfg.Sync.Peers)),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal("server forced to shutdown", zap.Error(err))
	}

	zlog.Info("server exited")
}

// runPeerSync exchanges with every configured peer on a fixed interval until
// the context is cancelled. A failed exchange is logged and retried on the
// next tick; nothing else is needed since application is idempotent.
func runPeerSync(ctx context.Context, cfg config.SyncConfig, engine *syncpkg.Engine, zlog *zap.Logger) {
	clients := make(map[string]*syncpkg.Client, len(cfg.Peers))
	for _, peer := range cfg.Peers {
		clients[peer.ID] = syncpkg.NewClient(peer.URL, 30*time.Second, zlog)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, peer := range cfg.Peers {
				summary, err := engine.SyncWith(ctx, peer.ID, clients[peer.ID])
				if err != nil {
					zlog.Warn("sync incomplete, will retry",
						zap.String("peer", peer.ID),
						zap.Error(err),
					)
					continue
				}
				zlog.Info("peer sync complete",
					zap.String("peer", peer.ID),
					zap.Int("sent", summary.Sent),
					zap.Int("received", summary.Received),
					zap.Int("conflicts", len(summary.Conflicts)),
				)
			}
		}
	}
}
