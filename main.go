package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"snowbotium/internal/api"
	"snowbotium/internal/config"
	"snowbotium/internal/redis"
	"snowbotium/internal/service/ai"
	"snowbotium/internal/service/ingest"
	"snowbotium/internal/service/records"
	"snowbotium/internal/storage"
	"snowbotium/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load(os.Getenv("SNOWBOTIUM_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "ingest" {
		if err := runIngest(cfg, os.Args[2:]); err != nil {
			log.Fatalf("ingest: %v", err)
		}
		return
	}
	serve(cfg)
}

func serve(cfg *config.Config) {
	if err := cfg.ValidateProvider(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	log.Printf("warehouse driver: %s", cfg.App.Driver)

	db, store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("open record store: %v", err)
	}
	defer db.Close()

	checks := map[string]api.Pinger{"warehouse": store}
	if cfg.RedisEnabled() {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			log.Printf("redis unavailable, history cache disabled: %v", err)
		} else {
			defer rdb.Close()
			store.UseHistoryCache(rdb, cfg.HistoryTTL())
			checks["redis"] = rdb
		}
	}

	generator, err := ai.NewGenerator(ctx, cfg)
	if err != nil {
		log.Fatalf("init generator: %v", err)
	}
	extractor, err := ingest.NewService(ctx)
	if err != nil {
		log.Fatalf("init ingestion: %v", err)
	}

	manager := worker.NewManager(store, generator, extractor, worker.Config{
		ActionTimeout: cfg.RequestTimeout(),
		SessionIdle:   cfg.SessionIdle(),
	})
	defer manager.Close()
	janitorCtx, janitorCancel := context.WithCancel(ctx)
	defer janitorCancel()
	manager.StartJanitor(janitorCtx, worker.DefaultJanitorInterval)

	if cfg.App.GinMode != "" {
		gin.SetMode(cfg.App.GinMode)
	}
	router := gin.Default()
	api.NewHandler(manager, checks).RegisterRoutes(router)

	server := &http.Server{
		Addr:              cfg.App.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	waitForShutdown(server)
}

func openStore(ctx context.Context, cfg *config.Config) (*sql.DB, *records.Service, error) {
	db, err := storage.Open(cfg.App.Driver, cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := records.NewService(db, cfg.App.Driver, cfg.Tables())
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	// create files and responses tables on every start
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, store, nil
}

// runIngest stores local PDFs as file records, numbered from 1 for this run.
func runIngest(cfg *config.Config, paths []string) error {
	if len(paths) == 0 {
		return errors.New("usage: snowbotium ingest <file.pdf>...")
	}
	ctx := context.Background()

	db, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	extractor, err := ingest.NewService(ctx)
	if err != nil {
		return err
	}

	allocator := worker.NewAllocator()
	for _, path := range paths {
		res, err := extractor.ExtractFile(ctx, path)
		if err != nil {
			return err
		}
		id := allocator.Next()
		if err := store.InsertFile(ctx, id, filepath.Base(path), res.Text); err != nil {
			return fmt.Errorf("store %s: %w", path, err)
		}
		log.Printf("stored %s as file %d (%d pages, %d empty)", path, id, res.Pages, res.EmptyPages)
	}
	return nil
}

func waitForShutdown(server *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown failed: %v", err)
	}
}
