package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/invoicerhq/invoicer/internal/config"
	"github.com/invoicerhq/invoicer/internal/db"
	"github.com/invoicerhq/invoicer/internal/realtime"
)

var migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")

func main() {
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	log := newLogger(cfg.App.Dev)
	defer func() { _ = log.Sync() }()

	conn, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatal("connect database", zap.Error(err))
	}

	if *migrateOnlyFlag {
		if err := db.Migrate(conn); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
		log.Info("migrations completed")
		return
	}
	if cfg.App.Migrations {
		if err := db.Migrate(conn); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
		log.Info("migrations completed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := realtime.NewHub(log)
	go hub.Run(ctx)

	app := NewApp(cfg, conn, hub, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      withLogging(log, app),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.Bool("dev", cfg.App.Dev),
			zap.Bool("strict_transitions", cfg.App.StrictTransitions))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
	log.Info("server stopped gracefully")
}

func newLogger(dev bool) *zap.Logger {
	if dev {
		log, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return log
	}
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return log
}

// withLogging adds request logging middleware.
func withLogging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}
