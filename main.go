package main

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"marketplace/config"
	"marketplace/handler"
	"marketplace/logger"
	"marketplace/metrics"
	"marketplace/service"
	"marketplace/store"
)

//go:embed migrations.sql
var migrationSQL string

func main() {
	cfg := config.Load()
	log := logger.New("marketplace", cfg.LogLevel)

	var st store.Store
	if cfg.DatabaseURL == "" {
		log.Info("no DATABASE_URL set, using in-memory store")
		mem := store.NewMemoryStore()
		mem.LockTimeout = cfg.LockTimeout
		st = mem
	} else {
		pg, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			log.Error("db connection failed", "error", err)
			os.Exit(1)
		}
		pg.LockTimeout = cfg.LockTimeout
		if _, err := pg.DB.Exec(migrationSQL); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		log.Info("database migrations applied")
		st = pg
	}
	defer st.Close()

	chk := metrics.NewCheckout(prometheus.DefaultRegisterer)
	svc := service.NewService(st, log, chk)
	h := handler.NewHandler(svc)

	r := mux.NewRouter()
	h.RegisterRoutes(r)
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	srv := &http.Server{Addr: cfg.Addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}
