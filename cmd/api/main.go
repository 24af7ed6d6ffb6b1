package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-reward-ledger.git/internal/bundle"
	"github.com/ariefcatur/go-reward-ledger.git/internal/config"
	"github.com/ariefcatur/go-reward-ledger.git/internal/httpx"
	"github.com/ariefcatur/go-reward-ledger.git/internal/ledger"
	"github.com/ariefcatur/go-reward-ledger.git/internal/postgres"
	"github.com/ariefcatur/go-reward-ledger.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := postgres.Migrate(cfg.PostgresDSN, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	settings := &ledger.SettingsStore{DB: db, Redis: rdb}
	svc := &ledger.Service{
		Store:    &ledger.Repo{DB: db},
		Settings: settings,
	}

	router := httpx.NewRouter()
	lh := &httpx.LedgerHandler{
		Svc:         svc,
		Settings:    settings,
		OrderPoints: &ledger.OrderPointsRepo{DB: db},
		Redis:       rdb,
	}
	lh.Register(router)
	bh := &httpx.BundleHandler{
		Repo:  &bundle.Repo{DB: db},
		Redis: rdb,
	}
	bh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
}
