package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-reward-ledger.git/internal/config"
	kafkax "github.com/ariefcatur/go-reward-ledger.git/internal/kafka"
	"github.com/ariefcatur/go-reward-ledger.git/internal/ledger"
	"github.com/ariefcatur/go-reward-ledger.git/internal/postgres"
	"github.com/ariefcatur/go-reward-ledger.git/internal/reconciler"
	"github.com/ariefcatur/go-reward-ledger.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	alerts := kafkax.NewProducer(cfg.KafkaBrokers, ledger.TopicReconcileAlert, 1024)
	alerts.Start(ctx)

	store := &ledger.Repo{DB: db}
	svc := &reconciler.Service{
		Ledger: &ledger.Service{
			Store:    store,
			Settings: &ledger.SettingsStore{DB: db, Redis: rdb},
		},
		States:      &ledger.OrderPointsRepo{DB: db},
		Redis:       rdb,
		Alerts:      alerts,
		ServiceName: cfg.ServiceName + "-reconciler",
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, ledger.TopicOrderStateChanged, cfg.ConsumerWorkers)
	go func() {
		log.Printf("reconciler consumer started: group=%s topic=%s workers=%d",
			cfg.ConsumerGroup, ledger.TopicOrderStateChanged, cfg.ConsumerWorkers)
		if err := cons.Start(ctx, svc.HandleOrderStateChanged); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sweeper := &reconciler.Sweeper{
		Store:       store,
		States:      svc.States,
		Alerts:      alerts,
		TTL:         cfg.ReservationTTL,
		Interval:    cfg.SweepInterval,
		ServiceName: cfg.ServiceName + "-sweeper",
	}
	go sweeper.Run(ctx)

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down reconciler...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	alerts.WaitClosed() // cancel() bikin producer flush & exit sendiri
}
