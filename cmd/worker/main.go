package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/app"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/queue"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Worker stopped: %v", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := app.New(ctx, cfg)
	cancel()
	if err != nil {
		return err
	}
	defer deps.Close()

	server, err := queue.NewServer(cfg.RedisURI, cfg.WorkerConcurrency, cfg.WorkerShutdownTimeout)
	if err != nil {
		return err
	}

	worker := queue.NewWorker(deps.Jobs, deps.Queue, deps.PostService, queue.WorkerConfig{
		WorkerID:       workerID(),
		RetryBaseDelay: cfg.JobRetryBaseDelay,
		RetryMaxDelay:  cfg.JobRetryMaxDelay,
	})

	mux := asynq.NewServeMux()
	worker.Register(mux)

	sweep := job.NewTokenRefreshJob(deps.Accounts, deps.Clients, deps.Tokens)
	reconcile := job.NewReconcileJob(deps.Scheduler)
	crons, err := job.Schedule(cfg.ReconcileSpec, cfg.TokenSweepSpec, reconcile, sweep)
	if err != nil {
		return fmt.Errorf("invalid cron spec: %w", err)
	}

	// catch up on anything scheduled while no worker was running
	reconcile.Reconcile()
	crons.Start()

	log.Println("Starting the Asynq server...")
	if err := server.Start(mux); err != nil {
		crons.Stop()
		return fmt.Errorf("could not start asynq server: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	// waits for a running sweep so deps.Close does not pull the db from under it
	crons.Stop()
	server.Shutdown()
	log.Println("Worker shutdown complete.")
	return nil
}

func workerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
