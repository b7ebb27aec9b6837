package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sendloop-systems/sendloop/internal/auth"
	"github.com/sendloop-systems/sendloop/internal/config"
	"github.com/sendloop-systems/sendloop/internal/database"
	"github.com/sendloop-systems/sendloop/internal/inbound"
	"github.com/sendloop-systems/sendloop/internal/outbound"
	"github.com/sendloop-systems/sendloop/internal/queue"
	"github.com/sendloop-systems/sendloop/internal/ratelimit"
	"github.com/sendloop-systems/sendloop/internal/scheduler"
	"github.com/sendloop-systems/sendloop/internal/store/postgres"
	"github.com/sendloop-systems/sendloop/internal/web"
	"github.com/sendloop-systems/sendloop/internal/web/handlers"
	"github.com/sendloop-systems/sendloop/internal/whatsapp"
	"github.com/sendloop-systems/sendloop/internal/worker"
	"github.com/sendloop-systems/sendloop/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Database
	db, err := postgres.NewDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Migrations
	if err := database.RunMigrations(migrations.FS, cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Stores
	ruleStore := postgres.NewRuleStore(db)
	contactStore := postgres.NewContactStore(db)
	turnStore := postgres.NewTurnStore(db)
	inboundStore := postgres.NewInboundStore(db)
	outboundStore := postgres.NewOutboundStore(db)
	scheduleStore := postgres.NewScheduleStore(db)

	// Job queue: durable Redis list, in-process fallback for local runs.
	var jobs queue.Queue
	redisQueue, err := queue.NewRedisQueue(cfg.RedisURL, cfg.QueueName)
	if err != nil {
		slog.Warn("redis unavailable, using in-process queue", "error", err)
		jobs = queue.NewMemoryQueue()
	} else {
		jobs = redisQueue
		defer redisQueue.Close()
	}

	// Services
	provider := whatsapp.NewClient(cfg.ProviderBase, cfg.PhoneNumberID, cfg.AccessToken, cfg.OutboundReplyEnabled)
	inboundService := inbound.NewService(contactStore, ruleStore, turnStore, jobs, inbound.Options{
		RequireInvokePrefix: cfg.RequireInvokePrefix,
		InvokePrefixes:      cfg.InvokePrefixes,
		DefaultAgentID:      cfg.DefaultAgentID,
	})
	outboundService := outbound.NewService(outboundStore, contactStore, provider, cfg.FreeformWindowHours)
	schedulerService := scheduler.NewService(scheduleStore, jobs)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var background sync.WaitGroup

	// Worker loop
	w := worker.New(jobs, inboundService, outboundService, schedulerService,
		time.Duration(cfg.QueuePollTimeoutSeconds)*time.Second)
	background.Add(1)
	go func() {
		defer background.Done()
		w.Run(rootCtx)
	}()

	// Schedule timer
	background.Add(1)
	go func() {
		defer background.Done()
		schedulerService.Run(rootCtx, time.Duration(cfg.SchedulerIntervalSeconds)*time.Second)
	}()

	// Stale-sending sweeper: a crash between claim and provider call leaves
	// rows in 'sending'; close them out so operators can see and retry them.
	background.Add(1)
	go func() {
		defer background.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		staleAfter := time.Duration(cfg.StaleSendingAfterMinutes) * time.Minute
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				reclaimed, err := outboundStore.ReclaimStaleSending(rootCtx, time.Now().UTC().Add(-staleAfter))
				if err != nil {
					slog.Error("failed to reclaim stale sends", "error", err)
				} else if reclaimed > 0 {
					slog.Warn("reclaimed stale outbound sends", "count", reclaimed)
				}
			}
		}
	}()

	// Rate limiter
	limiter := ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(inboundStore, jobs, cfg.VerifyToken)
	adminHandler := handlers.NewAdminHandler(ruleStore, contactStore, scheduleStore)

	// Router
	router := web.NewRouter(web.RouterDeps{
		WebhookHandler: webhookHandler,
		AdminHandler:   adminHandler,
		AdminVerifier:  auth.NewKeyVerifier(cfg.AdminAPIKeyHash, cfg.AdminAPIKey),
		Limiter:        limiter,
	})

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("Sendloop starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	// Stop producers and the worker; in-flight jobs run to completion.
	cancel()
	background.Wait()
}
