package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/splax/domainmap/internal/app/migrate"
	httpx "github.com/splax/domainmap/internal/http"
	"github.com/splax/domainmap/internal/queue"
	"github.com/splax/domainmap/internal/repository/postgres"
	"github.com/splax/domainmap/internal/resolver"
	"github.com/splax/domainmap/internal/service/billing"
	"github.com/splax/domainmap/internal/service/events"
	"github.com/splax/domainmap/internal/service/ingress"
	"github.com/splax/domainmap/internal/service/logs"
	"github.com/splax/domainmap/internal/service/mapping"
	"github.com/splax/domainmap/internal/service/settings"
	"github.com/splax/domainmap/internal/service/webhook"
	"github.com/splax/domainmap/internal/tlscheck"
	"github.com/splax/domainmap/internal/ws"
	"github.com/splax/domainmap/pkg/config"
	"github.com/splax/domainmap/pkg/logger"
)

var version = "dev"

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	if err := run(cfg, log); err != nil {
		log.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.APIConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		return err
	}
	if err := runner.Ensure(ctx); err != nil {
		return err
	}

	repo := postgres.New(pool)

	var tasks queue.Queue
	if addr := strings.TrimSpace(cfg.QueueRedisAddr); addr != "" {
		redisQueue, err := queue.NewRedisQueue(addr, cfg.QueueRedisPass, cfg.QueueRedisDB, log)
		if err != nil {
			return err
		}
		defer redisQueue.Close()
		tasks = redisQueue
	} else {
		log.Warn("QUEUE_REDIS_ADDR not set, scheduled tasks are kept in memory")
		tasks = queue.NewMemoryQueue()
	}

	logHub := ws.NewHub()
	defer logHub.Close()
	logSvc := logs.New(repo, logHub, log)

	dns := resolver.New(resolver.Config{
		NetworkDomain: cfg.NetworkDomain,
		NetworkIPs:    cfg.NetworkIPs,
		Servers:       cfg.DNSResolvers,
		QueryTimeout:  cfg.DNSQueryTimeout,
	}, log)

	registry := settings.DefaultRegistry(cfg.DomainStageMaxTries, int(cfg.DomainStageRetryDelay/time.Minute))
	settingsSvc := settings.New(repo, registry, cfg.NetworkDomain, dns, log)

	eventMgr := events.New(repo, repo, tasks, logSvc, events.NewBus(), log, events.Config{
		Version:       version,
		ThresholdDays: cfg.EventsThresholdDays,
		LogChannel:    logs.ChannelCron,
	})
	webhookSvc := webhook.New(repo, eventMgr, &http.Client{Timeout: cfg.WebhookTimeout}, log, webhook.Config{
		EncryptKey: cfg.SecretEncryptKey,
		Timeout:    cfg.WebhookTimeout,
		RatePerSec: cfg.WebhookRatePerSec,
	})

	var integrations []ingress.Integration
	if name := strings.TrimSpace(cfg.NginxContainerName); name != "" {
		reloader, err := ingress.NewDockerReloader(name)
		if err != nil {
			log.Warn("nginx reloader unavailable", "container", name, "error", err)
		} else {
			defer reloader.Close()
			integrations = append(integrations, reloader)
		}
	}
	ingressMgr := ingress.NewManager(log, integrations...)

	fallback := mapping.StaticPolicy{Tries: cfg.DomainStageMaxTries, Delay: cfg.DomainStageRetryDelay}
	mappingSvc := mapping.New(mapping.Deps{
		Repo:      repo,
		DNS:       dns,
		Certs:     tlscheck.New(cfg.TLSCheckTimeout),
		Scheduler: tasks,
		Logs:      logSvc,
		Events:    eventMgr,
		Toggles:   settingsSvc,
		Policy:    mapping.NewSettingsPolicy(settingsSvc, fallback, log),
		Logger:    log,
	})

	services := httpx.Services{
		Domains:      mappingSvc,
		Settings:     settingsSvc,
		Events:       eventMgr,
		Webhooks:     webhookSvc,
		Logs:         logSvc,
		Integrations: ingressMgr,
	}
	if sessions, err := billing.NewStripeSessions(cfg.StripeSecretKey); err == nil {
		services.Billing = billing.New(sessions, eventMgr, log, billing.Config{
			WebhookSecret: cfg.StripeWebhookSecret,
			SuccessURL:    cfg.CheckoutSuccessURL,
			CancelURL:     cfg.CheckoutCancelURL,
		})
	} else {
		log.Info("stripe checkout disabled", "reason", err)
	}

	worker := queue.NewWorker(tasks, log, queue.WorkerConfig{
		PollInterval: cfg.QueuePollInterval,
		TaskTimeout:  cfg.QueueTaskTimeout,
	})
	worker.Handle(queue.TaskDomainStage, mappingSvc.HandleStageTask)
	worker.Handle(queue.TaskRemoveOldPrimaries, mappingSvc.HandleRemovePrimariesTask)
	worker.Handle(queue.TaskAddDomain, ingressMgr.HandleAddTask)
	worker.Handle(queue.TaskRemoveDomain, ingressMgr.HandleRemoveTask)
	worker.Handle(queue.TaskWebhookDelivery, webhookSvc.HandleDeliveryTask)
	worker.Handle(queue.TaskCleanOldEvents, eventMgr.HandleCleanTask)

	if err := eventMgr.ScheduleCleanup(ctx, time.Now().Add(time.Minute)); err != nil {
		log.Warn("schedule event cleanup failed", "error", err)
	}

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, services, httpx.Options{
		JWTSecret: cfg.JWTSecret,
		Limiter:   limiter,
		DBHealth:  repo.Ping,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api server starting", "addr", cfg.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
		return nil
	})
	return g.Wait()
}
