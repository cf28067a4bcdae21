package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bryanwahyu/footprint/internal/application"
	appai "github.com/bryanwahyu/footprint/internal/application/ai"
	appcredits "github.com/bryanwahyu/footprint/internal/application/credits"
	"github.com/bryanwahyu/footprint/internal/application/dispatch"
	appprogress "github.com/bryanwahyu/footprint/internal/application/progress"
	appscans "github.com/bryanwahyu/footprint/internal/application/scans"
	"github.com/bryanwahyu/footprint/internal/application/schedule"
	"github.com/bryanwahyu/footprint/internal/config"
	domai "github.com/bryanwahyu/footprint/internal/domain/ai"
	"github.com/bryanwahyu/footprint/internal/domain/progress"
	"github.com/bryanwahyu/footprint/internal/domain/providers"
	"github.com/bryanwahyu/footprint/internal/infra/ai/openai"
	"github.com/bryanwahyu/footprint/internal/infra/ai/prompt"
	"github.com/bryanwahyu/footprint/internal/infra/cache"
	"github.com/bryanwahyu/footprint/internal/infra/executor/worker"
	"github.com/bryanwahyu/footprint/internal/infra/httpserver"
	"github.com/bryanwahyu/footprint/internal/infra/metrics"
	"github.com/bryanwahyu/footprint/internal/infra/notify"
	"github.com/bryanwahyu/footprint/internal/infra/pubsub"
	"github.com/bryanwahyu/footprint/internal/infra/storage"
	"github.com/bryanwahyu/footprint/internal/middleware"
	"github.com/bryanwahyu/footprint/internal/telemetry"
)

const shutdownGrace = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, scan dispatcher and scheduler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		return serve(cmd.Context(), cfg, log)
	},
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, version, log)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.DB.Close()

	health := map[string]middleware.CheckFunc{"database": store.Ping}

	// redis is optional: without it progress stays in-process and provider
	// responses are not cached
	var (
		broker interface {
			progress.Publisher
			progress.Subscriber
		}
		resultCache dispatch.Cache
	)
	if cfg.Redis.Addr != "" {
		rdb, err := cache.Connect(cfg.Redis)
		if err != nil {
			return err
		}
		defer func(c *redis.Client) { _ = c.Close() }(rdb)
		rc := cache.NewResultCache(rdb)
		resultCache = rc
		broker = pubsub.NewRedis(rdb, log)
		health["redis"] = rc.Ping
	} else {
		log.Warn("redis not configured, using in-process progress broker")
		broker = pubsub.NewLocal()
	}

	registry := providers.DefaultRegistry()
	if unknown := registry.Apply(providerOverrides(cfg.Providers)); len(unknown) > 0 {
		log.Warn("config names unknown providers", zap.Strings("providers", unknown))
	}

	runner := worker.NewRunner(cfg.Worker.BaseURL, cfg.Worker.Token)
	if cfg.Worker.BaseURL == "" {
		log.Warn("worker.baseURL not set, every provider will fail")
	} else {
		health["worker"] = runner.Health
	}

	rec := metrics.New()
	clock := application.SystemClock{}
	relay := appprogress.NewRelay(store.Progress, broker, clock, log)

	d := &dispatch.Dispatcher{
		Runner:      runner,
		Registry:    registry,
		Events:      store.Events,
		Findings:    store.Findings,
		Progress:    relay,
		Metrics:     rec,
		Clock:       clock,
		Log:         log,
		Timeout:     cfg.Worker.Timeout,
		Concurrency: cfg.Worker.Concurrency,
		CacheTTL:    cfg.Redis.CacheTTL,
	}
	if resultCache != nil {
		d.Cache = resultCache
	}
	if cfg.Minio.Enabled {
		st, err := storage.New(ctx, cfg.Minio)
		if err != nil {
			return fmt.Errorf("minio init: %w", err)
		}
		d.Artifacts = st
	}

	scanSvc := &appscans.Service{
		Repo:       store.Scans,
		Workspaces: store.Workspaces,
		Ledger:     store.Ledger,
		Registry:   registry,
		Dispatcher: d,
		Findings:   store.Findings,
		EventLog:   store.Events,
		Tracker:    relay,
		Metrics:    rec,
		Clock:      clock,
		Log:        log,
		Timeout:    cfg.Scan.Timeout,
	}
	if cfg.Webhook.URL != "" {
		scanSvc.Notifier = notify.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Secret)
	}
	creditSvc := appcredits.NewService(store.Ledger, log)

	var analyzer domai.Client = prompt.Heuristic{}
	if cfg.OpenAI.APIKey != "" {
		analyzer = openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	} else {
		log.Info("openai key not set, using heuristic analyzer")
	}
	aiSvc := appai.NewService(analyzer, store.Scans, store.Findings, store.Analyses, clock, log)

	sched := schedule.New(scanSvc, log)
	for _, s := range cfg.Schedules {
		if err := sched.Add(schedule.Job{
			Name:       s.Name,
			Workspace:  s.Workspace,
			Cron:       s.Cron,
			TargetType: s.TargetType,
			Target:     s.Target,
			Providers:  s.Providers,
		}); err != nil {
			return fmt.Errorf("schedule %q: %w", s.Name, err)
		}
	}
	sched.Start()

	if len(cfg.Auth.APIKeys) == 0 {
		log.Warn("auth.apiKeys is empty, API is unauthenticated")
	}

	handler := httpserver.NewRouter(httpserver.Deps{
		Scans:       scanSvc,
		Credits:     creditSvc,
		AI:          aiSvc,
		Schedules:   sched,
		Progress:    broker,
		Worker:      runner,
		Metrics:     rec,
		Health:      health,
		APIKeys:     cfg.Auth.APIKeys,
		AdminKey:    cfg.Auth.AdminKey,
		RateLimiter: middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		CORSOrigins: cfg.Server.CORSOrigins,
		Log:         log,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		// streams hold the connection open, so no global write timeout
		IdleTimeout: 60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server...")
	case err := <-errc:
		if err != nil {
			log.Error("server error", zap.Error(err))
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	sched.Stop(sctx)
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	// running scans are cancelled and still record their terminal status
	if err := scanSvc.Shutdown(sctx); err != nil {
		log.Warn("scans did not finish before shutdown deadline", zap.Error(err))
	}
	if err := shutdownTracing(sctx); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
	return nil
}

func providerOverrides(in map[string]config.ProviderConfig) map[string]providers.Override {
	out := make(map[string]providers.Override, len(in))
	for id, p := range in {
		out[id] = providers.Override{Enabled: p.Enabled, CreditCost: p.CreditCost, MinTier: p.MinTier}
	}
	return out
}
