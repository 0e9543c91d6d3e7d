package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/followup"
	"github.com/hackgods/clinic-appointments/internal/messaging"
	"github.com/hackgods/clinic-appointments/internal/notification"
	"github.com/hackgods/clinic-appointments/internal/profile"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
	"github.com/hackgods/clinic-appointments/internal/telemetry"
	"github.com/hackgods/clinic-appointments/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}
	log := config.NewLogger(cfg, "followup-worker")
	log.Info().Str("env", cfg.Env).Str("sweep_at", cfg.SweepAt).Msg("followup-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelProvider, err := telemetry.InitProvider(rootCtx, telemetry.LoadConfig("clinic-followup-worker"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("telemetry init error")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelProvider.Shutdown(ctx)
	}()
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("metrics init error")
	}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	publisher, err := messaging.NewRabbitPublisher(cfg.RabbitMQURL, cfg.NotificationExchange, log)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbitmq connection error")
	}
	defer publisher.Close()

	cache := redisclient.NewCache(rdb)
	profiles := profile.NewClient(profile.Options{
		BaseURL:      cfg.IdentityBaseURL,
		ProbeTimeout: cfg.IdentityProbeTimeout,
		CallTimeout:  cfg.IdentityCallTimeout,
		CacheTTL:     cfg.ProfileCacheTTL,
	}, &http.Client{}, cache, log)

	svc := followup.NewService(
		followup.NewPgRepository(pgPool),
		appointment.NewPgRepository(pgPool),
		profiles,
		notification.NewDispatcher(publisher, profiles, metrics, log),
		cache,
		followup.Options{ReadCacheTTL: cfg.ReadCacheTTL, Metrics: metrics},
		log,
	)

	hour, minute, _ := config.ParseClock(cfg.SweepAt)
	daily := &worker.Daily{
		Hour:    hour,
		Minute:  minute,
		Timeout: cfg.SweepTimeout,
		Log:     log,
		Job: func(ctx context.Context) (int, error) {
			n, err := svc.ProcessOverdue(ctx)
			metrics.RecordSweep(context.WithoutCancel(ctx), n)
			return n, err
		},
	}
	daily.Run(rootCtx)
}
