package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/clinic-appointments/internal/api"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/followup"
	"github.com/hackgods/clinic-appointments/internal/messaging"
	"github.com/hackgods/clinic-appointments/internal/notification"
	"github.com/hackgods/clinic-appointments/internal/profile"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
	"github.com/hackgods/clinic-appointments/internal/telemetry"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}
	log := config.NewLogger(cfg, "api-server")
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelProvider, err := telemetry.InitProvider(rootCtx, telemetry.LoadConfig("clinic-api"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("telemetry init error")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown")
		}
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

	// Connect Redis
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
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing rabbitmq")
		}
	}()

	cache := redisclient.NewCache(rdb)
	profiles := profile.NewClient(profile.Options{
		BaseURL:      cfg.IdentityBaseURL,
		ProbeTimeout: cfg.IdentityProbeTimeout,
		CallTimeout:  cfg.IdentityCallTimeout,
		CacheTTL:     cfg.ProfileCacheTTL,
	}, &http.Client{}, cache, log)
	dispatcher := notification.NewDispatcher(publisher, profiles, metrics, log)

	appointmentRepo := appointment.NewPgRepository(pgPool)
	appointments := appointment.NewService(
		appointmentRepo,
		redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL),
		profiles,
		dispatcher,
		cache,
		appointment.NewRosterTriage(cfg.EmergencyDoctors, cfg.DefaultEmergencyDoctor),
		appointment.Options{
			ReadCacheTTL:      cfg.ReadCacheTTL,
			MeetingBaseURL:    cfg.MeetingBaseURL,
			StrictTransitions: cfg.StrictTransitions,
			Metrics:           metrics,
		},
		log,
	)
	followUps := followup.NewService(
		followup.NewPgRepository(pgPool),
		appointmentRepo,
		profiles,
		dispatcher,
		cache,
		followup.Options{ReadCacheTTL: cfg.ReadCacheTTL, Metrics: metrics},
		log,
	)

	perms, err := auth.LoadPermissions(cfg.PermissionsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("permissions load error")
	}

	health := api.NewHealthHandler(cfg.Env, version,
		api.Dependency{Name: "postgres", Check: pgPool, Critical: true},
		api.Dependency{Name: "redis", Critical: true, Check: api.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})},
		api.Dependency{Name: "rabbitmq", Critical: true, Check: api.PingFunc(func(context.Context) error {
			if !publisher.Healthy() {
				return errors.New("rabbitmq channel closed")
			}
			return nil
		})},
		api.Dependency{Name: "identity", Check: profiles},
	)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Appointments: appointments,
			FollowUps:    followUps,
			Permissions:  perms,
			Health:       health,
			Metrics:      metrics,
			Log:          log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
}
