package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/leadpulse/leadpulse/internal/api"
	"github.com/leadpulse/leadpulse/internal/circuitbreaker"
	"github.com/leadpulse/leadpulse/internal/config"
	"github.com/leadpulse/leadpulse/internal/db"
	"github.com/leadpulse/leadpulse/internal/dispatch"
	"github.com/leadpulse/leadpulse/internal/lead"
	"github.com/leadpulse/leadpulse/internal/metrics"
	"github.com/leadpulse/leadpulse/internal/notifier"
	"github.com/leadpulse/leadpulse/internal/observ"
	"github.com/leadpulse/leadpulse/internal/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	loc := cfg.Location()
	now := func() time.Time { return time.Now().In(loc) }

	logger.Info("starting leadpulse server",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("time_zone", loc.String()),
		zap.Duration("dispatch_interval", cfg.DispatchInterval),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repositories and the lead write path
	leadRepo := db.NewLeadRepository(database, logger)
	notifRepo := db.NewNotificationRepository(database, logger)
	leadStore := lead.NewStore(leadRepo, now)

	// Initialize Redis for the dispatch tick lock
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	var tickLock *redis.TickLock
	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, running without the dispatch tick lock",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	} else {
		tickLock = redis.NewTickLock(redisClient, logger, 0)
		defer redisClient.Close()
	}

	// Out-of-band delivery channels. All optional: notifications are
	// durable rows first, emails and texts second.
	var senders []notifier.Sender

	if cfg.SESToEmail != "" {
		sesSender, err := notifier.NewSESSender(ctx, notifier.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
			ToEmail:   cfg.SESToEmail,
		}, logger)
		if err != nil {
			logger.Warn("SES sender unavailable, email reminders disabled", zap.Error(err))
		} else {
			breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("ses"), logger)
			senders = append(senders, circuitbreaker.NewProtectedSender(sesSender, breaker, logger))
		}
	}

	if cfg.AlertPhone != "" {
		snsSender, err := notifier.NewSNSSender(ctx, notifier.SNSConfig{
			Region: cfg.SNSRegion,
			Phone:  cfg.AlertPhone,
		}, logger)
		if err != nil {
			logger.Warn("SNS sender unavailable, SMS reminders disabled", zap.Error(err))
		} else {
			breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("sns"), logger)
			senders = append(senders, circuitbreaker.NewProtectedSender(snsSender, breaker, logger))
		}
	}

	var sender notifier.Sender
	if len(senders) > 0 {
		sender = notifier.NewMultiSender(logger, senders...)
	} else {
		sender = notifier.NewLogSender(logger)
	}

	logger.Info("initialized reminder delivery",
		zap.Int("channels", len(senders)),
		zap.Bool("log_only", len(senders) == 0),
	)

	// Start the dispatch loop
	var lock dispatch.TickLock
	if tickLock != nil {
		lock = tickLock
	}
	dispatcher := dispatch.New(leadRepo, notifRepo, dispatch.Config{
		Interval: cfg.DispatchInterval,
		Sender:   sender,
		Lock:     lock,
		Now:      now,
	}, logger)

	dispatchCtx, dispatchCancel := context.WithCancel(context.Background())
	defer dispatchCancel()

	go dispatcher.Start(dispatchCtx)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// API routes
	handler := api.NewHandler(logger, leadStore, leadRepo, notifRepo, now)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/leads", handler.CreateLead)
		r.Get("/leads", handler.ListLeads)
		r.Get("/leads/{id}", handler.GetLead)
		r.Put("/leads/{id}", handler.UpdateLead)
		r.Get("/leads/status/{status}", handler.ListLeadsByStatus)
		r.Get("/leads/autostatus/{autostatus}", handler.ListLeadsByAutoStatus)

		r.Get("/notifications", handler.ListNotifications)
		r.Patch("/notifications/{id}/read", handler.MarkNotificationRead)
		r.Delete("/notifications/{id}", handler.DeleteNotification)
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Stop the dispatcher before draining requests
		dispatchCancel()

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
