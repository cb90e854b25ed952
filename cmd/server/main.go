package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"restaurantDelivery/internal/config"
	"restaurantDelivery/internal/db"
	"restaurantDelivery/internal/dispatch"
	"restaurantDelivery/internal/events"
	grpcserver "restaurantDelivery/internal/grpc"
	"restaurantDelivery/internal/httpapi"
	"restaurantDelivery/internal/lifecycle"
	"restaurantDelivery/internal/logging"
	"restaurantDelivery/internal/simulator"
	"restaurantDelivery/internal/tracking"
	"restaurantDelivery/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("configuration loaded", zap.Stringer("config", cfg))

	// Open DB
	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("close db", zap.Error(err))
		}
	}()

	orders := repository.NewOrderRepository(d)
	agents := repository.NewAgentRepository(d)
	catalog := repository.NewCatalogRepository(d)
	messages := repository.NewMessageRepository(d)

	bus := events.NewBus(logger.Named("bus"), 256)
	defer bus.Close()
	var publisher events.Publisher = bus
	if cfg.Events.Driver == "nats" {
		pub, err := events.NewNATSPublisher(cfg.Events.NATSURL)
		if err != nil {
			return err
		}
		defer pub.Close()
		// Every instance, this one included, hears changes through NATS.
		bridge, err := events.NewNATSBridge(cfg.Events.NATSURL, bus, logger.Named("nats"))
		if err != nil {
			return err
		}
		defer bridge.Close()
		publisher = pub
		logger.Info("order events on NATS", zap.String("subject", events.TopicOrders))
	}

	var dedup tracking.DedupStore = tracking.NewMemoryDedup()
	if cfg.Dedup.Driver == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Dedup.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping %s: %w", cfg.Dedup.RedisAddr, err)
		}
		defer rdb.Close()
		dedup = tracking.NewRedisDedup(rdb, "notif")
	}

	machine := lifecycle.NewMachine(orders, publisher, logger.Named("lifecycle"))
	dispatcher := dispatch.New(orders, agents, machine, dispatch.NewAttemptGuard(cfg.Proof.AttemptsPerMinute), logger.Named("dispatch"))
	sim := simulator.NewManager(orders, agents, simulator.Config{
		Tick:         cfg.Sim.Tick,
		StepFraction: cfg.Sim.StepFraction,
		Jitter:       cfg.Sim.JitterDeg,
		SpeedKmh:     cfg.Sim.SpeedKmh,
	}, logger.Named("simulator"))
	defer sim.Close()
	notifier := tracking.NewNotifier(dedup, tracking.NewInbox(cfg.Tracking.NotificationTTL), agents, logger.Named("tracking"))
	hub := tracking.NewHub(notifier, orders, bus, cfg.Tracking.PollInterval, logger.Named("tracking"))
	hub.SetIdleAfter(cfg.Tracking.IdleTimeout)
	defer hub.Close()

	api := httpapi.NewServer(httpapi.Deps{
		Orders:         orders,
		Agents:         agents,
		Catalog:        catalog,
		Messages:       messages,
		Machine:        machine,
		Dispatcher:     dispatcher,
		Simulator:      sim,
		Tracking:       hub,
		JWTSecret:      cfg.Auth.JWTSecret,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, logger.Named("http"))
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()
	logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Address))

	// Start gRPC
	shutdownGRPC, err := grpcserver.StartGRPC(cfg.GRPC.Address, cfg.Auth.JWTSecret, &grpcserver.TrackingService{
		Simulator: sim,
		Hub:       hub,
		Logger:    logger.Named("grpc"),
	}, logger.Named("grpc"))
	if err != nil {
		return fmt.Errorf("start grpc: %w", err)
	}
	logger.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Address))

	// Wait for signal
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigc:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-httpErr:
		logger.Error("http server failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := shutdownGRPC(ctx); err != nil {
		logger.Warn("grpc shutdown", zap.Error(err))
	}
	return nil
}
