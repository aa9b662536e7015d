// README: Entry point; loads config, wires stores, index and publishers, then serves the HTTP API.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"dispatch/internal/broadcast"
	"dispatch/internal/config"
	httptransport "dispatch/internal/http"
	"dispatch/internal/infra"
	"dispatch/internal/logging"
	"dispatch/internal/maps"
	"dispatch/internal/modules/driver"
	"dispatch/internal/modules/fare"
	"dispatch/internal/modules/geo"
	"dispatch/internal/modules/location"
	"dispatch/internal/modules/matching"
	"dispatch/internal/modules/ride"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("dispatch-api exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	verifier, err := infra.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	var dbPool *pgxpool.Pool
	if cfg.Backend.Store == config.BackendPostgres || cfg.Fare.Source == config.BackendPostgres {
		dbPool, err = infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer dbPool.Close()
	}

	var (
		rideRepo   ride.Repository
		driverRepo driver.Repository
	)
	switch cfg.Backend.Store {
	case config.BackendPostgres:
		rideRepo = ride.NewStore(dbPool)
		driverRepo = driver.NewStore(dbPool)
	default:
		rideRepo = ride.NewMemoryStore()
		driverRepo = driver.NewMemoryStore()
	}

	var index geo.Index
	switch cfg.Backend.Index {
	case config.BackendRedis:
		client, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = client.Close() }()
		index = geo.NewRedisIndex(client)
	default:
		index = geo.NewMemoryIndex(cfg.Matching.CellDegrees)
	}

	hub := broadcast.NewHub(logger.Named("hub"))
	publishers := location.Fanout{hub}
	if cfg.AMQP.URL != "" {
		amqpPub, err := broadcast.DialAMQP(ctx, cfg.AMQP.URL, cfg.AMQP.Exchange, logger.Named("amqp"))
		if err != nil {
			return err
		}
		defer func() { _ = amqpPub.Close() }()
		publishers = append(publishers, amqpPub)
	}

	rates, err := rateSource(cfg, dbPool)
	if err != nil {
		return err
	}
	meter, err := tripMeter(cfg, logger)
	if err != nil {
		return err
	}

	rideSvc := ride.NewService(rideRepo, index, logger.Named("ride"))
	locationSvc := location.NewService(driverRepo, rideRepo, index, publishers, logger.Named("location"))
	matchingSvc := matching.NewService(driverRepo, rideRepo, index, cfg.Matching, matching.WithLogger(logger.Named("matching")))
	fareSvc := fare.NewService(rideRepo, meter, rates)

	n, err := rideSvc.ReindexPending(ctx)
	if err != nil {
		return fmt.Errorf("reindex pending rides: %w", err)
	}
	logger.Info("pending rides indexed", zap.Int("count", n))

	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.RouterDeps{
		Rides:    rideSvc,
		Matching: matchingSvc,
		Location: locationSvc,
		Fares:    fareSvc,
		Hub:      hub,
		Verifier: verifier,
	}, logger.Named("http"))
	return server.Run(ctx)
}

func rateSource(cfg config.Config, db *pgxpool.Pool) (fare.RateSource, error) {
	if cfg.Fare.Source == config.BackendPostgres {
		return fare.NewStore(db), nil
	}
	rt, err := fare.ParseRates(cfg.Fare)
	if err != nil {
		return nil, err
	}
	return fare.StaticRates(rt), nil
}

func tripMeter(cfg config.Config, logger *zap.Logger) (fare.TripMeter, error) {
	fixed := fare.FixedMeter{Trip: fare.Trip{DistanceKm: cfg.Meter.DistanceKm, DurationMin: cfg.Meter.DurationMin}}
	if cfg.Meter.Mode != config.MeterMaps {
		return fixed, nil
	}
	routes, err := maps.NewRouteService(cfg.Meter.MapsAPIKey)
	if err != nil {
		return nil, err
	}
	return fare.RouteMeter{Planner: routes, Fallback: fixed, Log: logger.Named("meter")}, nil
}
