package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/planning-poker/go/internal/config"
	"github.com/mcdev12/planning-poker/go/internal/gateway"
	"github.com/mcdev12/planning-poker/go/internal/room"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	config.SetupLogging(cfg)

	team, err := config.LoadTeam(cfg.TeamConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load team config")
	}

	clock := clockwork.NewRealClock()

	store, closeStore, err := setupStore(cfg, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up room store")
	}
	defer closeStore()

	hub := gateway.NewHub()
	publishers := []room.Publisher{hub}

	if cfg.NATSURL != "" {
		natsCfg := gateway.DefaultNATSConfig(cfg.NATSURL)
		natsCfg.SubjectPrefix = cfg.NATSSubjectPrefix
		nc, err := gateway.ConnectNATS(natsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer nc.Drain()
		publishers = append(publishers, gateway.NewNATSPublisher(nc, natsCfg.SubjectPrefix))
		log.Info().Str("nats_url", cfg.NATSURL).Str("prefix", natsCfg.SubjectPrefix).Msg("snapshot feed enabled")
	}

	app := room.NewApp(store, clock, cfg.DefaultRoom, publishers...)
	sweeper := room.NewSweeper(app, clock, cfg.CleanupInterval, cfg.InactivityTimeout)

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.HeartbeatInterval = cfg.HeartbeatInterval
	gatewayConfig.Team = team
	service := gateway.NewService(gatewayConfig, app, hub, sweeper, clock)

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// No WriteTimeout: event streams stay open indefinitely.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           gateway.NewHandler(mux, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		if err := service.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("default_room", cfg.DefaultRoom).
			Bool("redis", cfg.RedisURL != "").
			Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Request contexts derive from ctx, so cancelling first ends event
	// streams and Shutdown does not wait on them.
	cancel()
	<-serviceDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("planning poker shutdown complete")
}

func setupStore(cfg config.Config, clock clockwork.Clock) (room.Store, func(), error) {
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, rooms are kept in memory")
		return room.NewMemoryRepository(clock, cfg.RoomTTL), func() {}, nil
	}

	redisCfg := room.DefaultRedisConfig(cfg.RedisURL)
	redisCfg.TTL = cfg.RoomTTL
	client, err := room.NewRedisClient(redisCfg)
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis not reachable yet, commands will retry")
	}

	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis client")
		}
	}
	return room.NewRedisRepository(client, clock, redisCfg.TTL), closeFn, nil
}
