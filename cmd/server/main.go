package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/termrelay/internal/adapters/auth"
	router "github.com/dkeye/termrelay/internal/adapters/http"
	"github.com/dkeye/termrelay/internal/adapters/mqtt"
	relaysignal "github.com/dkeye/termrelay/internal/adapters/signal"
	"github.com/dkeye/termrelay/internal/app"
	"github.com/dkeye/termrelay/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Mode == "debug" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if cfg.LogLevel != "" {
		lvl, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			log.Warn().Err(err).Str("level", cfg.LogLevel).Msg("bad log level, keeping info")
		} else {
			zerolog.SetGlobalLevel(lvl)
		}
	}

	policy, err := app.PolicyByName(cfg.SlowConsumer)
	if err != nil {
		log.Fatal().Err(err).Msg("slow consumer policy")
	}
	opts := []app.Option{app.WithPolicy(policy), app.WithObserver(app.LogObserver{})}

	// Presence outlives ctx so the releases from hub.Close still get published.
	presenceCtx, stopPresence := context.WithCancel(context.Background())
	presenceDone := make(chan struct{})
	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			log.Fatal().Err(err).Str("broker", cfg.MQTT.Broker).Msg("mqtt connect")
		}
		defer mqtt.Disconnect(client)

		presence := mqtt.NewPresence(client, cfg.MQTT.TopicPrefix, byte(cfg.MQTT.QoS))
		go func() {
			presence.Run(presenceCtx)
			close(presenceDone)
		}()
		opts = append(opts, app.WithObserver(presence))
	} else {
		close(presenceDone)
	}
	hub := app.NewHub(opts...)

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		log.Fatal().Err(err).Msg("auth verifier")
	}
	limiter := relaysignal.NewRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Interval)

	r := router.SetupRouter(ctx, cfg, hub, verifier, limiter)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("auth", cfg.Auth.Mode).Bool("mqtt", cfg.MQTT.Enabled).Msg("terminal relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	hub.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	waitDrained(shutdownCtx, hub)
	stopPresence()
	<-presenceDone
	log.Info().Msg("Server exited gracefully")
}

// waitDrained gives read pumps time to run their disconnects after hub.Close.
func waitDrained(ctx context.Context, hub *app.Hub) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for hub.ConnCount() > 0 {
		select {
		case <-ctx.Done():
			log.Warn().Int("connections", hub.ConnCount()).Msg("shutdown with live connections")
			return
		case <-ticker.C:
		}
	}
}
