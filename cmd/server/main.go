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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/DetectBench/internal/adapters/http"
	inferproxy "github.com/dkeye/DetectBench/internal/adapters/infer"
	"github.com/dkeye/DetectBench/internal/adapters/rtc"
	"github.com/dkeye/DetectBench/internal/app"
	"github.com/dkeye/DetectBench/internal/app/bench"
	"github.com/dkeye/DetectBench/internal/app/orch"
	"github.com/dkeye/DetectBench/internal/bootstrap"
	"github.com/dkeye/DetectBench/internal/config"
	"github.com/dkeye/DetectBench/internal/metrics"
	"github.com/dkeye/DetectBench/internal/store"
	"github.com/dkeye/DetectBench/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	sink, err := store.New(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	defer func() { _ = sink.Close() }()

	agg := telemetry.NewAggregator()
	o := &orch.Orchestrator{
		Registry:        app.NewRegistry(),
		Rooms:           app.NewRoomManager(),
		Policy:          app.PolicyByName(cfg.Backpressure),
		Telemetry:       agg,
		Inspector:       rtc.NewInspector(),
		Mode:            cfg.InferenceMode,
		NotifyPeerLeave: cfg.NotifyPeerLeave,
	}
	ctl := bench.NewController(o, agg, sink, cfg.InferenceMode,
		bench.WithOnFinish(func(r telemetry.Report, loc string, err error) {
			if err == nil {
				log.Info().Str("saved", loc).Float64("p95_e2e_ms", r.P95E2EMs).Float64("fps", r.ProcessedFPS).Msg("benchmark report")
			}
		}),
	)

	services := &router.Services{
		Orch:      o,
		Bench:     ctl,
		Telemetry: agg,
		Bootstrap: &bootstrap.Bootstrapper{
			Scheme: cfg.Scheme(),
			HostIP: cfg.HostIP,
			Port:   cfg.Port,
			Mode:   cfg.InferenceMode,
		},
		Metrics: metrics.NewRegistry(),
		Limiter: router.NewRoomRateLimiter(30, time.Minute),
	}
	if cfg.InferenceMode == config.InferenceServer {
		services.Proxy = inferproxy.NewProxy(cfg.InferenceURL, agg)
	}

	r := router.SetupRouter(ctx, cfg, services)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("scheme", cfg.Scheme()).Str("inference", cfg.InferenceMode).Msg("DetectBench server started")
		var err error
		if cfg.HTTPS {
			err = srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		janitor(gctx, cfg.RoomGCInterval, o, services.Limiter)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := ctl.Close(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("pending reports not saved")
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		cancel()
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

// janitor prunes empty rooms and stale rate-limit entries. A zero interval
// keeps rooms forever.
func janitor(ctx context.Context, every time.Duration, o *orch.Orchestrator, rl *router.RoomRateLimiter) {
	if every <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			o.Janitor()
			rl.Sweep()
		}
	}
}
