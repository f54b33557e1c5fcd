package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rcsa.id/internal/auth"
	"rcsa.id/internal/config"
	"rcsa.id/internal/httpapi"
	"rcsa.id/internal/obs"
	"rcsa.id/internal/rcsa"
	"rcsa.id/internal/risk"
	"rcsa.id/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		obs.Logger().Fatal().Err(err).Msg("rcsa-api stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		return err
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	store, err := pg.Open(cfg.DB.DSN(), pg.Pool{
		MaxOpen:     cfg.DB.MaxOpenConns,
		MaxIdle:     cfg.DB.MaxIdleConns,
		MaxLifetime: cfg.DB.ConnMaxLife,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	codec, err := auth.NewCodec(cfg.Auth.JWTSecret, auth.WithTTL(cfg.Auth.TokenTTL), auth.WithIssuer(cfg.Auth.JWTIssuer))
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(store, codec)
	if err != nil {
		return err
	}
	adminSvc, err := auth.NewAdminService(store)
	if err != nil {
		return err
	}
	riskSvc, err := risk.NewService(store)
	if err != nil {
		return err
	}
	rcsaSvc, err := rcsa.NewService(store)
	if err != nil {
		return err
	}

	probe := httpapi.ReadyProbe{DB: store.DB()}
	api, err := httpapi.New(probe, httpapi.Services{
		Auth:  authSvc,
		Admin: adminSvc,
		Risks: riskSvc,
		RCSA:  rcsaSvc,
	}, httpapi.Options{
		Version:      version,
		CookieSecure: cfg.Auth.CookieSecure,
		CORSOrigins:  cfg.CORSOrigins,
		RateBurst:    cfg.RateLimit.Burst,
		RatePerSec:   cfg.RateLimit.PerSecond,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := httpapi.NewHealthReporter(probe, 10*time.Second)
	go health.Run(ctx)
	grpcSrv := httpapi.NewGRPCServer(health)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("version", version).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("grpc health listening")
		if err := grpcSrv.Serve(lis); err != nil {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errc:
		log.Error().Err(err).Msg("listener failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	grpcSrv.GracefulStop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("stopped")
	return nil
}
