package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/guileen/pglitepool/admin"
	"github.com/guileen/pglitepool/config"
	"github.com/guileen/pglitepool/logger"
	"github.com/guileen/pglitepool/pgxdriver"
	"github.com/guileen/pglitepool/pool"
	"github.com/guileen/pglitepool/registry"
)

const envPrefix = "PGLITEPOOL"

func main() {
	configPath := flag.String("config", "pgpoold.toml", "path to the TOML pool configuration")
	propsPath := flag.String("props", "", "optional pebble directory holding property overrides")
	awsSecrets := flag.Bool("aws-secrets", false, "resolve pool passwords from AWS Secrets Manager")
	secretsPrefix := flag.String("secrets-prefix", "pgpoold/", "secret id prefix used with -aws-secrets")
	flag.Parse()

	logger.SetLogger(logger.NewLogger(logger.LoadConfig()))

	startTime := time.Now()
	logger.Info("Starting pgpoold", "config", *configPath, "startup_time", startTime.Format(time.RFC3339))

	var secrets *config.SecretsSource
	if *awsSecrets {
		var err error
		if secrets, err = config.LoadSecretsSource(context.Background(), *secretsPrefix); err != nil {
			logger.Error("Failed to create secrets source", "error", err)
			log.Fatalf("failed to create secrets source: %v", err)
		}
	}

	cfg, err := loadConfig(*configPath, *propsPath, secrets)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := registry.New()
	pools, err := registerPools(ctx, reg, cfg.Pools)
	if err != nil {
		deconstructAll(pools)
		logger.Error("Failed to register pools", "error", err)
		log.Fatalf("failed to register pools: %v", err)
	}
	logger.Info("Pools registered", "count", len(pools), "init_duration", time.Since(startTime).String())

	var checks sync.WaitGroup
	if cfg.Admin.TestIntervalSeconds > 0 {
		checks.Add(1)
		go func() {
			defer checks.Done()
			runHealthChecks(ctx, reg, time.Duration(cfg.Admin.TestIntervalSeconds)*time.Second)
		}()
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	admin.NewHandler(reg).RegisterRoutes(r)

	server := &http.Server{
		Addr:              cfg.Admin.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Admin API listening", "addr", cfg.Admin.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Admin API failed", "error", err, "addr", cfg.Admin.Listen)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownStart := time.Now()
	logger.Info("Shutting down pgpoold")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Admin API shutdown failed", "error", err)
	}
	checks.Wait()
	deconstructAll(pools)
	logger.Info("Shutdown complete", "shutdown_duration", time.Since(shutdownStart).String())
}

// loadConfig applies overrides in order of precedence: environment, pebble properties, secrets.
func loadConfig(path, propsPath string, secrets *config.SecretsSource) (*config.File, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}

	sources := config.Chain{config.EnvSource{Prefix: envPrefix}}
	if propsPath != "" {
		props, err := config.OpenPebbleSource(propsPath, nil)
		if err != nil {
			return nil, err
		}
		defer props.Close()
		sources = append(sources, props)
	}
	if secrets != nil {
		sources = append(sources, secrets)
	}

	if err := cfg.ApplyProperties(sources); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// registerPools returns the pools registered so far even on failure so the caller can close them
func registerPools(ctx context.Context, reg *registry.Registry, specs []config.PoolSpec) ([]*pool.Pool, error) {
	pools := make([]*pool.Pool, 0, len(specs))
	for _, spec := range specs {
		factory, err := pgxdriver.NewFactory(pgxdriver.Options{ValidationQuery: spec.ValidationQuery})
		if err != nil {
			return pools, err
		}

		p := pool.NewPool(spec.Target(), factory, spec.PoolConfig())
		if err := reg.Register(ctx, spec.Key, p); err != nil {
			p.Deconstruct(ctx)
			return pools, err
		}
		pools = append(pools, p)
	}
	return pools, nil
}

func runHealthChecks(ctx context.Context, reg *registry.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := reg.TestConnections(ctx); err != nil {
				logger.Warn("Health check found failing pools", "error", err)
				continue
			}
			logger.Debug("Health check complete", "duration", time.Since(start).String())
		}
	}
}

func deconstructAll(pools []*pool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, p := range pools {
		p.Deconstruct(ctx)
	}
}
