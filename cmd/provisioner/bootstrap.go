package provisioner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/freekieb7/grafana-provisioner/internal/config"
	"github.com/freekieb7/grafana-provisioner/internal/grafana"
	"github.com/freekieb7/grafana-provisioner/internal/logger"
	"github.com/freekieb7/grafana-provisioner/internal/telemetry"
)

// services is everything a command needs once configuration and the credential are resolved.
type services struct {
	cfg        config.Config
	credential config.Credential
	logger     *slog.Logger
	telemetry  *telemetry.Telemetry
	client     *grafana.Client
	logCloser  io.Closer
}

func bootstrap(ctx context.Context) (*services, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg := config.NewConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	log, logCloser := logger.New(*cfg, tel.SlogHandler(cfg.Log.Level))
	slog.SetDefault(log)

	credential, err := config.ResolveCredential(cfg.Grafana)
	if err != nil {
		log.Error("No usable Grafana credential", "auth_mode", cfg.Grafana.AuthMode, "error", err)
		return nil, errors.Join(err, tel.Shutdown(ctx), logCloser.Close())
	}

	client := grafana.NewClient(log, cfg.Grafana.URL, credential, grafana.Options{
		Timeout:   cfg.Grafana.Timeout,
		UserAgent: cfg.Server.ServiceName + "/" + cfg.Telemetry.ServiceVersion,
	})

	return &services{
		cfg:        *cfg,
		credential: credential,
		logger:     log,
		telemetry:  tel,
		client:     client,
		logCloser:  logCloser,
	}, nil
}

func (r *services) Close(ctx context.Context) error {
	return errors.Join(r.telemetry.Shutdown(ctx), r.logCloser.Close())
}
