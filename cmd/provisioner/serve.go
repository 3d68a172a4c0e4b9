package provisioner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freekieb7/grafana-provisioner/internal/api"
	"github.com/freekieb7/grafana-provisioner/internal/provision"
	"github.com/freekieb7/grafana-provisioner/internal/telemetry"
	"github.com/freekieb7/grafana-provisioner/internal/webhook"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			rt.logger.Error("Failed to flush telemetry", "error", err)
		}
	}()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return err
	}

	manager := provision.NewManager(rt.logger, rt.client, webhook.NewValidator(), metrics, provision.OptionsFromConfig(rt.cfg))
	handler := api.NewHandler(rt.logger, manager, rt.cfg.Webhook.Secret, rt.cfg.Server.ServiceName)
	app := api.NewApp(rt.cfg.Server, rt.logger, handler)

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("Starting HTTP server",
			"addr", rt.cfg.Server.Addr(),
			"grafana_url", rt.cfg.Grafana.URL,
			"credential", rt.credential.String(),
			"user_resolution", rt.cfg.Provision.Resolution,
			"signature_check", rt.cfg.Webhook.Secret != "",
		)
		errCh <- app.Listen(rt.cfg.Server.Addr())
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	rt.logger.Info("Shutting down server", "timeout", shutdownTimeout)
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	rt.logger.Info("Server stopped")

	return nil
}
