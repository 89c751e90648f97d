package app

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	monitorapp "github.com/stacklok/ldap-sync-checker/internal/app"
)

const defaultGracefulTimeout = 30 * time.Second

func newMonitorCmd(v *viper.Viper, d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the check periodically and serve its status over HTTP",
		Long: `Run the sync check on an interval, persist the latest status of every
consumer, send alerts for out-of-sync consumers and serve /health, /readiness,
/v1/status, /v1/result and, with the Prometheus exporter, /metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd, v, d)
		},
	}

	addCheckFlags(cmd.Flags())
	cmd.Flags().String("address", "", "Address to listen on (overrides monitor.address)")
	cmd.Flags().String("status-dir", "", "Directory for per-consumer status files (overrides monitor.statusDir)")
	return cmd
}

func runMonitor(cmd *cobra.Command, v *viper.Viper, d deps) error {
	if err := bindFlags(v, cmd.Flags(), append(checkFlags, "address", "status-dir")...); err != nil {
		return err
	}
	cfg, err := prepareConfig(v)
	if err != nil {
		return err
	}

	dialer, err := d.newDialer(cfg)
	if err != nil {
		return configError(fmt.Errorf("failed to create dialer: %w", err))
	}

	opts := []monitorapp.MonitorAppOptions{
		monitorapp.WithConfig(cfg),
		monitorapp.WithDialer(dialer),
	}
	if address := v.GetString("address"); address != "" {
		opts = append(opts, monitorapp.WithAddress(address))
	}
	if dir := v.GetString("status-dir"); dir != "" {
		opts = append(opts, monitorapp.WithStatusDirectory(dir))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := monitorapp.NewMonitorApp(ctx, opts...)
	if err != nil {
		return configError(fmt.Errorf("failed to build monitor: %w", err))
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			_ = app.Stop(defaultGracefulTimeout)
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	}

	if err := app.Stop(defaultGracefulTimeout); err != nil {
		return err
	}
	return <-errChan
}
