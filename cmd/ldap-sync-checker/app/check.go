package app

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stacklok/ldap-sync-checker/internal/alert"
	"github.com/stacklok/ldap-sync-checker/internal/config"
	pkgsync "github.com/stacklok/ldap-sync-checker/internal/sync"
)

func newCheckCmd(v *viper.Viper, d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare consumer contextCSN values with the provider once",
		Long: `Read the contextCSN of the provider and every consumer, print one line per
consumer and exit with 0 when all are in sync, 1 when any is out of sync,
2 when the provider could not be reached and 3 on configuration errors.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, v, d)
		},
	}

	addCheckFlags(cmd.Flags())
	cmd.Flags().Bool("no-alerts", false, "Do not send alerts even if alerting is enabled")
	return cmd
}

// checkFlags override check settings on both check and monitor
var checkFlags = []string{"threshold", "server-id", "concurrency", "no-threshold-policy", "output"}

// addCheckFlags registers the flags that override check settings
func addCheckFlags(flags *pflag.FlagSet) {
	flags.String("threshold", "", "Allowed consumer lag (Go duration or seconds)")
	flags.Int("server-id", -1, "Compare only contextCSN values of this server id (0-4095)")
	flags.Int("concurrency", 0, "Number of consumers checked in parallel")
	flags.String("no-threshold-policy", "", "Outcome of a CSN mismatch without threshold (strict or lenient)")
	flags.StringP("output", "o", FormatTable, "Output format (table or json)")
}

// bindFlags binds the flags of the command being run, so every flag can also
// be set through its LDAPSYNC_* variable. check and monitor share flag names,
// so binding happens at run time rather than when the commands are built.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, names ...string) error {
	for _, name := range names {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			return configError(fmt.Errorf("failed to bind flag %s: %w", name, err))
		}
	}
	return nil
}

// overridesFromFlags converts the bound check flags into config overrides.
// Integers are parsed here so a malformed variable is an error, not a zero.
func overridesFromFlags(v *viper.Viper) (config.Overrides, error) {
	var o config.Overrides

	if threshold := v.GetString("threshold"); threshold != "" {
		d, err := config.ParseDuration(threshold)
		if err != nil {
			return o, fmt.Errorf("invalid threshold: %w", err)
		}
		o.Threshold = &d
	}

	serverID, err := strconv.Atoi(v.GetString("server-id"))
	if err != nil {
		return o, fmt.Errorf("invalid server id: %w", err)
	}
	if serverID >= 0 {
		o.ServerID = &serverID
	}

	if o.Concurrency, err = strconv.Atoi(v.GetString("concurrency")); err != nil {
		return o, fmt.Errorf("invalid concurrency: %w", err)
	}
	o.NoThresholdPolicy = v.GetString("no-threshold-policy")
	return o, nil
}

// prepareConfig loads the configuration and applies flag overrides
func prepareConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	overrides, err := overridesFromFlags(v)
	if err != nil {
		return nil, configError(err)
	}
	if err := cfg.ApplyOverrides(overrides); err != nil {
		return nil, configError(fmt.Errorf("invalid configuration: %w", err))
	}
	return cfg, nil
}

func runCheck(cmd *cobra.Command, v *viper.Viper, d deps) error {
	ctx := cmd.Context()

	if err := bindFlags(v, cmd.Flags(), append(checkFlags, "no-alerts")...); err != nil {
		return err
	}
	format := v.GetString("output")
	if err := validateFormat(format); err != nil {
		return configError(err)
	}
	noAlerts := v.GetBool("no-alerts")

	cfg, err := prepareConfig(v)
	if err != nil {
		return err
	}

	dialer, err := d.newDialer(cfg)
	if err != nil {
		return configError(fmt.Errorf("failed to create dialer: %w", err))
	}

	var sink alert.Sink = alert.NopSink{}
	if cfg.Alerting.IsEnabled() && !noAlerts {
		if sink, err = alert.NewSink(cfg.Alerting, nil); err != nil {
			return configError(fmt.Errorf("failed to create alert sink: %w", err))
		}
	}
	builder := alert.NewBuilder(cfg.Alerting)

	result, err := pkgsync.NewOrchestrator(cfg, dialer).Check(ctx)
	if err != nil {
		if pkgsync.IsConnectivityFailure(err) {
			a := builder.ForProviderFailure(cfg.Provider, err, time.Now())
			if sendErr := sink.Send(ctx, []alert.Alert{a}); sendErr != nil {
				slog.ErrorContext(ctx, "Failed to send alerts", "error", sendErr)
			}
			return &ExitError{Code: ExitProviderFailure, Err: err}
		}
		return configError(err)
	}

	if err := renderResult(cmd.OutOrStdout(), result, format); err != nil {
		return err
	}

	if err := sink.Send(ctx, builder.ForResult(result)); err != nil {
		slog.ErrorContext(ctx, "Failed to send alerts", "error", err)
	}

	if !result.InSync {
		return &ExitError{
			Code: ExitOutOfSync,
			Err:  fmt.Errorf("%d of %d consumers out of sync", len(result.OutOfSync()), len(result.Findings)),
		}
	}
	return nil
}
