// Package app provides the command line interface of ldap-sync-checker.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	monitorapp "github.com/stacklok/ldap-sync-checker/internal/app"
	"github.com/stacklok/ldap-sync-checker/internal/config"
	"github.com/stacklok/ldap-sync-checker/internal/directory"
	"github.com/stacklok/ldap-sync-checker/internal/logging"
	"github.com/stacklok/ldap-sync-checker/internal/versions"
)

// deps are the collaborators commands build at run time. Tests replace them.
type deps struct {
	newDialer func(cfg *config.Config) (directory.Dialer, error)
}

func defaultDeps() deps {
	return deps{newDialer: monitorapp.NewDialer}
}

// Execute runs the root command with args and returns the process exit code
func Execute(args []string, stdout io.Writer) int {
	return run(context.Background(), defaultDeps(), &logCloser{}, args, stdout)
}

// run executes the command tree and closes the --log-file handle afterwards.
// cobra skips PersistentPostRunE when RunE fails, so the handle is closed here.
func run(ctx context.Context, d deps, logs *logCloser, args []string, stdout io.Writer) int {
	cmd := newRootCmd(d, logs)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)

	err := cmd.ExecuteContext(ctx)
	if err != nil && exitCode(err) != ExitOutOfSync {
		slog.Error("Command failed", "error", err)
	}
	if closeErr := logs.Close(); closeErr != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", closeErr)
	}
	return exitCode(err)
}

// logCloser holds the closer returned by logging.Setup
type logCloser struct {
	close  func() error
	closed bool
}

// Close releases the log file once; later calls do nothing
func (l *logCloser) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if l.close == nil {
		return nil
	}
	return l.close()
}

func newRootCmd(d deps, logs *logCloser) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:               "ldap-sync-checker",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Short:             "Check LDAP replication by comparing contextCSN values",
		Long: `ldap-sync-checker reads the contextCSN of a provider and its consumers,
reports which consumers lag behind and optionally raises Alertmanager alerts.`,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			closeLog, err := logging.Setup(logging.Options{
				Debug: v.GetBool("debug"),
				Quiet: v.GetBool("quiet"),
				File:  v.GetString("log-file"),
			})
			if err != nil {
				return configError(err)
			}
			logs.close = closeLog
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to configuration file (YAML format)")
	flags.Bool("debug", false, "Enable debug logging")
	flags.Bool("quiet", false, "Only log errors")
	flags.String("log-file", "", "Also append JSON logs to this file")
	for _, name := range []string{"config", "debug", "quiet", "log-file"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
		}
	}

	rootCmd.AddCommand(newCheckCmd(v, d))
	rootCmd.AddCommand(newCSNsCmd(v, d))
	rootCmd.AddCommand(newMonitorCmd(v, d))
	rootCmd.AddCommand(newValidateCmd(v))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig reads the file named by --config
func loadConfig(v *viper.Viper) (*config.Config, error) {
	path := v.GetString("config")
	if path == "" {
		return nil, configError(fmt.Errorf("--config is required"))
	}
	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	if err != nil {
		return nil, configError(fmt.Errorf("failed to load configuration: %w", err))
	}
	slog.Debug("Loaded configuration",
		"path", path,
		"provider", cfg.Provider,
		"consumers", len(cfg.Consumers))
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info: %w", err)
				}
				_, err = fmt.Fprintln(out, string(output))
				return err
			}

			_, err = fmt.Fprintf(out, "ldap-sync-checker %s (commit %s, built %s, %s, %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return err
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
