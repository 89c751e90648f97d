package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/ldap-sync-checker/internal/config"
	"github.com/stacklok/ldap-sync-checker/internal/csn"
	"github.com/stacklok/ldap-sync-checker/internal/directory"
)

const (
	roleProvider = "provider"
	roleConsumer = "consumer"
)

func newCSNsCmd(v *viper.Viper, d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csns",
		Short: "List every contextCSN value of every server",
		Long: `Read all contextCSN values stored on the base DN of the provider and each
consumer and print them with their parsed timestamp, sequence, server id and
modification count. Servers that cannot be read are listed with the error.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCSNs(cmd, v, d)
		},
	}
	cmd.Flags().StringP("output", "o", FormatTable, "Output format (table or json)")
	return cmd
}

func runCSNs(cmd *cobra.Command, v *viper.Viper, d deps) error {
	if err := bindFlags(v, cmd.Flags(), "output"); err != nil {
		return err
	}
	format := v.GetString("output")
	if err := validateFormat(format); err != nil {
		return configError(err)
	}

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	dialer, err := d.newDialer(cfg)
	if err != nil {
		return configError(fmt.Errorf("failed to create dialer: %w", err))
	}

	ctx := cmd.Context()
	rows := readServerCSNs(ctx, dialer, cfg, cfg.Provider, roleProvider)
	for _, consumer := range cfg.Consumers {
		rows = append(rows, readServerCSNs(ctx, dialer, cfg, consumer, roleConsumer)...)
	}

	return renderCSNs(cmd.OutOrStdout(), rows, format)
}

// readServerCSNs returns one row per contextCSN value of server, or a single
// error row when the server cannot be read
func readServerCSNs(
	ctx context.Context,
	dialer directory.Dialer,
	cfg *config.Config,
	server config.ServerDescriptor,
	role string,
) []csnRow {
	name := server.DisplayName()
	errorRow := func(err error) []csnRow {
		slog.WarnContext(ctx, "Failed to read contextCSN", "server", server, "error", err)
		return []csnRow{{Server: name, Role: role, Error: err.Error()}}
	}

	opCtx, cancel := context.WithTimeout(ctx, cfg.GetTimeout())
	defer cancel()

	bindDN, password := server.Credentials()
	session, err := directory.Connect(opCtx, dialer, server.URI, bindDN, password)
	if err != nil {
		return errorRow(err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.DebugContext(ctx, "Failed to close session", "server", server, "error", err)
		}
	}()

	values, err := directory.ReadAllCSNs(opCtx, session, cfg.BaseDN)
	if err != nil {
		return errorRow(err)
	}

	rows := make([]csnRow, 0, len(values))
	for _, raw := range values {
		row := csnRow{Server: name, Role: role, Raw: raw}
		parsed, err := csn.Parse(raw)
		if err != nil {
			row.Error = err.Error()
		} else {
			row.Value = &parsed
		}
		rows = append(rows, row)
	}
	slices.SortStableFunc(rows, newestFirst)
	return rows
}

// newestFirst orders parsed values by descending CSN, unparseable ones last
func newestFirst(a, b csnRow) int {
	switch {
	case a.Value == nil && b.Value == nil:
		return 0
	case a.Value == nil:
		return 1
	case b.Value == nil:
		return -1
	}
	return csn.Compare(*b.Value, *a.Value)
}
