package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/stacklok/ldap-sync-checker/internal/csn"
	pkgsync "github.com/stacklok/ldap-sync-checker/internal/sync"
)

// Output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

func validateFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON:
		return nil
	default:
		return fmt.Errorf("--output must be %s or %s, got %q", FormatTable, FormatJSON, format)
	}
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// renderResult prints one line per consumer
func renderResult(w io.Writer, result *pkgsync.Result, format string) error {
	if format == FormatJSON {
		return writeJSON(w, result)
	}

	providerCSN := "-"
	if result.ProviderCSN != nil {
		providerCSN = result.ProviderCSN.Raw
	}
	if _, err := fmt.Fprintf(w, "Provider %s contextCSN %s\n\n", result.Provider.DisplayName(), providerCSN); err != nil {
		return err
	}

	table := newTable(w, []string{"CONSUMER", "STATUS", "REASON", "LAG", "CONTEXTCSN"})
	for _, f := range result.Findings {
		state := "IN SYNC"
		if !f.InSync {
			state = "OUT OF SYNC"
		}
		consumerCSN := "-"
		if f.ConsumerCSN != nil {
			consumerCSN = f.ConsumerCSN.Raw
		}
		table.Append([]string{f.Consumer.DisplayName(), state, f.Reason.String(), formatLag(f.Lag), consumerCSN})
	}
	table.Render()

	_, err := fmt.Fprintf(w, "\n%d of %d consumers in sync\n",
		len(result.Findings)-len(result.OutOfSync()), len(result.Findings))
	return err
}

func formatLag(lag *time.Duration) string {
	if lag == nil {
		return "-"
	}
	return lag.String()
}

// csnRow is one contextCSN value read from one server
type csnRow struct {
	Server string     `json:"server"`
	Role   string     `json:"role"`
	Raw    string     `json:"raw,omitempty"`
	Value  *csn.Value `json:"value,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// renderCSNs prints every contextCSN value with its parsed fields
func renderCSNs(w io.Writer, rows []csnRow, format string) error {
	if format == FormatJSON {
		return writeJSON(w, rows)
	}

	table := newTable(w, []string{"SERVER", "ROLE", "CONTEXTCSN", "TIMESTAMP", "SID", "SEQ", "MOD"})
	for _, row := range rows {
		switch {
		case row.Value != nil:
			sid := "-"
			if row.Value.HasServerID {
				sid = csn.FormatServerID(row.Value.ServerID)
			}
			table.Append([]string{
				row.Server,
				row.Role,
				row.Raw,
				row.Value.Timestamp.Format(time.RFC3339),
				sid,
				strconv.FormatUint(row.Value.Sequence, 10),
				strconv.FormatUint(row.Value.ModCount, 10),
			})
		default:
			table.Append([]string{row.Server, row.Role, row.Raw, "error: " + row.Error, "-", "-", "-"})
		}
	}
	table.Render()
	return nil
}
