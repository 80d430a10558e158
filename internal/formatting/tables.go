package formatting

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"modsync/internal/engine"
	"modsync/internal/history"
)

// newTable creates a table with the standard modsync styling.
func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	return t
}

// outcomeColor maps an outcome kind to its display color.
func outcomeColor(kind engine.OutcomeKind) text.Color {
	switch kind {
	case engine.OutcomeInstalled, engine.OutcomeAlreadyInstalled:
		return text.FgGreen
	case engine.OutcomeFailed:
		return text.FgRed
	default:
		return text.FgYellow
	}
}

// RenderResult writes a per-module outcome table for a reconciliation run.
func RenderResult(out io.Writer, result *engine.Result) {
	outcomes := result.Outcomes()
	names := make([]string, 0, len(outcomes))
	for name := range outcomes {
		names = append(names, name)
	}
	sort.Strings(names)

	t := newTable(out)
	t.AppendHeader(table.Row{"MODULE", "OUTCOME", "DETAIL"})
	for _, name := range names {
		outcome := outcomes[name]
		t.AppendRow(table.Row{
			name,
			outcomeColor(outcome.Kind).Sprint(string(outcome.Kind)),
			outcome.Reason,
		})
	}
	t.Render()

	verdict := text.FgGreen.Sprint("success")
	if !result.Success {
		verdict = text.FgRed.Sprint("failure")
	}
	fmt.Fprintf(out, "run %s: %s in %s\n", result.RunID, verdict, result.Duration.Round(time.Millisecond))
}

// RenderStatus writes the module state partition for a tenant.
func RenderStatus(out io.Writer, status *engine.Status) {
	t := newTable(out)
	t.AppendHeader(table.Row{"STATE", "COUNT", "MODULES"})
	t.AppendRow(table.Row{text.FgGreen.Sprint("installed"), len(status.Installed), joinNames(status.Installed)})
	t.AppendRow(table.Row{text.FgYellow.Sprint("to install"), len(status.ToInstall), joinNames(status.ToInstall)})
	t.AppendRow(table.Row{text.FgYellow.Sprint("to upgrade"), len(status.ToUpgrade), joinNames(status.ToUpgrade)})
	t.AppendRow(table.Row{"uninstalled", len(status.Uninstalled), joinNames(status.Uninstalled)})
	t.Render()
}

// RenderValidation writes the per-module installed check result.
func RenderValidation(out io.Writer, validated map[string]bool) {
	names := make([]string, 0, len(validated))
	for name := range validated {
		names = append(names, name)
	}
	sort.Strings(names)

	t := newTable(out)
	t.AppendHeader(table.Row{"MODULE", "INSTALLED"})
	for _, name := range names {
		mark := text.FgGreen.Sprint("yes")
		if !validated[name] {
			mark = text.FgRed.Sprint("no")
		}
		t.AppendRow(table.Row{name, mark})
	}
	t.Render()
}

// RenderHistory writes recent reconciliation runs, newest first.
func RenderHistory(out io.Writer, records []history.RunRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "no recorded runs")
		return
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"RUN", "TENANT", "STARTED", "DURATION", "RESULT", "INSTALLED", "FAILED"})
	for _, rec := range records {
		verdict := text.FgGreen.Sprint("ok")
		if !rec.Success {
			verdict = text.FgRed.Sprint("failed")
		}
		t.AppendRow(table.Row{
			shortID(rec.RunID),
			rec.Tenant,
			rec.Started.Format(time.RFC3339),
			rec.Duration.Round(time.Millisecond),
			verdict,
			rec.Installed,
			rec.Failed,
		})
	}
	t.Render()
}

// shortID abbreviates a run id for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// joinNames renders a name list compactly, truncating long lists.
func joinNames(names []string) string {
	const maxShown = 8
	if len(names) == 0 {
		return ""
	}
	if len(names) <= maxShown {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s, ... (%d more)", strings.Join(names[:maxShown], ", "), len(names)-maxShown)
}
