package suite

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"
)

const timePrecision = 10 * time.Millisecond

// RenderTable writes a human-readable per-stage table followed by a verdict
// line.
func RenderTable(w io.Writer, summary *Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSTATUS\tEXIT\tCHECKS\tDURATION")
	for _, r := range summary.Results {
		passed, total := 0, len(r.Checks)
		for _, c := range r.Checks {
			if c.Pass {
				passed++
			}
		}
		status := r.Status
		if r.TimedOut {
			status += " (timeout)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d/%d\t%s\n",
			r.StageID, status, r.ExitCode, passed, total, r.Duration.Round(timePrecision))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	verdict := "PASSED"
	if !summary.Passed {
		verdict = fmt.Sprintf("FAILED (%d of %d stages)", summary.FailedCount(), len(summary.Results))
	}
	_, err := fmt.Fprintf(w, "\nSuite %s: %s in %s\n",
		summary.Suite, verdict, summary.Duration.Round(timePrecision))
	return err
}

// WriteReport persists the summary as JSON under the reports directory,
// named after the run ID. Returns the written path.
func WriteReport(reportsDir string, summary *Summary) (string, error) {
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}

	path := filepath.Join(reportsDir, summary.RunID+".json")
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
