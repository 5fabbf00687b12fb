package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/executor"
	"github.com/pseudomuto/changekeeper/pkg/migrator"
)

// writeResults renders one row per declared migration.
func writeResults(w io.Writer, report *executor.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLOCATOR\tSTATUS\tAPPLIED AT")

	for _, res := range report.Results {
		appliedAt := "-"
		if !res.AppliedAt.IsZero() {
			appliedAt = res.AppliedAt.UTC().Format(time.RFC3339)
		}

		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", res.ID, res.Locator, statusLabel(res), appliedAt)
	}

	return tw.Flush()
}

// writeProblems lists everything that would stop a run, followed by warnings.
func writeProblems(w io.Writer, report *executor.Report) {
	for _, res := range report.Problems() {
		fmt.Fprintf(w, "error: migration %d (%s): %v\n", res.ID, res.Locator, res.Err)
	}

	if report.SumErr != nil {
		fmt.Fprintf(w, "error: %v\n", report.SumErr)
	}

	for _, orphan := range report.Orphans {
		fmt.Fprintf(w, "warning: applied migration %d (%s) is no longer declared in the changelog\n",
			orphan.MigrationID,
			orphan.Locator,
		)
	}
}

// runnable counts the pending migrations a run would apply.
func runnable(report *executor.Report) int {
	n := 0
	for _, res := range report.Results {
		if res.Status == executor.StatusPending && res.Err == nil {
			n++
		}
	}

	return n
}

func statusLabel(res *executor.Result) string {
	var nfErr *migrator.NotFoundError
	if res.Status == executor.StatusPending && errors.As(res.Err, &nfErr) {
		return "missing"
	}

	return res.Status.String()
}
