package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/Adithya-Monish-Kumar-K/configsync/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
)

var (
	colorOK   = color.New(color.FgGreen)
	colorSkip = color.New(color.FgYellow)
	colorFail = color.New(color.FgRed, color.Bold)
	colorBold = color.New(color.Bold)
)

// lastRunFinder looks up the most recent completed run of a region.
// *ledger.Store implements it.
type lastRunFinder interface {
	LastCompleted(ctx context.Context, region string) (*ingestion.RegionOutcome, error)
}

// printSummary writes one line per region and a total line, and returns the
// totals. With a finder, regions that did not complete also show when their
// inventory was last refreshed.
func printSummary(ctx context.Context, w io.Writer, outcomes []ingestion.RegionOutcome, finder lastRunFinder) (indexed, failed int) {
	colorBold.Fprintln(w, "configsync summary")
	for _, o := range outcomes {
		indexed += o.Indexed
		failed += o.Failed

		status := colorOK
		switch {
		case o.Skipped():
			status = colorSkip
		case o.Outcome != apperrors.OutcomeCompleted || o.Failed > 0:
			status = colorFail
		}
		fmt.Fprintf(w, "  %-16s %s", o.Region, status.Sprintf("%-24s", o.Outcome))
		if o.Outcome == apperrors.OutcomeCompleted || o.Indexed > 0 || o.Failed > 0 {
			fmt.Fprintf(w, " added %d items", o.Indexed)
			if o.Failed > 0 {
				fmt.Fprintf(w, ", couldn't add %d", o.Failed)
			}
		}
		if finder != nil && o.Outcome != apperrors.OutcomeCompleted {
			if last, err := finder.LastCompleted(ctx, o.Region); err == nil {
				if last == nil {
					fmt.Fprint(w, " (never completed)")
				} else {
					fmt.Fprintf(w, " (last completed %s)", last.FinishedAt.UTC().Format(time.RFC3339))
				}
			}
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "  %d regions, %d items added, %d items failed\n", len(outcomes), indexed, failed)
	return indexed, failed
}
