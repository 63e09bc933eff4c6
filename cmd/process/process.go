// Package process runs one analysis batch from the command line.
package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldscan/fieldscan/cmd/render"
	"github.com/fieldscan/fieldscan/internal/analysis"
	"github.com/fieldscan/fieldscan/internal/conf"
	"github.com/fieldscan/fieldscan/internal/pipeline"
)

// Command creates the process command.
func Command(settings *conf.Settings) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Analyze every photo that has not been analyzed yet",
		Long:  "Run one analysis batch over all pending photos and print a summary. Interrupting stops after the photo in progress.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := analysis.Open(settings)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return Run(ctx, rt.Processor, cmd.OutOrStdout(), verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every skipped photo")

	return cmd
}

// Runner runs one batch.
type Runner interface {
	ProcessAll(ctx context.Context) (pipeline.Summary, error)
}

// Run processes all pending photos and writes the summary tables to w.
func Run(ctx context.Context, runner Runner, w io.Writer, verbose bool) error {
	summary, err := runner.ProcessAll(ctx)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(w, FormatSummary(&summary)); err != nil {
		return err
	}
	if verbose && summary.Skipped() > 0 {
		if _, err := fmt.Fprintln(w, FormatSkipped(&summary)); err != nil {
			return err
		}
	}
	return nil
}

// FormatSummary renders the run totals.
func FormatSummary(s *pipeline.Summary) string {
	rows := [][2]string{
		{"Run", s.RunID},
		{"Photos analyzed", strconv.Itoa(s.PhotosAnalyzed)},
		{"Observations produced", strconv.Itoa(s.ObservationsProduced)},
		{"Photos skipped", strconv.Itoa(s.Skipped())},
	}

	byReason := s.SkippedByReason()
	reasons := make([]string, 0, len(byReason))
	for r := range byReason {
		reasons = append(reasons, string(r))
	}
	slices.Sort(reasons)
	for _, r := range reasons {
		rows = append(rows, [2]string{"  " + r, strconv.Itoa(byReason[pipeline.Reason(r)])})
	}

	rows = append(rows,
		[2]string{"Duration", s.Duration().Round(time.Millisecond).String()},
		[2]string{"Canceled", strconv.FormatBool(s.Canceled)},
	)
	return render.KeyValue("Metric", "Value", rows)
}

// FormatSkipped renders one row per skipped photo.
func FormatSkipped(s *pipeline.Summary) string {
	var rows [][]string
	for _, item := range s.Items {
		if item.Status != pipeline.StatusSkipped {
			continue
		}
		rows = append(rows, []string{strconv.FormatUint(uint64(item.PhotoID), 10), string(item.Reason), item.Error})
	}
	return render.Table([]string{"Photo", "Reason", "Error"}, rows,
		[]render.Alignment{render.AlignRight, render.AlignLeft, render.AlignLeft})
}
