// Package stats prints photo counts and per-cell plant averages.
package stats

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fieldscan/fieldscan/cmd/render"
	"github.com/fieldscan/fieldscan/internal/analysis"
	"github.com/fieldscan/fieldscan/internal/conf"
	"github.com/fieldscan/fieldscan/internal/datastore"
)

// Command creates the stats command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show photo counts and per-cell averages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := analysis.Open(settings)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			return Run(cmd.Context(), rt.Store, cmd.OutOrStdout())
		},
	}
}

// Run writes the photo counts and one row per grid cell to w.
func Run(ctx context.Context, store datastore.Interface, w io.Writer) error {
	analyzed, notAnalyzed, err := store.CountPhotosByAnalysis(ctx)
	if err != nil {
		return err
	}
	cells, err := store.StatByCellID(ctx)
	if err != nil {
		return err
	}

	counts := render.KeyValue("Photos", "Count", [][2]string{
		{"Analyzed", strconv.FormatInt(analyzed, 10)},
		{"Not analyzed", strconv.FormatInt(notAnalyzed, 10)},
	})
	if _, err := fmt.Fprintln(w, counts); err != nil {
		return err
	}

	if len(cells) == 0 {
		_, err := fmt.Fprintln(w, "No plant observations yet.")
		return err
	}

	_, err = fmt.Fprintln(w, FormatCells(cells))
	return err
}

// FormatCells renders per-cell averages with two decimals.
func FormatCells(cells []datastore.CellStat) string {
	rows := make([][]string, 0, len(cells))
	for _, c := range cells {
		rows = append(rows, []string{
			c.CellID,
			strconv.FormatInt(c.Observations, 10),
			strconv.FormatFloat(c.AvgPlantHeight, 'f', 2, 64),
			strconv.FormatFloat(c.AvgLeafAngle, 'f', 2, 64),
			strconv.FormatFloat(c.AvgEarsHeight, 'f', 2, 64),
		})
	}
	return render.Table(
		[]string{"Cell", "Plants", "Height", "Leaf angle", "Ears height"},
		rows,
		[]render.Alignment{render.AlignLeft, render.AlignRight, render.AlignRight, render.AlignRight, render.AlignRight},
	)
}
