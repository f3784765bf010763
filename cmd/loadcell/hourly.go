package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"loadcell/internal/config"
	apperrors "loadcell/internal/errors"
	"loadcell/internal/exporter"
	"loadcell/internal/resample"
	"loadcell/pkg/contracts/domain"
)

func newHourlyCmd(c *cli) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "hourly <processed-file>",
		Short: "Average an already processed file into hourly buckets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			records, err := exporter.ReadRecordsFile(input)
			if err != nil {
				return c.fail(cmd, "Failed to read processed file", err)
			}
			series, err := seriesFromRecords(records)
			if err != nil {
				return c.fail(cmd, "Processed file is not a regular series", err)
			}
			hourly, err := resample.Downsample(series, time.Hour)
			if err != nil {
				return c.fail(cmd, "Downsampling failed", err)
			}

			if output == "" {
				base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
				base = strings.TrimSuffix(base, config.ProcessedSuffix)
				output = filepath.Join(filepath.Dir(input), base+config.HourlySuffix+".csv")
			}
			if err := exporter.NewSeriesExporter().WriteHourly(output, hourly); err != nil {
				return c.fail(cmd, "Failed to write hourly file", err)
			}

			c.logger.InfoContext(cmd.Context(), "Hourly series written",
				slog.String("path", output),
				slog.Int("buckets", hourly.Len()))
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d hours)\n", output, hourly.Len())
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (default <name>_hourly.csv next to the input)")
	return cmd
}

// seriesFromRecords rebuilds a regular series from processed rows. The step
// is the spacing of the first two rows and every later row must keep it.
func seriesFromRecords(records []domain.OutputRecord) (domain.Series, error) {
	if len(records) < 2 {
		return domain.Series{}, apperrors.NewGridError("at least two rows are needed")
	}
	step := records[1].Timestamp.Sub(records[0].Timestamp)
	if step <= 0 {
		return domain.Series{}, apperrors.NewGridError("rows are not in increasing time order")
	}

	samples := make([]domain.Sample, len(records))
	for i, r := range records {
		if i > 0 && r.Timestamp.Sub(records[i-1].Timestamp) != step {
			return domain.Series{}, apperrors.NewGridError(
				fmt.Sprintf("row %d breaks the %s grid", i+2, step))
		}
		origin := domain.OriginObserved
		if r.Quality == domain.QualityMissing {
			origin = domain.OriginGap
		}
		samples[i] = domain.Sample{
			Timestamp: r.Timestamp,
			Value:     r.Value,
			RawText:   r.RawText,
			Mask:      r.Mask,
			Origin:    origin,
		}
	}
	return domain.Series{Samples: samples, Step: step}, nil
}
