package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loadcell/internal/infrastructure"
	"loadcell/internal/operations"
	"loadcell/pkg/contracts/domain"
)

func newProcessCmd(c *cli) *cobra.Command {
	var (
		outputDir string
		hourly    bool
		asJSON    bool
		snapshots bool
	)

	cmd := &cobra.Command{
		Use:   "process <logger-file>",
		Short: "Run the cleaning pipeline over one logger file",
		Example: `  loadcell process site3.csv
  loadcell process site3.xlsx --output-dir out --hourly`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(c.cfg.Telemetry), c.logger)
			if err != nil {
				return c.fail(cmd, "Failed to initialize telemetry", err)
			}
			defer func() {
				if err := providers.Shutdown(context.Background()); err != nil {
					c.logger.WarnContext(ctx, "Telemetry shutdown failed", slog.String("error", err.Error()))
				}
			}()

			tracer, err := operations.NewOperationTracer(providers)
			if err != nil {
				return c.fail(cmd, "Failed to create pipeline tracer", err)
			}
			manager, err := operations.NewPipeline(c.cfg, operations.BuildOptions{Hourly: hourly}, tracer, c.logger)
			if err != nil {
				return c.fail(cmd, "Failed to build pipeline", err)
			}
			manager.GetConfig().KeepSnapshots = snapshots

			resp, runErr := manager.Process(ctx, args[0], outputDir)

			if path := c.cfg.Telemetry.MetricsFile; path != "" && c.cfg.Telemetry.Enabled {
				if err := providers.WriteMetricsFile(path); err != nil {
					c.logger.WarnContext(ctx, "Failed to write metrics file",
						slog.String("path", path),
						slog.String("error", err.Error()))
				}
			}

			if runErr != nil {
				if step := operations.FailedStep(runErr); step != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "failed at stage %s\n", step)
				}
				return c.fail(cmd, "Processing failed", runErr)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if snapshots {
					return enc.Encode(resp)
				}
				return enc.Encode(resp.Summary)
			}
			printSummary(cmd, resp.Summary)
			printSnapshots(cmd, resp.Snapshots)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for results (default next to the input)")
	cmd.Flags().BoolVar(&hourly, "hourly", false, "also write an hourly mean series")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run summary as JSON")
	cmd.Flags().BoolVar(&snapshots, "keep-snapshots", false, "report sample and gap counts after every stage")
	return cmd
}

func printSummary(cmd *cobra.Command, s *domain.RunSummary) {
	if s == nil {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run:        %s\n", s.RunID)
	fmt.Fprintf(out, "input:      %s\n", s.Input)
	fmt.Fprintf(out, "output:     %s\n", s.Output)
	fmt.Fprintf(out, "step:       %s\n", s.Step)
	fmt.Fprintf(out, "samples:    %d (%d missing, %d unresolved)\n", s.Samples, s.Missing, s.Unresolved)
	fmt.Fprintf(out, "anomalies:  %d events, %d periods\n", s.Events, s.Periods)
	d := s.Diagnostics
	if d.ParseErrors+d.SkippedRows+d.DuplicatesDropped+d.OffGridDropped+d.InsufficientData > 0 {
		fmt.Fprintf(out, "dropped:    %d unparsable, %d skipped, %d duplicate, %d off-grid; %d without enough data\n",
			d.ParseErrors, d.SkippedRows, d.DuplicatesDropped, d.OffGridDropped, d.InsufficientData)
	}
	for _, msg := range d.Messages {
		fmt.Fprintf(out, "note:       %s\n", msg)
	}
	fmt.Fprintf(out, "took:       %s\n", s.Duration)
}

func printSnapshots(cmd *cobra.Command, snaps []operations.Snapshot) {
	if len(snaps) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "stages:")
	for _, snap := range snaps {
		fmt.Fprintf(out, "  %-12s %d samples, %d missing\n", snap.Stage, snap.Series.Len(), snap.Missing)
	}
}
