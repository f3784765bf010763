// Command loadcell cleans load-cell logger files and serves the results.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"loadcell/internal/config"
	"loadcell/internal/infrastructure"
	"loadcell/pkg/contracts"
)

// cli carries state shared by the subcommands once the root has run
type cli struct {
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           config.AppName,
		Short:         "Load-cell time-series cleaning pipeline",
		Version:       contracts.GetFullVersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configFile)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				return err
			}
			logger, err := infrastructure.InitializeLogger(cfg.Logging)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v, using default logger\n", err)
				logger = slog.Default()
			}
			c.cfg = cfg
			c.logger = logger
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "YAML configuration file (default loadcell.yaml if present)")

	root.AddCommand(newProcessCmd(c), newHourlyCmd(c), newServeCmd(c))
	return root
}

// fail logs err and prints it for the operator
func (c *cli) fail(cmd *cobra.Command, msg string, err error) error {
	c.logger.ErrorContext(cmd.Context(), msg, slog.String("error", err.Error()))
	fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
	return err
}
