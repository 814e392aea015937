package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rfq-cli/internal/monitoring"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run one alert check over the audit log and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), "monitor")
		if err != nil {
			return err
		}
		defer env.Close()

		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Service),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		res, err := checker.CheckOnce(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("monitor check complete",
			zap.Int("alerts", len(res.Alerts)),
			zap.Int("sent", res.Sent),
		)
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}
