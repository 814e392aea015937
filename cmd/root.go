package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rfq-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "rfq-cli",
	Short: "RFQ evaluation and triage engine",
	Long:  "Scores inbound RFQs against the rule catalog, recommends GO / NO-GO, keeps an append-only audit log and rolls it up into OEM business cases and rule-trigger reports.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
