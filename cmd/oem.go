package main

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sells-group/rfq-cli/internal/ingest"
	"github.com/sells-group/rfq-cli/internal/model"
)

var (
	oemTrackValue string
	oemTrackAt    string
)

var oemCmd = &cobra.Command{
	Use:   "oem",
	Short: "Record vendor occurrences for the business case",
}

var oemTrackCmd = &cobra.Command{
	Use:   "track <oem>",
	Short: "Append an OEM occurrence to the audit log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := decimal.NewFromString(oemTrackValue)
		if err != nil {
			return model.NewAttributeError("value", "not a number: "+oemTrackValue)
		}
		var at time.Time
		if oemTrackAt != "" {
			at, err = ingest.ParseTime(oemTrackAt)
			if err != nil {
				return model.NewAttributeError("at", "not a date: "+oemTrackAt)
			}
		}

		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ev, err := env.Service.TrackOEMOccurrence(cmd.Context(), args[0], value, at)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ev)
	},
}

func init() {
	oemTrackCmd.Flags().StringVar(&oemTrackValue, "value", "0", "estimated value of the occurrence")
	oemTrackCmd.Flags().StringVar(&oemTrackAt, "at", "", "occurrence time (default now)")
	oemCmd.AddCommand(oemTrackCmd)
	rootCmd.AddCommand(oemCmd)
}
