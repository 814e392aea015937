package main

import (
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rfq-cli/internal/ingest"
	"github.com/sells-group/rfq-cli/internal/report"
)

var (
	reportFormat string
	reportOutput string

	bcMinOccurrences int
	bcMinTotalValue  string

	rulesStart string
	rulesEnd   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Roll up the audit log into reports",
}

// reportWriter opens --output, or stdout when unset. XLSX needs a file.
func reportWriter(cmd *cobra.Command, f report.Format) (io.Writer, func() error, error) {
	if reportOutput == "" || reportOutput == "-" {
		if f == report.FormatXLSX {
			return nil, nil, eris.New("--output is required for xlsx")
		}
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	file, err := os.Create(reportOutput)
	if err != nil {
		return nil, nil, eris.Wrap(err, "create report file")
	}
	return file, file.Close, nil
}

var reportBusinessCaseCmd = &cobra.Command{
	Use:   "business-case",
	Short: "OEM occurrences over the trailing window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := report.ParseFormat(reportFormat)
		if err != nil {
			return err
		}
		minValue, err := decimal.NewFromString(bcMinTotalValue)
		if err != nil {
			return eris.Wrapf(err, "invalid --min-total-value %q", bcMinTotalValue)
		}

		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		bc, err := env.Service.BusinessCase(cmd.Context(), bcMinOccurrences, minValue)
		if err != nil {
			return err
		}

		w, closeFn, err := reportWriter(cmd, format)
		if err != nil {
			return err
		}
		if err := report.WriteBusinessCase(w, bc, format); err != nil {
			closeFn() //nolint:errcheck
			return err
		}
		if bc.Skipped > 0 {
			zap.L().Warn("malformed audit events skipped", zap.Int("skipped", bc.Skipped))
		}
		return closeFn()
	},
}

var reportRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Rule trigger counts over a date range",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := report.ParseFormat(reportFormat)
		if err != nil {
			return err
		}
		var start, end time.Time
		if rulesStart != "" {
			if start, err = ingest.ParseTime(rulesStart); err != nil {
				return eris.Wrap(err, "invalid --start")
			}
		}
		if rulesEnd != "" {
			if end, err = ingest.ParseTime(rulesEnd); err != nil {
				return eris.Wrap(err, "invalid --end")
			}
			if len(rulesEnd) == len(time.DateOnly) {
				end = end.Add(24*time.Hour - time.Nanosecond)
			}
		}

		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Service.RuleTriggerSummary(cmd.Context(), start, end)
		if err != nil {
			return err
		}

		w, closeFn, err := reportWriter(cmd, format)
		if err != nil {
			return err
		}
		if err := report.WriteRuleSummary(w, sum, format); err != nil {
			closeFn() //nolint:errcheck
			return err
		}
		zap.L().Info("rule trigger summary",
			zap.Int("evaluations", sum.Totals.Events),
			zap.Int("auto_decline_events", sum.Totals.AutoDeclineEvents),
			zap.Float64("auto_decline_rate", sum.AutoDeclineRate()),
			zap.Int("skipped", sum.Totals.Skipped),
		)
		return closeFn()
	},
}

func init() {
	reportCmd.PersistentFlags().StringVar(&reportFormat, "format", "table", "output format: table, csv or xlsx")
	reportCmd.PersistentFlags().StringVarP(&reportOutput, "output", "o", "", "output file (default stdout)")

	reportBusinessCaseCmd.Flags().IntVar(&bcMinOccurrences, "min-occurrences", 0, "minimum occurrences in the window")
	reportBusinessCaseCmd.Flags().StringVar(&bcMinTotalValue, "min-total-value", "0", "minimum summed value in the window")

	reportRulesCmd.Flags().StringVar(&rulesStart, "start", "", "range start (inclusive)")
	reportRulesCmd.Flags().StringVar(&rulesEnd, "end", "", "range end (inclusive)")

	reportCmd.AddCommand(reportBusinessCaseCmd, reportRulesCmd)
	rootCmd.AddCommand(reportCmd)
}
