package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rfq-cli/internal/ingest"
	"github.com/sells-group/rfq-cli/internal/model"
)

var rfqCmd = &cobra.Command{
	Use:   "rfq",
	Short: "Create, update, evaluate and inspect RFQs",
}

// attrFlags binds the attribute flags shared by create and set.
type attrFlags struct {
	customer    string
	value       string
	competition int
	vertical    string
	oem         string
	previous    bool
	deadline    string
	rfqType     string
	quantity    int
	flags       []string
}

func (a *attrFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&a.customer, "customer", "", "customer organization")
	f.StringVar(&a.value, "value", "", "estimated contract value")
	f.IntVar(&a.competition, "competition", 0, "number of competing bidders")
	f.StringVar(&a.vertical, "vertical", "", "technology vertical")
	f.StringVar(&a.oem, "oem", "", "vendor / product line")
	f.BoolVar(&a.previous, "previous-contract", false, "customer has a previous contract")
	f.StringVar(&a.deadline, "deadline", "", "submission deadline (RFC 3339 or YYYY-MM-DD)")
	f.StringVar(&a.rfqType, "type", "", "rfq type (new, renewal, consolidated_notice)")
	f.IntVar(&a.quantity, "quantity", 0, "line quantity")
	f.StringSliceVar(&a.flags, "complexity-flags", nil, "complexity flags (comma separated)")
}

// patch builds a Patch from the flags the user actually set.
func (a *attrFlags) patch(cmd *cobra.Command) (model.Patch, error) {
	var p model.Patch
	changed := cmd.Flags().Changed

	if changed("customer") {
		p.Customer = &a.customer
	}
	if changed("value") {
		d, err := decimal.NewFromString(strings.ReplaceAll(a.value, ",", ""))
		if err != nil {
			return p, model.NewAttributeError("estimated_value", "not a number: "+a.value)
		}
		p.EstimatedValue = &d
	}
	if changed("competition") {
		p.CompetitionLevel = &a.competition
	}
	if changed("vertical") {
		p.TechVertical = &a.vertical
	}
	if changed("oem") {
		p.OEM = &a.oem
	}
	if changed("previous-contract") {
		p.HasPreviousContract = &a.previous
	}
	if changed("deadline") {
		ts, err := ingest.ParseTime(a.deadline)
		if err != nil {
			return p, model.NewAttributeError("deadline", "not a date: "+a.deadline)
		}
		p.Deadline = &ts
	}
	if changed("type") {
		p.RFQType = &a.rfqType
	}
	if changed("quantity") {
		p.Quantity = &a.quantity
	}
	if changed("complexity-flags") {
		p.ComplexityFlags = append([]string{}, a.flags...)
	}
	return p, p.Validate()
}

var (
	createAttrs attrFlags
	createID    string
	setAttrs    attrFlags

	evaluateAll   bool
	evaluateLimit int
	eventsLimit   int
	listLimit     int
	listOffset    int
)

var rfqCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an RFQ attribute record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := createAttrs.patch(cmd)
		if err != nil {
			return err
		}
		rec := &model.RFQ{ID: createID}
		p.Apply(rec)

		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		created, err := env.Service.CreateRFQ(cmd.Context(), rec)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), created)
	},
}

var rfqSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Update attributes of an RFQ (only flags given are changed)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := setAttrs.patch(cmd)
		if err != nil {
			return err
		}
		if p.IsEmpty() {
			return eris.New("no attributes given")
		}

		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Service.SetAttributes(cmd.Context(), args[0], p)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

var rfqShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an RFQ record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Service.GetRFQ(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

var rfqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List RFQs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		list, err := env.Service.ListRFQs(cmd.Context(), listLimit, listOffset)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(list))
		for _, r := range list {
			score := "-"
			if r.Score != nil {
				score = strconv.Itoa(*r.Score)
			}
			rows = append(rows, []string{r.ID, r.Customer, score, r.Recommendation, string(r.Decision)})
		}
		return printTable(cmd.OutOrStdout(), []string{"ID", "CUSTOMER", "SCORE", "RECOMMENDATION", "DECISION"}, rows)
	},
}

var rfqEvaluateCmd = &cobra.Command{
	Use:   "evaluate [id...]",
	Short: "Evaluate one or more RFQs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !evaluateAll {
			return eris.New("give at least one id or --all")
		}

		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ids := args
		if evaluateAll {
			list, err := env.Service.ListRFQs(cmd.Context(), evaluateLimit, 0)
			if err != nil {
				return err
			}
			ids = make([]string, 0, len(list))
			for _, r := range list {
				ids = append(ids, r.ID)
			}
		}

		if len(ids) == 1 {
			res, err := env.Service.Evaluate(cmd.Context(), ids[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}

		results := env.Service.EvaluateMany(cmd.Context(), ids, cfg.Batch.MaxConcurrentEvaluations)
		rows := make([][]string, 0, len(results))
		failed := 0
		for _, br := range results {
			if br.Err != nil {
				failed++
				rows = append(rows, []string{br.RFQID, "-", "error: " + br.Err.Error(), "", ""})
				continue
			}
			res := br.Result
			rows = append(rows, []string{
				br.RFQID,
				strconv.Itoa(res.Score),
				res.Recommendation,
				string(res.Decision),
				strconv.FormatBool(res.AutoDeclineCandidate),
			})
		}
		if err := printTable(cmd.OutOrStdout(), []string{"ID", "SCORE", "RECOMMENDATION", "DECISION", "AUTO_DECLINE"}, rows); err != nil {
			return err
		}

		zap.L().Info("batch evaluation complete",
			zap.Int("total", len(results)),
			zap.Int("failed", failed),
		)
		if failed > 0 {
			return eris.Errorf("%d of %d evaluations failed", failed, len(results))
		}
		return nil
	},
}

var rfqDecideCmd = &cobra.Command{
	Use:   "decide <id> <GO|NO-GO>",
	Short: "Record a human GO / NO-GO decision",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		d := model.Decision(strings.ToUpper(strings.TrimSpace(args[1])))
		rec, err := env.Service.RecordDecision(cmd.Context(), args[0], d)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

var rfqEventsCmd = &cobra.Command{
	Use:   "events <id>",
	Short: "Print the audit trail of an RFQ",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		events, err := env.Service.ListEvents(cmd.Context(), args[0], eventsLimit)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(events))
		for _, ev := range events {
			rows = append(rows, []string{
				ev.Timestamp.Format(time.RFC3339),
				string(ev.Kind),
				ev.ID,
				summarizeEvent(ev),
			})
		}
		return printTable(cmd.OutOrStdout(), []string{"TIMESTAMP", "KIND", "EVENT", "SUMMARY"}, rows)
	},
}

func summarizeEvent(ev model.AuditEvent) string {
	switch ev.Kind {
	case model.EventEvaluation:
		e, err := ev.ParseEvaluation()
		if err != nil {
			return "malformed"
		}
		s := fmt.Sprintf("score=%d %s", e.Score, e.Recommendation)
		if e.DecisionRecorded {
			s += " decision=" + string(e.Decision)
		}
		return s
	case model.EventOEMOccurrence:
		o, err := ev.ParseOEMOccurrence()
		if err != nil {
			return "malformed"
		}
		return fmt.Sprintf("oem=%s value=%s", o.OEM, o.EstimatedValue.StringFixed(2))
	default:
		return ""
	}
}

var rfqImportCmd = &cobra.Command{
	Use:   "import <file.csv|file.xlsx>",
	Short: "Create RFQs from a CSV or XLSX export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := ingest.ReadFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		created, failed := 0, 0
		for _, row := range rows {
			if row.Err == nil {
				_, row.Err = env.Service.CreateRFQ(cmd.Context(), row.RFQ)
			}
			if row.Err != nil {
				failed++
				zap.L().Warn("import row rejected",
					zap.Int("line", row.Line),
					zap.Error(row.Err),
				)
				continue
			}
			created++
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created %d, rejected %d\n", created, failed) //nolint:errcheck
		zap.L().Info("import complete",
			zap.String("file", args[0]),
			zap.Int("created", created),
			zap.Int("rejected", failed),
		)
		return nil
	},
}

func init() {
	createAttrs.register(rfqCreateCmd)
	rfqCreateCmd.Flags().StringVar(&createID, "id", "", "rfq id (generated when empty)")
	setAttrs.register(rfqSetCmd)

	rfqListCmd.Flags().IntVar(&listLimit, "limit", 100, "max records")
	rfqListCmd.Flags().IntVar(&listOffset, "offset", 0, "records to skip")

	rfqEvaluateCmd.Flags().BoolVar(&evaluateAll, "all", false, "evaluate every stored RFQ")
	rfqEvaluateCmd.Flags().IntVar(&evaluateLimit, "limit", 1000, "max records for --all")

	rfqEventsCmd.Flags().IntVar(&eventsLimit, "limit", 0, "max events (0 = all)")

	rfqCmd.AddCommand(rfqCreateCmd, rfqSetCmd, rfqShowCmd, rfqListCmd, rfqEvaluateCmd, rfqDecideCmd, rfqEventsCmd, rfqImportCmd)
	rootCmd.AddCommand(rfqCmd)
}
