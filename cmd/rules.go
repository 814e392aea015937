package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/rfq-cli/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the rule catalog in evaluation order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		list := rules.Catalog()
		rows := make([][]string, 0, len(list))
		for _, r := range list {
			rows = append(rows, []string{r.ID, r.Name, string(r.Action), strings.Join(r.Requires, ",")})
		}
		return printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "ACTION", "REQUIRES"}, rows)
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
