/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/SheetMetalConnect/api-workshop/internal/statemachine"
	"github.com/spf13/cobra"
)

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "Print the operation state machine",
	Long: `Print every operation status and the transition table with the
preconditions checked and the side effects run for each transition.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

		fmt.Fprintln(w, "STATUS\tTERMINAL\tDESCRIPTION")
		for _, st := range statemachine.AllStatuses() {
			fmt.Fprintf(w, "%s\t%t\t%s\n", st, st.IsTerminal(), st.Description())
		}
		fmt.Fprintln(w)

		fmt.Fprintln(w, "EVENT\tFROM\tTO\tCONDITIONS\tEFFECTS\tCONFIRM")
		for _, t := range statemachine.Transitions() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
				t.Event, t.From, t.To, joinConditions(t.Conditions), joinEffects(t.Effects), t.RequiresConfirmation)
		}
		return w.Flush()
	},
}

func joinConditions(conditions []statemachine.Condition) string {
	if len(conditions) == 0 {
		return "-"
	}
	parts := make([]string, len(conditions))
	for i, c := range conditions {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func joinEffects(effects []statemachine.Effect) string {
	if len(effects) == 0 {
		return "-"
	}
	parts := make([]string, len(effects))
	for i, e := range effects {
		parts[i] = string(e)
	}
	return strings.Join(parts, ",")
}

func init() {
	rootCmd.AddCommand(statesCmd)
}
