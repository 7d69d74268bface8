package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/unirank/unirank/history"
)

var historyLimit *int

func init() {
	historyLimit = historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of outcomes to print.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [publisher]",
	Short: "Prints the most recent task outcomes, newest first.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configFrom(cmd)
		if !cfg.Output.HistoryEnabled() {
			return fmt.Errorf("history is disabled (UNIRANK_HISTORY=off)")
		}
		var publisher string
		if len(args) == 1 {
			publisher = args[0]
		}

		hist, err := history.Open(cfg.Output.HistoryPath)
		if err != nil {
			return err
		}
		defer hist.Close()

		entries, err := hist.Recent(cmd.Context(), publisher, *historyLimit)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Recorded", "Run", "Publisher", "Year", "Status", "Rank", "Attempts", "Reason"})
		for _, e := range entries {
			t.AppendRow(table.Row{
				e.RecordedAt.Format("2006-01-02 15:04:05"),
				e.RunID,
				e.Publisher,
				e.Year,
				e.Status,
				e.Rank,
				e.Attempts,
				e.Reason,
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
