package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unirank/unirank/source"
)

func init() {
	rootCmd.AddCommand(publishersCmd)
}

var publishersCmd = &cobra.Command{
	Use:   "publishers",
	Short: "Lists the known publishers and their configured years.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configFrom(cmd)
		enabled := make(map[string]bool)
		for _, name := range cfg.Publishers.Enabled {
			enabled[name] = true
		}

		out := cmd.OutOrStdout()
		for _, name := range source.Names() {
			p, err := source.ProfileFor(name, cfg.Institution.SearchTerm)
			if err != nil {
				return err
			}
			state := "disabled"
			if enabled[name] {
				state = "enabled"
			}
			fmt.Fprintf(out, "%-9s %-8s %s\n", name, state, strings.Join(p.Years(), " "))
		}
		return nil
	},
}
