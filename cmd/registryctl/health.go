package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd(s settings) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var health map[string]any
			if err := newClient(s).getJSON("/api/health", &health); err != nil {
				return fmt.Errorf("server unreachable: %w", err)
			}
			if s.output() != "table" {
				return printOutput(cmd.OutOrStdout(), s.output(), health)
			}
			status, _ := health["status"].(string)
			printTable(cmd.OutOrStdout(), []string{"Check", "Status"}, [][]string{
				{"Liveness", status},
			})
			return nil
		},
	}
}
