package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var output string

// NewRootCmd returns the root command for the Nova operator CLI
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "novactl",
		Short:         "Nova operator tool",
		Long:          "novactl checks queries, prices usage, manages API key hashes and talks to a running Nova API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "output format: json|text")

	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newCostCmd())
	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newHashKeyCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func jsonOutput() bool {
	return output == "json"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
