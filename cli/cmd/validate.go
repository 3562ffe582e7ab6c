package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"econova/pkg/nova/sqlguard"
)

var errQueryRejected = errors.New("query rejected")

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [sql]",
		Short: "Check a query against the agent's SQL guard",
		Long: `Run a statement through the same validator the agent uses before it
touches a tenant database. With no argument (or "-") the query is read from stdin.

Examples:
  novactl validate "SELECT * FROM ventas LIMIT 10"
  novactl validate < report.sql
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			result := sqlguard.ValidateQuery(query)
			if jsonOutput() {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else if result.Valid {
				fmt.Fprintln(cmd.OutOrStdout(), "OK")
				fmt.Fprintf(cmd.OutOrStdout(), "normalized: %s\n", result.Query)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "REJECTED: %s\n", result.Error)
			}
			if !result.Valid {
				return errQueryRejected
			}
			return nil
		},
	}
}

func readQuery(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	raw, err := io.ReadAll(io.LimitReader(stdin, sqlguard.MaxQueryLength+1))
	if err != nil {
		return "", fmt.Errorf("read query: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
