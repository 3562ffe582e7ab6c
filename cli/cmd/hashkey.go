package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"econova/pkg/auth"
)

func newHashKeyCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-key",
		Short: "Hash an API key for the tenants file",
		Long: `Read an API key and print its bcrypt hash for the api_keys section of
the tenants file. The key is read without echo from a terminal, or from
stdin when piped, so it never lands in shell history.

Examples:
  novactl hash-key
  openssl rand -hex 32 | tee key.txt | novactl hash-key
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
				return fmt.Errorf("cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
			}
			secret, err := readSecret(cmd)
			if err != nil {
				return err
			}
			hash, err := auth.HashSecret(secret, cost)
			if err != nil {
				return fmt.Errorf("hash key: %w", err)
			}
			if jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"hash": hash})
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")

	return cmd
}

func readSecret(cmd *cobra.Command) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "API key: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read key: %w", err)
		}
		return validSecret(string(raw))
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read key: %w", err)
	}
	return validSecret(line)
}

func validSecret(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("empty key")
	}
	// bcrypt ignores everything past 72 bytes.
	if len(s) > 72 {
		return "", errors.New("key longer than 72 bytes")
	}
	return s, nil
}
