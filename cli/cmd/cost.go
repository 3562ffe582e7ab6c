package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"econova/pkg/nova/usage"
)

type costEstimate struct {
	Model        string      `json:"model"`
	KnownModel   bool        `json:"known_model"`
	InputTokens  int         `json:"input_tokens"`
	OutputTokens int         `json:"output_tokens"`
	Price        usage.Price `json:"price"`
	CostUSD      float64     `json:"cost_usd"`
}

func newCostCmd() *cobra.Command {
	var (
		model        string
		inputTokens  int
		outputTokens int
		pricesFile   string
	)

	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Price a token count the way usage records are priced",
		Long: `Estimate the USD cost of a request from its token counts.

Examples:
  novactl cost --model claude-sonnet-4-5 --input-tokens 12000 --output-tokens 800
  novactl cost --model claude-haiku-4-5 --input-tokens 5000 --prices prices.yaml
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputTokens < 0 || outputTokens < 0 {
				return errors.New("token counts must not be negative")
			}
			table := usage.DefaultPriceTable()
			if pricesFile != "" {
				loaded, err := usage.LoadPriceTable(pricesFile)
				if err != nil {
					return err
				}
				table = loaded
			}

			price, known := table.Lookup(model)
			est := costEstimate{
				Model:        model,
				KnownModel:   known,
				InputTokens:  inputTokens,
				OutputTokens: outputTokens,
				Price:        price,
				CostUSD:      table.Cost(inputTokens, outputTokens, model),
			}
			if jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), est)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "model:  %s\n", est.Model)
			if !known {
				fmt.Fprintln(w, "        (not in price table, default price applied)")
			}
			fmt.Fprintf(w, "price:  $%.2f in / $%.2f out per MTok\n", price.InputPerMTok, price.OutputPerMTok)
			fmt.Fprintf(w, "tokens: %d in / %d out\n", inputTokens, outputTokens)
			fmt.Fprintf(w, "cost:   $%.6f\n", est.CostUSD)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "claude-sonnet-4-5", "model id")
	cmd.Flags().IntVar(&inputTokens, "input-tokens", 0, "input token count")
	cmd.Flags().IntVar(&outputTokens, "output-tokens", 0, "output token count")
	cmd.Flags().StringVar(&pricesFile, "prices", "", "price table YAML (default: built-in list prices)")

	return cmd
}
