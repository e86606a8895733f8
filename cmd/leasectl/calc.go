package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/leaseforge/lease-engine/factory"
	"github.com/spf13/cobra"
)

var calcCmd = &cobra.Command{
	Use:   "calc [file]",
	Short: "Recalculate a contract form",
	Long: `Read a contract form as JSON and print it with every derived field filled
in: contract period, rent per month and year, rent-free amount, tax, totals
and the installment schedule. Nothing is stored.

Without a file argument the form is read from stdin.`,
	Example: `  leasectl calc contract.json
  cat contract.json | leasectl calc`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCalc,
}

func init() {
	rootCmd.AddCommand(calcCmd)
}

func runCalc(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("reading contract: %w", err)
	}

	form, err := factory.NewContractFactory().ParseForm(data)
	if err != nil {
		return err
	}
	for i, u := range form.Units {
		for _, w := range u.Warnings {
			log.Warn().Int("unit", i).Str("unit_id", u.UnitID).Str("warning", string(w)).Msg("form warning")
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(form)
}
