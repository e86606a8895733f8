package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/leaseforge/lease-engine/api"
	"github.com/leaseforge/lease-engine/billing"
	"github.com/leaseforge/lease-engine/factory"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed [scenario...]",
	Short: "Load demo scenarios",
	Long: `Load one or more demo scenarios into the database. Without arguments the
available scenarios are listed.`,
	Example: `  leasectl seed
  leasectl seed office-lease early-termination`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().String("db", "", "SQLite database path (overrides DB_PATH)")
}

func runSeed(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, sc := range api.Scenarios() {
			fmt.Fprintf(tw, "%s\t%s\n", sc.ID, sc.Description)
		}
		return tw.Flush()
	}

	dbPath, _ := cmd.Flags().GetString("db")
	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := billing.NewService(store, store, log)
	f := factory.NewContractFactory()
	for _, id := range args {
		res, err := api.LoadScenarioByID(cmd.Context(), svc, f, id, "leasectl")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: customer %s, %d contract(s)\n", res.Scenario, res.CustomerID, len(res.Contracts))
	}
	return nil
}
