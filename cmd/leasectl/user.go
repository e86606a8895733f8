package main

import (
	"fmt"

	"github.com/leaseforge/lease-engine/auth"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage back-office users",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user",
	Example: `  leasectl user add --email admin@example.com --password 's3cret-pass' --role admin`,
	RunE:    runUserAdd,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)

	userAddCmd.Flags().String("email", "", "Login email (required)")
	userAddCmd.Flags().String("name", "", "Display name")
	userAddCmd.Flags().String("password", "", "Password (required)")
	userAddCmd.Flags().String("role", auth.RoleCashier, "Role: admin, manager or cashier")
	userAddCmd.Flags().String("db", "", "SQLite database path (overrides DB_PATH)")
	_ = userAddCmd.MarkFlagRequired("email")
	_ = userAddCmd.MarkFlagRequired("password")
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	password, _ := cmd.Flags().GetString("password")
	role, _ := cmd.Flags().GetString("role")
	dbPath, _ := cmd.Flags().GetString("db")

	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := auth.NewService(store, auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry), log)
	u, err := svc.CreateUser(cmd.Context(), email, name, password, role)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (%s)\n", u.Role, u.Email, u.ID)
	return nil
}
