package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-devicekey-go/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the postgres account table if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Connect(database.ConfigFromEnv())
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		s := repo.NewPostgresStore(db)
		defer s.Close()
		if err := s.EnsureTable(context.Background()); err != nil {
			return fmt.Errorf("ensure table: %w", err)
		}
		cmd.Println("device_accounts table ready")
		return nil
	},
}
