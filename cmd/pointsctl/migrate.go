package main

import (
	"log"

	"github.com/rewardloop/backend/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the points schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.Migrate(cmd.Context(), db); err != nil {
			log.Printf("[DATABASE] Migration failed: %v", err)
			return err
		}

		log.Println("[DATABASE] Schema applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
