package main

import (
	"database/sql"
	"fmt"

	"github.com/rewardloop/backend/internal/config"
	"github.com/rewardloop/backend/internal/database"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "pointsctl",
	Short: "Operate the loyalty points service",
	Long: `pointsctl runs administrative tasks against the points database.
It reads the same .env and environment variables as the server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Init(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Path to the .env file")
}

// openDB connects without running migrations; the migrate command applies them explicitly.
func openDB() (*sql.DB, error) {
	db, err := database.InitDB()
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}
