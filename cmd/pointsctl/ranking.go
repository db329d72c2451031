package main

import (
	"fmt"
	"time"

	"github.com/rewardloop/backend/internal/audit"
	"github.com/rewardloop/backend/internal/config"
	"github.com/rewardloop/backend/internal/services"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(rankingCmd)
	rankingCmd.AddCommand(rankingRunCmd)

	rankingRunCmd.Flags().StringP("month", "m", "", "Month to rank as YYYY-MM (default: last closed month)")
}

var rankingCmd = &cobra.Command{
	Use:   "ranking",
	Short: "Monthly post ranking",
}

var rankingRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run or replay the ranking for one month",
	Long: `Ranks the posts of one calendar month and stores the winners.
Replaying a month converges on the same rows and never notifies a winner twice.`,
	RunE: runRanking,
}

func runRanking(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	loc := cfg.Points.Location

	start, end := services.PreviousMonthBounds(time.Now(), loc)
	if month, _ := cmd.Flags().GetString("month"); month != "" {
		t, err := time.ParseInLocation("2006-01", month, loc)
		if err != nil {
			return fmt.Errorf("month must look like YYYY-MM: %w", err)
		}
		start, end = services.MonthBounds(t, loc)
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ranking := services.NewRankingService(db, cfg.Points, cfg.Ranking, audit.NewLogger())
	rankings, err := ranking.RunRanking(cmd.Context(), start, end)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ranking for %s\n", services.MonthKey(start))
	if len(rankings) == 0 {
		fmt.Fprintln(out, "  no eligible posts")
	}
	for _, r := range rankings {
		fmt.Fprintf(out, "  #%d  user %d  post %d  %d likes\n", r.Rank, r.UserID, r.PostID, r.LikeCount)
	}
	return nil
}
