package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/rewardloop/backend/internal/audit"
	"github.com/rewardloop/backend/internal/config"
	"github.com/rewardloop/backend/internal/services"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(limitsCmd)
	limitsCmd.AddCommand(limitsStatusCmd)
	limitsCmd.AddCommand(limitsHistoryCmd)

	limitsStatusCmd.Flags().StringP("type", "t", "", "Only show this limit type")
}

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Inspect award limit counters",
}

var limitsStatusCmd = &cobra.Command{
	Use:   "status USER_ID",
	Short: "Show a user's usage of every award limit in the current window",
	Args:  cobra.ExactArgs(1),
	RunE:  runLimitsStatus,
}

var limitsHistoryCmd = &cobra.Command{
	Use:   "history USER_ID",
	Short: "List every stored limit counter of a user, newest period first",
	Args:  cobra.ExactArgs(1),
	RunE:  runLimitsHistory,
}

func parseUserID(arg string) (int64, error) {
	userID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("invalid user id %q", arg)
	}
	return userID, nil
}

func runLimitsStatus(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}

	types := make([]config.LimitType, 0, len(config.LimitRules))
	if only, _ := cmd.Flags().GetString("type"); only != "" {
		lt, err := config.ParseLimitType(only)
		if err != nil {
			return err
		}
		types = append(types, lt)
	} else {
		for lt := range config.LimitRules {
			types = append(types, lt)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	}

	cfg := config.Load()
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	awards := services.NewAwardService(db, cfg.Points, audit.NewLogger())
	out := cmd.OutOrStdout()
	for _, lt := range types {
		status, err := awards.GetLimitStatus(cmd.Context(), userID, lt)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-20s %d/%d  period %s\n", lt, status.Count, status.Max, status.PeriodKey.Format("2006-01-02"))
	}

	rec, err := awards.Ledger().Reconcile(cmd.Context(), userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "balance %d, ledger sum %d, consistent=%v\n", rec.Balance, rec.LedgerSum, rec.Consistent())
	return nil
}

func runLimitsHistory(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	counters, err := services.NewLimitCounterStore(db).ListForUser(cmd.Context(), userID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(counters) == 0 {
		fmt.Fprintln(out, "no counters")
		return nil
	}
	for _, c := range counters {
		period := c.Period.Format("2006-01-02")
		if c.Period.Equal(services.LifetimeSentinel) {
			period = "lifetime"
		}
		fmt.Fprintf(out, "%-20s %-10s %d  updated %s\n", c.LimitType, period, c.Count, c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
