package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rewardloop/backend/internal/audit"
	"github.com/rewardloop/backend/internal/config"
	"github.com/rewardloop/backend/internal/metrics"
	"github.com/rewardloop/backend/internal/models"
)

const defaultWinners = 2

// RankingService picks the monthly winners by post likes. A user can win only once
// over the program's lifetime.
type RankingService struct {
	db        *sql.DB
	audit     *audit.Logger
	winners   int
	txTimeout time.Duration
}

func NewRankingService(db *sql.DB, points config.PointsConfig, ranking config.RankingConfig, auditLogger *audit.Logger) *RankingService {
	winners := ranking.Winners
	if winners <= 0 {
		winners = defaultWinners
	}
	return &RankingService{
		db:        db,
		audit:     auditLogger,
		winners:   winners,
		txTimeout: points.TxTimeout,
	}
}

// RunRanking ranks posts created in [periodStart, periodEnd] and stores the winners
// under the calendar month of periodStart. Running it again for the same month converges on
// the same rows and never creates a second notification for a winner.
func (s *RankingService) RunRanking(ctx context.Context, periodStart, periodEnd time.Time) ([]models.MonthlyRanking, error) {
	if !periodEnd.After(periodStart) {
		return nil, validationError("period end %s is not after start %s", periodEnd, periodStart)
	}

	runID := uuid.NewString()
	month := MonthIdentity(periodStart)
	key := MonthKey(month)
	started := time.Now()
	log.Printf("[RANKING] Run %s started for %s", runID, key)

	winners, err := s.runRanking(ctx, month, periodStart, periodEnd)
	metrics.RankingDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.RankingRuns.WithLabelValues("failed").Inc()
		log.Printf("[RANKING] Run %s for %s failed: %v", runID, key, err)
		s.audit.LogError("ranking", 0, err)
		return nil, err
	}

	metrics.RankingRuns.WithLabelValues("completed").Inc()
	userIDs := make([]int64, 0, len(winners))
	for _, w := range winners {
		userIDs = append(userIDs, w.UserID)
	}
	s.audit.LogRanking(runID, key, userIDs)
	log.Printf("[RANKING] Run %s for %s completed with %d winner(s) in %v", runID, key, len(winners), time.Since(started))
	return winners, nil
}

func (s *RankingService) runRanking(ctx context.Context, month, periodStart, periodEnd time.Time) ([]models.MonthlyRanking, error) {
	// The candidate read stays outside the write transaction; it only decides who is proposed.
	blacklist, err := s.blacklist(ctx, month)
	if err != nil {
		return nil, &PersistenceError{Op: "ranking", Err: err}
	}
	posts, err := s.candidates(ctx, periodStart, periodEnd, blacklist)
	if err != nil {
		return nil, &PersistenceError{Op: "ranking", Err: err}
	}

	winners := SelectWinners(posts, blacklist, s.winners)
	rankings := make([]models.MonthlyRanking, len(winners))
	for i, p := range winners {
		rankings[i] = models.MonthlyRanking{
			Month:     month,
			Rank:      i + 1,
			UserID:    p.UserID,
			PostID:    p.ID,
			LikeCount: p.LikeCount,
		}
	}

	err = withRetry(ctx, "ranking", func() error {
		return withTx(ctx, s.db, s.txTimeout, func(ctx context.Context, tx *sql.Tx) error {
			return s.storeRankingsTx(ctx, tx, month, rankings)
		})
	})
	if err != nil {
		return nil, err
	}
	return rankings, nil
}

// blacklist returns every user that already won in a month other than month.
func (s *RankingService) blacklist(ctx context.Context, month time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT user_id
		FROM monthly_rankings
		WHERE month <> $1`, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *RankingService) candidates(ctx context.Context, periodStart, periodEnd time.Time, blacklist []int64) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, like_count, created_at
		FROM posts
		WHERE created_at >= $1 AND created_at <= $2
			AND like_count > 0
			AND user_id <> ALL($3)
		ORDER BY like_count DESC, created_at ASC, id ASC`,
		periodStart, periodEnd, pq.Array(blacklist))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.UserID, &p.LikeCount, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// SelectWinners walks posts in ranking order and keeps the first post of each
// distinct, non-blacklisted author until n authors are found.
func SelectWinners(posts []models.Post, blacklist []int64, n int) []models.Post {
	if n <= 0 {
		return nil
	}
	seen := make(map[int64]bool, len(blacklist)+n)
	for _, id := range blacklist {
		seen[id] = true
	}

	winners := make([]models.Post, 0, n)
	for _, p := range posts {
		if len(winners) == n {
			break
		}
		if p.LikeCount <= 0 || seen[p.UserID] {
			continue
		}
		seen[p.UserID] = true
		winners = append(winners, p)
	}
	return winners
}

func (s *RankingService) storeRankingsTx(ctx context.Context, tx *sql.Tx, month time.Time, rankings []models.MonthlyRanking) error {
	for _, r := range rankings {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO monthly_rankings (month, rank, user_id, post_id, like_count)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (month, rank) DO UPDATE
			SET user_id = EXCLUDED.user_id, post_id = EXCLUDED.post_id, like_count = EXCLUDED.like_count`,
			month, r.Rank, r.UserID, r.PostID, r.LikeCount); err != nil {
			return fmt.Errorf("failed to store rank %d: %w", r.Rank, err)
		}
	}

	// A replay with fewer winners must not leave an earlier run's extra rank behind.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM monthly_rankings
		WHERE month = $1 AND rank > $2`, month, len(rankings)); err != nil {
		return fmt.Errorf("failed to clear stale ranks: %w", err)
	}

	key := MonthKey(month)
	for _, r := range rankings {
		n := models.Notification{
			UserID:    r.UserID,
			Type:      models.NotificationRankingWinner,
			PeriodKey: key,
			Metadata: models.Metadata{
				"month":     key,
				"rank":      r.Rank,
				"postId":    r.PostID,
				"likeCount": r.LikeCount,
			},
			CreatedAt: time.Now(),
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notifications (user_id, type, period_key, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, type, period_key) DO NOTHING`,
			n.UserID, n.Type, n.PeriodKey, n.Metadata, n.CreatedAt); err != nil {
			return fmt.Errorf("failed to notify user %d: %w", r.UserID, err)
		}
	}
	return nil
}
