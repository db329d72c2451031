package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rewardloop/backend/internal/audit"
	"github.com/rewardloop/backend/internal/config"
	"github.com/rewardloop/backend/internal/metrics"
	"github.com/rewardloop/backend/internal/models"
)

// RedemptionService debits points for rewards and refunds them when an admin rejects the request.
type RedemptionService struct {
	db        *sql.DB
	ledger    *PointsLedger
	audit     *audit.Logger
	txTimeout time.Duration
}

type DecideRequest struct {
	RedemptionID    int64
	Status          models.RedemptionStatus
	AdminID         int64
	IsAdmin         bool
	RejectionReason string
}

func NewRedemptionService(db *sql.DB, cfg config.PointsConfig, auditLogger *audit.Logger) *RedemptionService {
	return &RedemptionService{
		db:        db,
		ledger:    NewPointsLedger(db),
		audit:     auditLogger,
		txTimeout: cfg.TxTimeout,
	}
}

// Redeem validates the reward against the user's balance and limits and creates a PENDING request.
func (s *RedemptionService) Redeem(ctx context.Context, userID, rewardID int64, receiver models.ReceiverInfo) (*models.RedemptionRequest, error) {
	var (
		req    *models.RedemptionRequest
		reward *models.Reward
	)
	err := withRetry(ctx, "redeem", func() error {
		var err error
		req, reward, err = s.redeemOnce(ctx, userID, rewardID, receiver)
		return err
	})

	category := "unknown"
	if reward != nil {
		category = reward.Category
	}
	if err != nil {
		metrics.RedemptionsTotal.WithLabelValues(category, outcomeOf(err)).Inc()
		log.Printf("[REDEEM] User %d failed to redeem reward %d: %v", userID, rewardID, err)
		var perr *PersistenceError
		if errors.As(err, &perr) {
			s.audit.LogError("redeem", userID, err)
		}
		return nil, err
	}

	metrics.RedemptionsTotal.WithLabelValues(category, "created").Inc()
	s.audit.LogRedemption(userID, req.ID, rewardID, req.PointsUsed, string(req.Status))
	log.Printf("[REDEEM] User %d redeemed reward %d for %d points, request %d", userID, rewardID, req.PointsUsed, req.ID)
	return req, nil
}

func (s *RedemptionService) redeemOnce(ctx context.Context, userID, rewardID int64, receiver models.ReceiverInfo) (*models.RedemptionRequest, *models.Reward, error) {
	var (
		req    *models.RedemptionRequest
		reward *models.Reward
	)
	err := withTx(ctx, s.db, s.txTimeout, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		reward, err = s.loadRewardTx(ctx, tx, rewardID)
		if err != nil {
			return err
		}
		if !reward.IsActive {
			return fmt.Errorf("reward %d: %w", rewardID, ErrUnavailable)
		}

		// Locking the user serialises every eligibility check below with concurrent redemptions.
		user, err := s.ledger.LockUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		if reward.Category == models.RewardCategoryRank {
			if err := s.checkRankEligibilityTx(ctx, tx, user.ID, reward); err != nil {
				return err
			}
		} else {
			if err := s.checkPointEligibilityTx(ctx, tx, user, reward); err != nil {
				return err
			}
		}

		cost := reward.Cost()
		if cost > 0 {
			if _, err := s.ledger.AppendTx(ctx, tx, user, -cost, "Redeem "+reward.Name, nil); err != nil {
				return err
			}
		}

		req, err = s.createRequestTx(ctx, tx, user.ID, reward.ID, cost, receiver)
		return err
	})
	return req, reward, err
}

func (s *RedemptionService) loadRewardTx(ctx context.Context, tx *sql.Tx, rewardID int64) (*models.Reward, error) {
	var r models.Reward
	var maxPerUser, rankRequired sql.NullInt64
	var rankMonth sql.NullTime
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, category, points_required, life_required, max_per_user, rank_required, rank_month, is_active
		FROM rewards
		WHERE id = $1`, rewardID).Scan(
		&r.ID, &r.Name, &r.Category, &r.PointsRequired, &r.LifeRequired,
		&maxPerUser, &rankRequired, &rankMonth, &r.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reward %d: %w", rewardID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if maxPerUser.Valid {
		v := int(maxPerUser.Int64)
		r.MaxPerUser = &v
	}
	if rankRequired.Valid {
		v := int(rankRequired.Int64)
		r.RankRequired = &v
	}
	if rankMonth.Valid {
		r.RankMonth = &rankMonth.Time
	}
	return &r, nil
}

func (s *RedemptionService) checkPointEligibilityTx(ctx context.Context, tx *sql.Tx, user *models.User, reward *models.Reward) error {
	if reward.MaxPerUser != nil {
		var redeemed int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM redemption_requests
			WHERE user_id = $1 AND reward_id = $2 AND status <> $3`,
			user.ID, reward.ID, string(models.RedemptionRejected)).Scan(&redeemed)
		if err != nil {
			return err
		}
		if redeemed >= *reward.MaxPerUser {
			return fmt.Errorf("reward %d already redeemed %d time(s): %w", reward.ID, redeemed, ErrLimitExceeded)
		}
	}

	if user.Points < reward.PointsRequired {
		return fmt.Errorf("need %d points, have %d: %w", reward.PointsRequired, user.Points, ErrInsufficientBalance)
	}
	if reward.LifeRequired > 0 && user.Life() < reward.LifeRequired {
		return fmt.Errorf("need %d life, have %d: %w", reward.LifeRequired, user.Life(), ErrInsufficientBalance)
	}
	if user.Points < reward.Cost() {
		return fmt.Errorf("need %d points, have %d: %w", reward.Cost(), user.Points, ErrInsufficientBalance)
	}
	return nil
}

func (s *RedemptionService) checkRankEligibilityTx(ctx context.Context, tx *sql.Tx, userID int64, reward *models.Reward) error {
	query := `SELECT COUNT(*) FROM monthly_rankings WHERE user_id = $1`
	args := []any{userID}
	if reward.RankRequired != nil {
		args = append(args, *reward.RankRequired)
		query += fmt.Sprintf(" AND rank = $%d", len(args))
	}
	if reward.RankMonth != nil {
		args = append(args, MonthIdentity(reward.RankMonth.UTC()))
		query += fmt.Sprintf(" AND month = $%d", len(args))
	}

	var held int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&held); err != nil {
		return err
	}
	if held == 0 {
		return fmt.Errorf("user %d holds no matching monthly ranking: %w", userID, ErrUnavailable)
	}

	var prior int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM redemption_requests rr
		JOIN rewards r ON r.id = rr.reward_id
		WHERE rr.user_id = $1 AND r.category = $2 AND rr.status <> $3`,
		userID, models.RewardCategoryRank, string(models.RedemptionRejected)).Scan(&prior)
	if err != nil {
		return err
	}
	if prior > 0 {
		return fmt.Errorf("rank reward already redeemed: %w", ErrLimitExceeded)
	}
	return nil
}

func (s *RedemptionService) createRequestTx(ctx context.Context, tx *sql.Tx, userID, rewardID, cost int64, receiver models.ReceiverInfo) (*models.RedemptionRequest, error) {
	now := time.Now()
	req := &models.RedemptionRequest{
		UserID:     userID,
		RewardID:   rewardID,
		PointsUsed: cost,
		Status:     models.RedemptionPending,
		Receiver:   receiver,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO redemption_requests
			(user_id, reward_id, points_used, status, receiver_name, receiver_phone, receiver_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		userID, rewardID, cost, string(req.Status), receiver.Name, receiver.Phone, receiver.Address, now, now).Scan(&req.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create redemption request: %w", err)
	}
	return req, nil
}

// Decide applies an admin decision. A rejection refunds points_used in the same
// transaction; limit counters are left as they are.
func (s *RedemptionService) Decide(ctx context.Context, d DecideRequest) (*models.RedemptionRequest, error) {
	if !d.IsAdmin {
		return nil, ErrForbidden
	}
	switch d.Status {
	case models.RedemptionApproved, models.RedemptionRejected, models.RedemptionDelivered:
	default:
		return nil, validationError("unsupported status %q", d.Status)
	}
	reason := strings.TrimSpace(d.RejectionReason)
	if d.Status == models.RedemptionRejected && reason == "" {
		return nil, validationError("rejection reason is required")
	}

	var req *models.RedemptionRequest
	err := withRetry(ctx, "decide", func() error {
		var err error
		req, err = s.decideOnce(ctx, d, reason)
		return err
	})
	if err != nil {
		log.Printf("[REDEEM] Decision %s on request %d by admin %d failed: %v", d.Status, d.RedemptionID, d.AdminID, err)
		var perr *PersistenceError
		if errors.As(err, &perr) {
			s.audit.LogError("decide", d.AdminID, err)
		}
		return nil, err
	}

	metrics.RedemptionDecisions.WithLabelValues(string(req.Status)).Inc()
	if req.Status == models.RedemptionRejected && req.PointsUsed > 0 {
		metrics.RefundedPoints.Add(float64(req.PointsUsed))
		s.audit.LogRefund(req.UserID, req.ID, req.PointsUsed, reason)
	}
	s.audit.LogRedemption(req.UserID, req.ID, req.RewardID, req.PointsUsed, string(req.Status))
	log.Printf("[REDEEM] Request %d moved to %s by admin %d", req.ID, req.Status, d.AdminID)
	return req, nil
}

func (s *RedemptionService) decideOnce(ctx context.Context, d DecideRequest, reason string) (*models.RedemptionRequest, error) {
	var req *models.RedemptionRequest
	err := withTx(ctx, s.db, s.txTimeout, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		req, err = s.lockRequestTx(ctx, tx, d.RedemptionID)
		if err != nil {
			return err
		}

		if !canTransition(req.Status, d.Status) {
			return validationError("cannot move request %d from %s to %s", req.ID, req.Status, d.Status)
		}

		if d.Status == models.RedemptionRejected && req.PointsUsed > 0 {
			user, err := s.ledger.LockUserTx(ctx, tx, req.UserID)
			if err != nil {
				return err
			}
			if _, err := s.ledger.AppendTx(ctx, tx, user, req.PointsUsed, "Refund: "+reason, nil); err != nil {
				return err
			}
		}

		now := time.Now()
		var rejection *string
		if d.Status == models.RedemptionRejected {
			rejection = &reason
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE redemption_requests
			SET status = $1, rejection_reason = $2, processed_by = $3, processed_at = $4, updated_at = $4
			WHERE id = $5`,
			string(d.Status), rejection, d.AdminID, now, req.ID); err != nil {
			return fmt.Errorf("failed to update redemption request: %w", err)
		}

		req.Status = d.Status
		req.RejectionReason = rejection
		req.ProcessedBy = &d.AdminID
		req.ProcessedAt = &now
		req.UpdatedAt = now
		return nil
	})
	return req, err
}

func (s *RedemptionService) lockRequestTx(ctx context.Context, tx *sql.Tx, id int64) (*models.RedemptionRequest, error) {
	var req models.RedemptionRequest
	var status string
	err := tx.QueryRowContext(ctx, `
		SELECT id, user_id, reward_id, points_used, status, created_at
		FROM redemption_requests
		WHERE id = $1
		FOR UPDATE`, id).Scan(&req.ID, &req.UserID, &req.RewardID, &req.PointsUsed, &status, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("redemption %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	req.Status = models.RedemptionStatus(status)
	return &req, nil
}

// canTransition allows a single decision out of PENDING, so a refund can happen at most once.
func canTransition(from, to models.RedemptionStatus) bool {
	return !from.IsTerminal() && to != models.RedemptionPending
}

// ListRedemptions returns a user's requests, newest first.
func (s *RedemptionService) ListRedemptions(ctx context.Context, userID int64) ([]models.RedemptionRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, reward_id, points_used, status, receiver_name, receiver_phone, receiver_address,
			rejection_reason, processed_by, processed_at, created_at, updated_at
		FROM redemption_requests
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []models.RedemptionRequest{}
	for rows.Next() {
		var r models.RedemptionRequest
		var status string
		if err := rows.Scan(&r.ID, &r.UserID, &r.RewardID, &r.PointsUsed, &status,
			&r.Receiver.Name, &r.Receiver.Phone, &r.Receiver.Address,
			&r.RejectionReason, &r.ProcessedBy, &r.ProcessedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Status = models.RedemptionStatus(status)
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	}
	return "failed"
}
