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

const unlimitedLabel = "none"

// AwardService grants points, gated by the per-action limit counters.
type AwardService struct {
	db           *sql.DB
	ledger       *PointsLedger
	limits       *LimitCounterStore
	audit        *audit.Logger
	loc          *time.Location
	txTimeout    time.Duration
	strictConfig bool
	now          func() time.Time
}

type AwardRequest struct {
	UserID    int64
	LimitType *config.LimitType
	Points    int64
	Reason    string
	Note      *string
}

type AwardResult struct {
	Awarded bool                `json:"awarded"`
	Entry   *models.LedgerEntry `json:"entry,omitempty"`
}

// LedgerEntryID is zero when nothing was awarded.
func (r *AwardResult) LedgerEntryID() int64 {
	if r == nil || r.Entry == nil {
		return 0
	}
	return r.Entry.ID
}

type BatchAwardResult struct {
	AwardedCount      int                 `json:"awardedCount"`
	TotalPoints       int64               `json:"totalPoints"`
	RemainingCapacity int                 `json:"remainingCapacity"`
	Entry             *models.LedgerEntry `json:"entry,omitempty"`
}

type LimitStatus struct {
	LimitType config.LimitType `json:"limitType"`
	Count     int              `json:"count"`
	Max       int              `json:"max"`
	Remaining int              `json:"remaining"`
	PeriodKey time.Time        `json:"periodKey"`
}

func NewAwardService(db *sql.DB, cfg config.PointsConfig, auditLogger *audit.Logger) *AwardService {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &AwardService{
		db:           db,
		ledger:       NewPointsLedger(db),
		limits:       NewLimitCounterStore(db),
		audit:        auditLogger,
		loc:          loc,
		txTimeout:    cfg.TxTimeout,
		strictConfig: cfg.StrictConfig,
		now:          time.Now,
	}
}

// Ledger exposes the underlying ledger for read paths.
func (s *AwardService) Ledger() *PointsLedger {
	return s.ledger
}

// Award credits points. With a limit type, the award only happens while the counter for the
// current window is below the rule's maximum; reaching the cap is reported as Awarded=false.
func (s *AwardService) Award(ctx context.Context, req AwardRequest) (*AwardResult, error) {
	if req.Points <= 0 {
		return nil, validationError("points must be positive")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, validationError("reason is required")
	}

	label := unlimitedLabel
	var rule config.LimitRule
	var period time.Time
	if req.LimitType != nil {
		label = string(*req.LimitType)
		var err error
		if rule, err = config.LookupLimitRule(*req.LimitType); err != nil {
			return nil, s.configFault(err)
		}
		if period, err = ResolvePeriod(*req.LimitType, s.now().In(s.loc)); err != nil {
			return nil, s.configFault(err)
		}
	}

	var result *AwardResult
	err := withRetry(ctx, "award", func() error {
		var err error
		result, err = s.awardOnce(ctx, req, rule, period)
		return err
	})
	if err != nil {
		metrics.AwardsTotal.WithLabelValues(label, "failed").Inc()
		s.reportFailure("award", req.UserID, err)
		return nil, err
	}

	if !result.Awarded {
		metrics.AwardsTotal.WithLabelValues(label, "limited").Inc()
		log.Printf("[AWARD] Limit reached for user %d, %s", req.UserID, label)
		return result, nil
	}

	metrics.AwardsTotal.WithLabelValues(label, "awarded").Inc()
	metrics.PointsAwarded.WithLabelValues(label).Add(float64(req.Points))
	s.audit.LogAward(req.UserID, result.Entry.ID, label, req.Points, req.Reason)
	return result, nil
}

func (s *AwardService) awardOnce(ctx context.Context, req AwardRequest, rule config.LimitRule, period time.Time) (*AwardResult, error) {
	result := &AwardResult{}
	err := withTx(ctx, s.db, s.txTimeout, func(ctx context.Context, tx *sql.Tx) error {
		user, err := s.ledger.LockUserTx(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		if req.LimitType != nil {
			count, err := s.limits.LockTx(ctx, tx, req.UserID, *req.LimitType, period)
			if err != nil {
				return err
			}
			if count >= rule.MaxCount {
				s.audit.LogLimitReached(req.UserID, string(*req.LimitType), count, rule.MaxCount)
				return errLimitReached
			}
		}

		entry, err := s.ledger.AppendTx(ctx, tx, user, req.Points, req.Reason, req.Note)
		if err != nil {
			return err
		}

		if req.LimitType != nil {
			if err := s.limits.IncrementTx(ctx, tx, req.UserID, *req.LimitType, period, 1); err != nil {
				return err
			}
		}

		result.Awarded = true
		result.Entry = entry
		return nil
	})
	if errors.Is(err, errLimitReached) {
		return &AwardResult{Awarded: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// errLimitReached aborts the award transaction without mutation; it never leaves this file.
var errLimitReached = errors.New("limit reached")

// AwardBatch awards up to requestedCount units under a counting limit, truncating at the cap.
func (s *AwardService) AwardBatch(ctx context.Context, userID int64, limitType config.LimitType, requestedCount int, pointsPerUnit int64) (*BatchAwardResult, error) {
	if requestedCount <= 0 {
		return nil, validationError("requested count must be positive")
	}
	if pointsPerUnit <= 0 {
		return nil, validationError("points per unit must be positive")
	}

	rule, err := config.LookupLimitRule(limitType)
	if err != nil {
		return nil, s.configFault(err)
	}
	period, err := ResolvePeriod(limitType, s.now().In(s.loc))
	if err != nil {
		return nil, s.configFault(err)
	}

	var result *BatchAwardResult
	err = withRetry(ctx, "award_batch", func() error {
		var err error
		result, err = s.awardBatchOnce(ctx, userID, limitType, rule, period, requestedCount, pointsPerUnit)
		return err
	})
	if err != nil {
		metrics.AwardsTotal.WithLabelValues(string(limitType), "failed").Inc()
		s.reportFailure("award_batch", userID, err)
		return nil, err
	}

	if result.AwardedCount == 0 {
		metrics.AwardsTotal.WithLabelValues(string(limitType), "limited").Inc()
		log.Printf("[AWARD] Batch limit reached for user %d, %s", userID, limitType)
		return result, nil
	}

	metrics.AwardsTotal.WithLabelValues(string(limitType), "awarded").Inc()
	metrics.PointsAwarded.WithLabelValues(string(limitType)).Add(float64(result.TotalPoints))
	s.audit.LogAward(userID, result.Entry.ID, string(limitType), result.TotalPoints, rule.Reason)
	if result.AwardedCount < requestedCount {
		log.Printf("[AWARD] Batch truncated for user %d, %s: %d of %d units", userID, limitType, result.AwardedCount, requestedCount)
	}
	return result, nil
}

func (s *AwardService) awardBatchOnce(ctx context.Context, userID int64, limitType config.LimitType, rule config.LimitRule, period time.Time, requestedCount int, pointsPerUnit int64) (*BatchAwardResult, error) {
	result := &BatchAwardResult{}
	err := withTx(ctx, s.db, s.txTimeout, func(ctx context.Context, tx *sql.Tx) error {
		user, err := s.ledger.LockUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		count, err := s.limits.LockTx(ctx, tx, userID, limitType, period)
		if err != nil {
			return err
		}

		remaining := max(0, rule.MaxCount-count)
		awarded := min(requestedCount, remaining)
		if awarded == 0 {
			return errLimitReached
		}

		total := int64(awarded) * pointsPerUnit
		note := fmt.Sprintf("%d of %d units", awarded, requestedCount)
		entry, err := s.ledger.AppendTx(ctx, tx, user, total, rule.Reason, &note)
		if err != nil {
			return err
		}

		if err := s.limits.IncrementTx(ctx, tx, userID, limitType, period, awarded); err != nil {
			return err
		}

		result.AwardedCount = awarded
		result.TotalPoints = total
		result.RemainingCapacity = remaining - awarded
		result.Entry = entry
		return nil
	})
	if errors.Is(err, errLimitReached) {
		return &BatchAwardResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetLimitStatus reports the caller's usage of a limit in the current window.
func (s *AwardService) GetLimitStatus(ctx context.Context, userID int64, limitType config.LimitType) (*LimitStatus, error) {
	rule, err := config.LookupLimitRule(limitType)
	if err != nil {
		return nil, s.configFault(err)
	}
	period, err := ResolvePeriod(limitType, s.now().In(s.loc))
	if err != nil {
		return nil, s.configFault(err)
	}

	count, err := s.limits.Get(ctx, userID, limitType, period)
	if err != nil {
		return nil, &PersistenceError{Op: "limit_status", Err: err}
	}

	return &LimitStatus{
		LimitType: limitType,
		Count:     count,
		Max:       rule.MaxCount,
		Remaining: max(0, rule.MaxCount-count),
		PeriodKey: period,
	}, nil
}

// GrantAdmin applies a manual adjustment outside any limit. Negative grants are corrections
// and still cannot take the balance below zero.
func (s *AwardService) GrantAdmin(ctx context.Context, adminID int64, isAdmin bool, userID int64, points int64, note string) (*AwardResult, error) {
	if !isAdmin {
		return nil, ErrForbidden
	}
	if points == 0 {
		return nil, validationError("points must be non-zero")
	}

	fullNote := fmt.Sprintf("granted by admin %d", adminID)
	if note = strings.TrimSpace(note); note != "" {
		fullNote = note + " (" + fullNote + ")"
	}

	if points > 0 {
		return s.Award(ctx, AwardRequest{UserID: userID, Points: points, Reason: "Admin grant", Note: &fullNote})
	}

	var result *AwardResult
	err := withRetry(ctx, "admin_grant", func() error {
		result = &AwardResult{}
		return withTx(ctx, s.db, s.txTimeout, func(ctx context.Context, tx *sql.Tx) error {
			user, err := s.ledger.LockUserTx(ctx, tx, userID)
			if err != nil {
				return err
			}
			entry, err := s.ledger.AppendTx(ctx, tx, user, points, "Admin correction", &fullNote)
			if err != nil {
				return err
			}
			result.Awarded = true
			result.Entry = entry
			return nil
		})
	})
	if err != nil {
		s.reportFailure("admin_grant", userID, err)
		return nil, err
	}
	s.audit.LogAward(userID, result.Entry.ID, unlimitedLabel, points, "Admin correction")
	return result, nil
}

// reportFailure logs every failure and audits the ones caused by storage.
func (s *AwardService) reportFailure(op string, userID int64, err error) {
	log.Printf("[AWARD] %s failed for user %d: %v", op, userID, err)
	var perr *PersistenceError
	if errors.As(err, &perr) {
		s.audit.LogError(op, userID, err)
	}
}

// configFault handles a missing limit rule. It always points at a defect, so outside
// production it panics.
func (s *AwardService) configFault(err error) error {
	log.Printf("[CRITICAL] Limit configuration error: %v", err)
	if s.strictConfig {
		panic(err)
	}
	return err
}
