package models

import "time"

// Reward categories
const (
	RewardCategoryPoint = "point_reward"
	RewardCategoryRank  = "rank_reward"
)

// Reward is a catalog item. The catalog is managed by admin tooling outside this service.
type Reward struct {
	ID             int64      `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Category       string     `json:"category" db:"category"`
	PointsRequired int64      `json:"pointsRequired" db:"points_required"`
	LifeRequired   int64      `json:"lifeRequired" db:"life_required"`
	MaxPerUser     *int       `json:"maxPerUser,omitempty" db:"max_per_user"`
	RankRequired   *int       `json:"rankRequired,omitempty" db:"rank_required"`
	RankMonth      *time.Time `json:"rankMonth,omitempty" db:"rank_month"` // UTC month start, as in monthly_rankings
	IsActive       bool       `json:"isActive" db:"is_active"`
}

// Cost returns the number of points a redemption of r debits. Life-currency rewards
// are paid in whole lives; points_required is still a balance floor for them.
func (r *Reward) Cost() int64 {
	if r.Category == RewardCategoryRank {
		return 0
	}
	if r.LifeRequired > 0 {
		return r.LifeRequired * PointsPerLife
	}
	return r.PointsRequired
}

// RedemptionStatus represents redemption request status
type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "PENDING"
	RedemptionApproved  RedemptionStatus = "APPROVED"
	RedemptionRejected  RedemptionStatus = "REJECTED"
	RedemptionDelivered RedemptionStatus = "DELIVERED"
)

// IsTerminal reports whether no further decision can be applied. Only PENDING
// requests are open; an admin decides each request exactly once.
func (s RedemptionStatus) IsTerminal() bool {
	return s != RedemptionPending
}

// ReceiverInfo is where a physical reward should be shipped.
type ReceiverInfo struct {
	Name    string `json:"receiverName" validate:"required,max=100"`
	Phone   string `json:"receiverPhone" validate:"required,max=20"`
	Address string `json:"receiverAddress" validate:"required,max=500"`
}

type RedemptionRequest struct {
	ID              int64            `json:"id" db:"id"`
	UserID          int64            `json:"userId" db:"user_id"`
	RewardID        int64            `json:"rewardId" db:"reward_id"`
	PointsUsed      int64            `json:"pointsUsed" db:"points_used"`
	Status          RedemptionStatus `json:"status" db:"status"`
	Receiver        ReceiverInfo     `json:"receiver"`
	RejectionReason *string          `json:"rejectionReason,omitempty" db:"rejection_reason"`
	ProcessedBy     *int64           `json:"processedBy,omitempty" db:"processed_by"`
	ProcessedAt     *time.Time       `json:"processedAt,omitempty" db:"processed_at"`
	CreatedAt       time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time        `json:"updatedAt" db:"updated_at"`
}
