package models

import "time"

// Post is the subset of the content model the ranking job reads.
type Post struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"userId" db:"user_id"`
	LikeCount int       `json:"likeCount" db:"like_count"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// MonthlyRanking is unique on (month, rank). Month is the UTC first instant of the ranked calendar month.
type MonthlyRanking struct {
	Month     time.Time `json:"month" db:"month"`
	Rank      int       `json:"rank" db:"rank"`
	UserID    int64     `json:"userId" db:"user_id"`
	PostID    int64     `json:"postId" db:"post_id"`
	LikeCount int       `json:"likeCount" db:"like_count"`
}

// Notification types
const (
	NotificationRankingWinner = "MONTHLY_RANKING_WINNER"
)

// Notification is consumed by the delivery transport. Unique on (user_id, type, period_key).
type Notification struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"userId" db:"user_id"`
	Type      string    `json:"type" db:"type"`
	PeriodKey string    `json:"periodKey" db:"period_key"`
	Metadata  Metadata  `json:"metadata" db:"metadata"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
