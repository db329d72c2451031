package audit

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"
)

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Reference string    `json:"reference,omitempty"`
	UserID    int64     `json:"user_id,omitempty"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

// Logger writes one JSON line per audit event.
type Logger struct {
	out *log.Logger
}

func NewLogger() *Logger {
	return NewLoggerTo(os.Stderr)
}

func NewLoggerTo(w io.Writer) *Logger {
	return &Logger{out: log.New(w, "", log.LstdFlags)}
}

func (a *Logger) LogAward(userID int64, entryID int64, limitType string, amount int64, reason string) {
	a.log(Event{
		EventType: "AWARD",
		Reference: formatEntry(entryID),
		UserID:    userID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details: map[string]string{
			"limit_type": limitType,
			"reason":     reason,
		},
	})
}

func (a *Logger) LogLimitReached(userID int64, limitType string, count, max int) {
	a.log(Event{
		EventType: "AWARD",
		UserID:    userID,
		Status:    "LIMITED",
		Details: map[string]any{
			"limit_type": limitType,
			"count":      count,
			"max":        max,
		},
	})
}

func (a *Logger) LogRedemption(userID, redemptionID, rewardID, pointsUsed int64, status string) {
	a.log(Event{
		EventType: "REDEMPTION",
		Reference: formatRedemption(redemptionID),
		UserID:    userID,
		Amount:    -pointsUsed,
		Status:    status,
		Details:   map[string]int64{"reward_id": rewardID},
	})
}

func (a *Logger) LogRefund(userID, redemptionID, amount int64, reason string) {
	a.log(Event{
		EventType: "REFUND",
		Reference: formatRedemption(redemptionID),
		UserID:    userID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details:   map[string]string{"reason": reason},
	})
}

func (a *Logger) LogRanking(runID, month string, winners []int64) {
	a.log(Event{
		EventType: "RANKING",
		Reference: runID,
		Status:    "SUCCESS",
		Details: map[string]any{
			"month":   month,
			"winners": winners,
		},
	})
}

func (a *Logger) LogError(operation string, userID int64, err error) {
	a.log(Event{
		EventType: "ERROR",
		Reference: operation,
		UserID:    userID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	event.Timestamp = time.Now()
	data, _ := json.Marshal(event)
	a.out.Printf("AUDIT: %s", string(data))
}
