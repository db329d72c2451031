package database

import (
	"context"
	"database/sql"

	"github.com/go-redis/redis/v8"
)

// HealthReport is served by /health. Postgres is required; Redis only guards the
// ranking scheduler, so losing it degrades but does not fail the service.
type HealthReport struct {
	Status   string `json:"status"`
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

func Health(ctx context.Context, db *sql.DB, rdb *redis.Client) HealthReport {
	report := HealthReport{Status: "healthy", Postgres: "up", Redis: "disabled"}

	if err := db.PingContext(ctx); err != nil {
		report.Postgres = "down"
		report.Status = "unhealthy"
	}
	if rdb != nil {
		report.Redis = "up"
		if err := rdb.Ping(ctx).Err(); err != nil {
			report.Redis = "down"
			if report.Status == "healthy" {
				report.Status = "degraded"
			}
		}
	}
	return report
}
