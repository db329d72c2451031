package models

import "time"

// User is owned by the identity subsystem; the points engine only mutates Points.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	IsAdmin   bool      `json:"isAdmin" db:"is_admin"`
	Points    int64     `json:"points" db:"points"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Life is the secondary currency derived from the points balance.
func (u *User) Life() int64 {
	return LifeFromPoints(u.Points)
}

// PointsPerLife is the exchange rate between points and life.
const PointsPerLife = 1000

func LifeFromPoints(points int64) int64 {
	if points <= 0 {
		return 0
	}
	return points / PointsPerLife
}
