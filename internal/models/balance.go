package models

import (
	"time"

	"github.com/google/uuid"
)

// UserBalance holds a user's points. available+redeemed never exceeds total.
type UserBalance struct {
	UserID          uuid.UUID `json:"user_id"`
	AvailablePoints int64     `json:"available_points"`
	RedeemedPoints  int64     `json:"redeemed_points"`
	TotalPoints     int64     `json:"total_points"`
	UpdatedAt       time.Time `json:"updated_at"`
}
