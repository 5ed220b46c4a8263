package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RedemptionRequest struct {
	ID              uuid.UUID        `json:"id"`
	UserID          uuid.UUID        `json:"user_id"`
	PointsRequested int64            `json:"points_requested"`
	CashAmount      decimal.Decimal  `json:"cash_amount"`
	Status          RedemptionStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
}

type RedemptionStatus string

const (
	RedemptionPending RedemptionStatus = "pending"
	// RedemptionProcessing is reserved; no transition enters it.
	RedemptionProcessing RedemptionStatus = "processing"
	RedemptionCompleted  RedemptionStatus = "completed"
	RedemptionRejected   RedemptionStatus = "rejected"
)

func (s RedemptionStatus) Valid() bool {
	switch s {
	case RedemptionPending, RedemptionProcessing, RedemptionCompleted, RedemptionRejected:
		return true
	}
	return false
}

func (s RedemptionStatus) Terminal() bool {
	return s == RedemptionCompleted || s == RedemptionRejected
}
