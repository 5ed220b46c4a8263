package models

import (
	"time"

	"github.com/google/uuid"
)

type LedgerEntry struct {
	ID          uuid.UUID    `json:"id"`
	UserID      uuid.UUID    `json:"user_id"`
	Type        LedgerType   `json:"type"`
	Amount      int64        `json:"amount"`
	Status      LedgerStatus `json:"status"`
	ReferenceID uuid.UUID    `json:"reference_id"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type LedgerType string

const (
	LedgerEarned   LedgerType = "earned"
	LedgerRedeemed LedgerType = "redeemed"
	LedgerBonus    LedgerType = "bonus"
)

func (t LedgerType) Valid() bool {
	return t == LedgerEarned || t == LedgerRedeemed || t == LedgerBonus
}

type LedgerStatus string

const (
	LedgerPending   LedgerStatus = "pending"
	LedgerCompleted LedgerStatus = "completed"
	LedgerFailed    LedgerStatus = "failed"
)

func (s LedgerStatus) Valid() bool {
	return s == LedgerPending || s == LedgerCompleted || s == LedgerFailed
}
