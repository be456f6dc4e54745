package model

import "time"

// Payout types form a fixed enumeration; "job" entries are the ones
// written at completion time and carry the (job, recipient) uniqueness
// guarantee.
const (
	PayoutTypeJob        = "job"
	PayoutTypeBonus      = "bonus"
	PayoutTypeAdjustment = "adjustment"
	PayoutTypeReferral   = "referral"
)

const (
	PayoutStatusPending = "pending"
	PayoutStatusFlagged = "flagged"
	PayoutStatusPaid    = "paid"
)

type PayoutEntry struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	JobID       string    `json:"job_id"`
	AmountCents int64     `json:"amount_cents"`
	PayoutType  string    `json:"payout_type"`
	Status      string    `json:"status"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	CreatedAt   time.Time `json:"created_at"`
}
