package model

import "time"

// Dispatch job statuses. A freshly checked-out job sits in unscheduled
// until the customer picks a date, then moves to queued and eventually
// completed.
const (
	JobStatusUnscheduled = "unscheduled"
	JobStatusQueued      = "queued"
	JobStatusCompleted   = "completed"
)

// DispatchJob is the fulfillment-side workflow record. It deliberately
// carries no commercial fields; price and payout live on the Order and
// are joined through OrderCode.
type DispatchJob struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	SequenceID  string    `json:"sequence_id"`
	StepID      string    `json:"step_id"`
	RecipientID string    `json:"recipient_id"`
	DueAt       time.Time `json:"due_at"`
	Attempts    int       `json:"attempts"`
	OrderCode   string    `json:"order_code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
