package model

import "time"

// Recipient is the fulfillment-side identity a dispatch job is assigned to.
// Rows are append-only: created lazily on first checkout from an email,
// never mutated or deleted afterwards.
type Recipient struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Key         string    `json:"key"`
	CreatedAt   time.Time `json:"created_at"`
}
