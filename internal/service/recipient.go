package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"orderbridge/internal/store"
)

// RecipientDirectory maps a normalized contact email to a stable
// fulfillment-side recipient id. Rows are append-only identity: found
// rows are returned unchanged, misses insert exactly once.
type RecipientDirectory struct {
	store store.Client
}

func NewRecipientDirectory(st store.Client) *RecipientDirectory {
	return &RecipientDirectory{store: st}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Resolve finds or creates the recipient for an email. Two concurrent
// checkouts from the same new address may race on the insert; the loser
// sees a unique violation, re-reads once, and returns the winner's row.
func (d *RecipientDirectory) Resolve(ctx context.Context, email, displayName string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", fmt.Errorf("%w: empty email", ErrInvalidInput)
	}

	if id, err := d.lookup(ctx, email); err != nil {
		return "", err
	} else if id != "" {
		return id, nil
	}

	row, err := d.store.Insert(ctx, "recipients", store.Row{
		"email":        email,
		"display_name": displayName,
		"ukey":         uuid.NewString(),
	})
	if err == nil {
		id, _ := row["id"].(string)
		return id, nil
	}

	var serr *store.Error
	if !errors.As(err, &serr) || serr.Class != store.ClassUnique {
		return "", fmt.Errorf("insert recipient: %w", err)
	}

	// Lost the race; exactly one retry before surfacing a hard error.
	id, lerr := d.lookup(ctx, email)
	if lerr != nil {
		return "", lerr
	}
	if id == "" {
		return "", fmt.Errorf("recipient for %s vanished after duplicate-key insert: %w", email, err)
	}
	return id, nil
}

func (d *RecipientDirectory) lookup(ctx context.Context, email string) (string, error) {
	rows, err := d.store.Select(ctx, "recipients", store.Row{"email": email}, "", 1)
	if err != nil {
		return "", fmt.Errorf("lookup recipient: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	id, _ := rows[0]["id"].(string)
	return id, nil
}
