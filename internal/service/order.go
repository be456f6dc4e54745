package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"orderbridge/internal/model"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrOrderNotFound = errors.New("order not found")
)

// PayoutPolicy holds the frozen-payout computation knobs: a fixed
// percentage of the cart subtotal, clamped between an absolute floor and
// a ceiling expressed as a fraction of subtotal.
type PayoutPolicy struct {
	Rate        float64
	FloorCents  int64
	CeilingRate float64
}

// OrderLedger is the canonical record of commercial intent, held in the
// primary store.
type OrderLedger struct {
	db          *sql.DB
	policy      PayoutPolicy
	minSubtotal int64
}

func NewOrderLedger(db *sql.DB, policy PayoutPolicy, minSubtotalCents int64) *OrderLedger {
	return &OrderLedger{db: db, policy: policy, minSubtotal: minSubtotalCents}
}

func SubtotalCents(items []model.LineItem) int64 {
	var sum int64
	for _, li := range items {
		sum += li.TotalCents()
	}
	return sum
}

// PayoutCents computes clamp(subtotal*rate, floor, subtotal*ceilingRate),
// rounded to whole cents. The result is frozen at order creation and
// must never be re-derived from the amount actually collected.
func PayoutCents(subtotal int64, p PayoutPolicy) int64 {
	raw := int64(math.Round(float64(subtotal) * p.Rate))
	if raw < p.FloorCents {
		raw = p.FloorCents
	}
	ceiling := int64(math.Round(float64(subtotal) * p.CeilingRate))
	if raw > ceiling {
		raw = ceiling
	}
	return raw
}

func newOrderCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "OB-" + raw[:10]
}

func (s *OrderLedger) Policy() PayoutPolicy { return s.policy }

// Create persists a new order in pending_payment. Subtotal and the
// derived payout figure are computed once here; a later discount on the
// payment session never changes them.
func (s *OrderLedger) Create(ctx context.Context, items []model.LineItem, contact model.Contact, meta map[string]any) (*model.Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty cart", ErrInvalidInput)
	}
	for _, li := range items {
		if li.UnitPriceCents < 0 || li.Quantity <= 0 {
			return nil, fmt.Errorf("%w: bad line item %q", ErrInvalidInput, li.Name)
		}
	}

	subtotal := SubtotalCents(items)
	if subtotal < s.minSubtotal {
		return nil, fmt.Errorf("%w: subtotal %d below minimum %d", ErrInvalidInput, subtotal, s.minSubtotal)
	}
	payout := PayoutCents(subtotal, s.policy)
	if payout < s.policy.FloorCents {
		return nil, fmt.Errorf("%w: payout %d below floor %d", ErrInvalidInput, payout, s.policy.FloorCents)
	}

	metadata := make(map[string]any, len(meta)+2)
	for k, v := range meta {
		metadata[k] = v
	}
	metadata["payout_cents"] = payout
	if contact.Address != "" {
		metadata["address"] = contact.Address
	}

	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	order := &model.Order{
		Code:          newOrderCode(),
		Email:         strings.ToLower(strings.TrimSpace(contact.Email)),
		Name:          contact.Name,
		Phone:         contact.Phone,
		Items:         items,
		SubtotalCents: subtotal,
		Currency:      "USD",
		Status:        model.OrderStatusPendingPayment,
		Metadata:      metadata,
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO orders (code, email, name, phone, items, subtotal_cents, currency, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, order.Code, order.Email, order.Name, order.Phone, itemsJSON, subtotal, order.Currency, order.Status, metaJSON)

	if err := row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return order, nil
}

// AttachPaymentSession is a pure update with no business logic and is
// always safe to retry.
func (s *OrderLedger) AttachPaymentSession(ctx context.Context, orderID, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET payment_session_id = $1, updated_at = NOW() WHERE id = $2`,
		sessionID, orderID,
	)
	if err != nil {
		return fmt.Errorf("attach payment session: %w", err)
	}
	return nil
}

// Delete removes an order. Only checkout compensation calls this.
func (s *OrderLedger) Delete(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

// FindByRef resolves an order from any of the identifiers callers may
// hold, tried in order: internal id, public code, payment-session id.
func (s *OrderLedger) FindByRef(ctx context.Context, ref string) (*model.Order, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty order reference", ErrInvalidInput)
	}
	for _, where := range []string{"id::text = $1", "code = $1", "payment_session_id = $1"} {
		o, err := s.queryOne(ctx, where, ref)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}
	return nil, ErrOrderNotFound
}

func (s *OrderLedger) queryOne(ctx context.Context, where string, args ...any) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, email, name, phone, items, subtotal_cents, currency, status,
		       COALESCE(payment_session_id, ''), metadata, created_at, updated_at
		FROM orders WHERE `+where, args...)
	return scanOrder(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o         model.Order
		phone     sql.NullString
		itemsJSON []byte
		metaJSON  []byte
	)
	err := row.Scan(&o.ID, &o.Code, &o.Email, &o.Name, &phone, &itemsJSON, &o.SubtotalCents,
		&o.Currency, &o.Status, &o.PaymentSessionID, &metaJSON, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Phone = phone.String
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &o.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &o, nil
}

// MergeMetadata folds updates into the order's metadata map inside a
// transaction so concurrent schedule writes do not clobber each other.
func (s *OrderLedger) MergeMetadata(ctx context.Context, orderID string, updates map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var metaJSON []byte
	if err := tx.QueryRowContext(ctx,
		`SELECT metadata FROM orders WHERE id = $1 FOR UPDATE`, orderID,
	).Scan(&metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("lock order: %w", err)
	}

	meta := map[string]any{}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	for k, v := range updates {
		meta[k] = v
	}
	merged, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET metadata = $1, updated_at = NOW() WHERE id = $2`, merged, orderID,
	); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return tx.Commit()
}

// MarkPaidBySession flips a pending_payment order to paid. Status is the
// only field payment confirmation may touch.
func (s *OrderLedger) MarkPaidBySession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE payment_session_id = $2 AND status = $3`,
		model.OrderStatusPaid, sessionID, model.OrderStatusPendingPayment,
	)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	return nil
}

// ListPendingPayment returns orders still waiting on payment-session
// confirmation, oldest first, for the reconciliation worker.
func (s *OrderLedger) ListPendingPayment(ctx context.Context, limit int) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, email, name, phone, items, subtotal_cents, currency, status,
		       COALESCE(payment_session_id, ''), metadata, created_at, updated_at
		FROM orders
		WHERE status = $1 AND payment_session_id IS NOT NULL
		ORDER BY created_at ASC
		LIMIT $2
	`, model.OrderStatusPendingPayment, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return orders, nil
}
