package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"orderbridge/internal/model"
)

type scheduleOrders interface {
	FindByRef(ctx context.Context, ref string) (*model.Order, error)
	MergeMetadata(ctx context.Context, orderID string, updates map[string]any) error
}

type scheduleJobs interface {
	FindByOrder(ctx context.Context, orderCode string) (*model.DispatchJob, error)
	Create(ctx context.Context, job model.DispatchJob) (*model.DispatchJob, error)
	Reschedule(ctx context.Context, jobID string, dueAt time.Time) (*model.DispatchJob, error)
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type geocoder interface {
	Geocode(ctx context.Context, address string) (*GeoPoint, error)
}

type ScheduleResult struct {
	OrderID  string   `json:"order_id"`
	JobID    string   `json:"job_id"`
	Warnings []string `json:"warnings,omitempty"`
}

// ScheduleSync applies a customer's (re)scheduling choice to both
// stores: metadata and payout figures on the order, due timestamp and
// status on the dispatch job. Scheduling always succeeds from the
// customer's point of view if the order update lands; a missing job is
// healed, not reported as an error.
type ScheduleSync struct {
	orders     scheduleOrders
	jobs       scheduleJobs
	recipients recipientResolver
	geo        geocoder
	sms        smsSender
	policy     PayoutPolicy
	sequenceID string
	stepID     string
}

func NewScheduleSync(orders scheduleOrders, jobs scheduleJobs, recipients recipientResolver, geo geocoder, sms smsSender, policy PayoutPolicy, sequenceID, stepID string) *ScheduleSync {
	return &ScheduleSync{
		orders:     orders,
		jobs:       jobs,
		recipients: recipients,
		geo:        geo,
		sms:        sms,
		policy:     policy,
		sequenceID: sequenceID,
		stepID:     stepID,
	}
}

// parseDue computes the due timestamp from the delivery date and the
// first boundary of the time window ("10:00-12:00" schedules at 10:00).
func parseDue(date, window string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed date %q", ErrInvalidInput, date)
	}
	first, _, ok := strings.Cut(window, "-")
	if !ok {
		return time.Time{}, fmt.Errorf("%w: malformed time window %q", ErrInvalidInput, window)
	}
	boundary, err := time.Parse("15:04", strings.TrimSpace(first))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed time window %q", ErrInvalidInput, window)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), boundary.Hour(), boundary.Minute(), 0, 0, time.UTC), nil
}

func (s *ScheduleSync) Schedule(ctx context.Context, orderRef, date, window string) (*ScheduleResult, error) {
	dueAt, err := parseDue(date, window)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.FindByRef(ctx, orderRef)
	if err != nil {
		return nil, err
	}

	result := &ScheduleResult{OrderID: order.ID}

	// Payout figures are re-derived only from the frozen subtotal, never
	// from whatever amount the processor actually collected.
	updates := map[string]any{
		"delivery_date": date,
		"time_window":   window,
		"payout_cents":  PayoutCents(order.SubtotalCents, s.policy),
	}

	// Geocoding is best-effort and never blocks scheduling.
	if addr, ok := order.Metadata["address"].(string); ok && addr != "" && s.geo != nil {
		if pt, gerr := s.geo.Geocode(ctx, addr); gerr != nil {
			slog.Warn("geocode failed", "order_code", order.Code, "error", gerr)
		} else if pt != nil {
			updates["lat"] = pt.Lat
			updates["lng"] = pt.Lng
		}
	}

	job, err := s.jobs.FindByOrder(ctx, order.Code)
	switch {
	case err == nil:
		job, err = s.jobs.Reschedule(ctx, job.ID, dueAt)
		if err != nil {
			return nil, fmt.Errorf("reschedule job for %s: %w", order.Code, err)
		}
	case errors.Is(err, ErrJobNotFound):
		// The fulfillment-side linkage was never completed (for example
		// an order created out-of-band). Heal it now and surface a
		// warning instead of failing the customer's action.
		job, err = s.healJob(ctx, order, dueAt)
		if err != nil {
			return nil, fmt.Errorf("heal job for %s: %w", order.Code, err)
		}
		warning := "dispatch job was missing and has been created during scheduling"
		updates["schedule_warning"] = warning
		result.Warnings = append(result.Warnings, warning)
	default:
		return nil, fmt.Errorf("find job for %s: %w", order.Code, err)
	}
	result.JobID = job.ID

	if err := s.orders.MergeMetadata(ctx, order.ID, updates); err != nil {
		return nil, err
	}

	if s.sms != nil && order.Phone != "" {
		msg := "Order " + order.Code + " scheduled for " + date + " between " + window
		if serr := s.sms.Send(ctx, order.Phone, msg); serr != nil {
			slog.Warn("schedule sms failed", "order_code", order.Code, "error", serr)
		}
	}
	return result, nil
}

func (s *ScheduleSync) healJob(ctx context.Context, order *model.Order, dueAt time.Time) (*model.DispatchJob, error) {
	recipientID, err := s.recipients.Resolve(ctx, order.Email, order.Name)
	if err != nil {
		return nil, err
	}
	return s.jobs.Create(ctx, model.DispatchJob{
		Status:      model.JobStatusQueued,
		SequenceID:  s.sequenceID,
		StepID:      s.stepID,
		RecipientID: recipientID,
		DueAt:       dueAt,
		OrderCode:   order.Code,
	})
}
