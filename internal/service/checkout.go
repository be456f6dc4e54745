package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"orderbridge/internal/model"
)

// Checkout stages, recorded to the trace and advanced in order. The
// pipeline spans two stores with no shared transaction; consistency
// rests on idempotent sub-steps plus compensation in reverse-creation
// order from whichever stage was reached.
type checkoutState string

const (
	stateStarted       checkoutState = "started"
	stateCreated       checkoutState = "created"
	stateJobLinked     checkoutState = "job-linked"
	stateSessionLinked checkoutState = "session-linked"
	stateCompensated   checkoutState = "compensated-on-failure"
)

// idempotencyBucket is the coarse time window within which a client
// retry of the same cart reuses the same payment session.
const idempotencyBucket = 5 * time.Minute

type checkoutOrders interface {
	Create(ctx context.Context, items []model.LineItem, contact model.Contact, meta map[string]any) (*model.Order, error)
	AttachPaymentSession(ctx context.Context, orderID, sessionID string) error
	Delete(ctx context.Context, orderID string) error
}

type recipientResolver interface {
	Resolve(ctx context.Context, email, displayName string) (string, error)
}

type checkoutJobs interface {
	Create(ctx context.Context, job model.DispatchJob) (*model.DispatchJob, error)
	Delete(ctx context.Context, jobID string) error
}

type tracer interface {
	Stage(ctx context.Context, traceID, stage, detail string)
	Failure(ctx context.Context, traceID, stage string, cause error)
}

type smsSender interface {
	Send(ctx context.Context, to, body string) error
}

type CheckoutRequest struct {
	Items          []model.LineItem
	Contact        model.Contact
	Promo          string
	IdempotencyKey string
}

type CheckoutResult struct {
	OrderID    string `json:"order_id"`
	OrderCode  string `json:"order_code"`
	JobID      string `json:"job_id"`
	SessionID  string `json:"session_id"`
	PaymentURL string `json:"payment_url"`
	TraceID    string `json:"trace_id"`
}

// Checkout composes the order ledger, recipient directory, dispatch job
// store and payment session creation into one logical (but not
// transactional) operation.
type Checkout struct {
	orders     checkoutOrders
	recipients recipientResolver
	jobs       checkoutJobs
	payments   PaymentClient
	promos     *PromoList
	trace      tracer
	sms        smsSender

	sequenceID string
	stepID     string
	now        func() time.Time
}

func NewCheckout(
	orders checkoutOrders,
	recipients recipientResolver,
	jobs checkoutJobs,
	payments PaymentClient,
	promos *PromoList,
	trace tracer,
	sms smsSender,
	sequenceID, stepID string,
) *Checkout {
	return &Checkout{
		orders:     orders,
		recipients: recipients,
		jobs:       jobs,
		payments:   payments,
		promos:     promos,
		trace:      trace,
		sms:        sms,
		sequenceID: sequenceID,
		stepID:     stepID,
		now:        time.Now,
	}
}

// IdempotencyKey derives a deterministic key from the contact email, the
// cart fingerprint, and a coarse time bucket. A client retry inside the
// bucket maps to the same payment-processor session.
func IdempotencyKey(email string, items []model.LineItem, at time.Time) string {
	lines := make([]string, 0, len(items))
	for _, li := range items {
		lines = append(lines, fmt.Sprintf("%s|%d|%d", li.Name, li.UnitPriceCents, li.Quantity))
	}
	sort.Strings(lines)

	h := sha256.New()
	io.WriteString(h, NormalizeEmail(email))
	for _, l := range lines {
		io.WriteString(h, "\n"+l)
	}
	fmt.Fprintf(h, "\n%d", at.Unix()/int64(idempotencyBucket.Seconds()))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Checkout) Run(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	traceID := uuid.NewString()
	c.trace.Stage(ctx, traceID, string(stateStarted), "")

	// Compensations accumulate in creation order and run in reverse.
	var compensations []func(context.Context)
	compensate := func(stage string) {
		// Runs to completion even if the triggering request was
		// cancelled: orphans are worse than a late response.
		cctx := context.WithoutCancel(ctx)
		for i := len(compensations) - 1; i >= 0; i-- {
			compensations[i](cctx)
		}
		c.trace.Stage(cctx, traceID, string(stateCompensated), stage)
	}
	fail := func(stage string, err error) error {
		c.trace.Failure(context.WithoutCancel(ctx), traceID, stage, err)
		return err
	}

	if len(req.Items) == 0 {
		return nil, fail("validate", fmt.Errorf("%w: empty cart", ErrInvalidInput))
	}
	if NormalizeEmail(req.Contact.Email) == "" {
		return nil, fail("validate", fmt.Errorf("%w: missing email", ErrInvalidInput))
	}
	if err := c.promos.Validate(req.Promo); err != nil {
		return nil, fail("validate", err)
	}
	c.trace.Stage(ctx, traceID, "validated", "")

	key := req.IdempotencyKey
	if key == "" {
		key = IdempotencyKey(req.Contact.Email, req.Items, c.now())
	}

	// Step 1: order. Nothing exists yet, so a failure here needs no
	// compensation.
	order, err := c.orders.Create(ctx, req.Items, req.Contact, map[string]any{
		"checkout_trace_id": traceID,
	})
	if err != nil {
		return nil, fail("order", err)
	}
	compensations = append(compensations, func(cctx context.Context) {
		if derr := c.orders.Delete(cctx, order.ID); derr != nil {
			slog.Error("compensation: delete order failed", "order_id", order.ID, "error", derr)
		}
	})
	c.trace.Stage(ctx, traceID, string(stateCreated), order.ID)

	// Step 2: recipient + dispatch job. A checkout without a workflow
	// job must not be left half-created.
	recipientID, err := c.recipients.Resolve(ctx, req.Contact.Email, req.Contact.Name)
	if err != nil {
		compensate("recipient")
		return nil, fail("recipient", err)
	}

	job, err := c.jobs.Create(ctx, model.DispatchJob{
		Status:      model.JobStatusUnscheduled,
		SequenceID:  c.sequenceID,
		StepID:      c.stepID,
		RecipientID: recipientID,
		DueAt:       c.now().AddDate(0, 0, 1),
		OrderCode:   order.Code,
	})
	if err != nil {
		compensate("job")
		return nil, fail("job", err)
	}
	compensations = append(compensations, func(cctx context.Context) {
		if derr := c.jobs.Delete(cctx, job.ID); derr != nil {
			slog.Error("compensation: delete job failed", "job_id", job.ID, "error", derr)
		}
	})
	c.trace.Stage(ctx, traceID, string(stateJobLinked), job.ID)

	// Step 3: payment session under the deterministic key.
	meta := map[string]string{
		"order_id":   order.ID,
		"order_code": order.Code,
	}
	if req.Promo != "" {
		meta["promo"] = req.Promo
	}
	session, err := c.payments.CreateSession(ctx, key, req.Items, meta)
	if err != nil {
		compensate("payment")
		return nil, fail("payment", err)
	}
	c.trace.Stage(ctx, traceID, string(stateSessionLinked), session.ID)

	// Step 4: linkage. Non-fatal: order and session both already exist
	// correctly, so a failed attach is logged, never rolled back.
	if err := c.orders.AttachPaymentSession(ctx, order.ID, session.ID); err != nil {
		slog.Error("attach payment session failed", "order_id", order.ID, "session_id", session.ID, "error", err)
		c.trace.Failure(ctx, traceID, "attach", err)
	}

	if c.sms != nil && req.Contact.Phone != "" {
		if serr := c.sms.Send(ctx, req.Contact.Phone, "Order "+order.Code+" received. Complete payment at "+session.URL); serr != nil {
			slog.Warn("checkout sms failed", "order_code", order.Code, "error", serr)
		}
	}

	c.trace.Stage(ctx, traceID, "done", "")
	return &CheckoutResult{
		OrderID:    order.ID,
		OrderCode:  order.Code,
		JobID:      job.ID,
		SessionID:  session.ID,
		PaymentURL: session.URL,
		TraceID:    traceID,
	}, nil
}
