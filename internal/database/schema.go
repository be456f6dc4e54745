package database

import (
	"database/sql"
	"fmt"
)

// The two stores evolve independently; each gets its own bootstrap.
// These are baselines only: the fulfillment schema drifts in deployments
// we do not control, which is why all fulfillment writes go through the
// schema-adaptive writer.

const primarySchemaSQL = `
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

CREATE TABLE IF NOT EXISTS orders (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    code TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    phone TEXT,
    items JSONB NOT NULL DEFAULT '[]',
    subtotal_cents BIGINT NOT NULL,
    currency TEXT NOT NULL DEFAULT 'USD',
    status TEXT NOT NULL DEFAULT 'pending_payment',
    payment_session_id TEXT,
    metadata JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS checkout_traces (
    id BIGSERIAL PRIMARY KEY,
    trace_id UUID NOT NULL,
    stage TEXT NOT NULL,
    detail TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS checkout_failures (
    id BIGSERIAL PRIMARY KEY,
    trace_id UUID NOT NULL,
    stage TEXT NOT NULL,
    error TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_session ON orders(payment_session_id);
CREATE INDEX IF NOT EXISTS idx_traces_trace_id ON checkout_traces(trace_id);
CREATE INDEX IF NOT EXISTS idx_failures_trace_id ON checkout_failures(trace_id);
`

const fulfillmentSchemaSQL = `
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

CREATE TABLE IF NOT EXISTS recipients (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    email TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL DEFAULT '',
    ukey TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS dispatch_jobs (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    status TEXT NOT NULL DEFAULT 'unscheduled',
    sequence_id TEXT NOT NULL,
    step_id TEXT NOT NULL,
    recipient_id UUID NOT NULL REFERENCES recipients(id),
    due_at TIMESTAMPTZ NOT NULL,
    attempts INT NOT NULL DEFAULT 0,
    order_code TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (recipient_id, step_id)
);

-- Pre-migration jobs table the payout ledger still points at.
CREATE TABLE IF NOT EXISTS legacy_jobs (
    id UUID PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS job_line_items (
    id BIGSERIAL PRIMARY KEY,
    job_id UUID NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    payout_cents BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS payout_ledger (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    recipient_id UUID NOT NULL REFERENCES recipients(id),
    job_id UUID NOT NULL REFERENCES legacy_jobs(id),
    amount_cents BIGINT NOT NULL DEFAULT 0,
    payout_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    period_start DATE,
    period_end DATE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (job_id, recipient_id, payout_type)
);

CREATE INDEX IF NOT EXISTS idx_jobs_order_code ON dispatch_jobs(order_code);
CREATE INDEX IF NOT EXISTS idx_jobs_step ON dispatch_jobs(step_id);
CREATE INDEX IF NOT EXISTS idx_line_items_job ON job_line_items(job_id);
`

func InitPrimarySchema(db *sql.DB) error {
	if _, err := db.Exec(primarySchemaSQL); err != nil {
		return fmt.Errorf("failed to init primary schema: %w", err)
	}
	return nil
}

func InitFulfillmentSchema(db *sql.DB) error {
	if _, err := db.Exec(fulfillmentSchemaSQL); err != nil {
		return fmt.Errorf("failed to init fulfillment schema: %w", err)
	}
	return nil
}
