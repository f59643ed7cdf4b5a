// Package store owns persisted bill records and the append-only processing
// log. All lifecycle mutations go through conditional writes so overlapping
// invocations cannot clobber each other.
package store

import (
	"context"
	"time"

	"github.com/ahting/billsplit/internal/entity"
)

// BillStore is the gateway to durable bill state.
type BillStore interface {
	// Submit creates the candidate if no record with its id exists. An
	// already-known id, including one written by a concurrent winner, yields
	// common.ErrDuplicateBill.
	Submit(ctx context.Context, bill *entity.BillRecord) error

	// Fetch returns the record or common.ErrNotFound.
	Fetch(ctx context.Context, id string) (*entity.BillRecord, error)

	// ListOpen returns records whose status still accepts a payment
	// (processed or requested), oldest due date first.
	ListOpen(ctx context.Context) ([]*entity.BillRecord, error)

	// ListAll returns every record, newest due date first.
	ListAll(ctx context.Context) ([]*entity.BillRecord, error)

	// MarkRequested transitions processed -> requested. Returns false when the
	// record was not in processed (another run got there first).
	MarkRequested(ctx context.Context, id string, at time.Time) (bool, error)

	// MarkPaid transitions an open record to paid, recording the payment
	// facts. Returns false when the record was already paid.
	MarkPaid(ctx context.Context, id string, ev *entity.PaymentEvent, at time.Time) (bool, error)

	// AppendLog writes one audit row. Rows are never mutated or deleted.
	AppendLog(ctx context.Context, e *entity.ProcessingLogEntry) error

	// ListLog returns the audit rows for one bill, oldest first.
	ListLog(ctx context.Context, billID string) ([]*entity.ProcessingLogEntry, error)
}
