package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahting/billsplit/constants"
	"github.com/ahting/billsplit/internal/money"
)

// BillRecord represents one bill cycle for data transfer between layers.
// The ID is derived deterministically from (due date, amount in cents) so
// re-processing the same statement email is a no-op.
type BillRecord struct {
	ID                  string               `json:"bill_id"`
	EmailID             string               `json:"email_id"`
	Amount              money.Cents          `json:"amount"`
	DueDate             time.Time            `json:"due_date"` // calendar date, no time component
	CounterpartyPortion money.Cents          `json:"roommate_portion"`
	OwnPortion          money.Cents          `json:"my_portion"`
	EmailBody           string               `json:"email_body,omitempty"` // raw extracted text, kept for audit
	Status              constants.BillStatus `json:"status"`
	ProcessedAt         time.Time            `json:"processed_at"`
	RequestedAt         *time.Time           `json:"requested_at,omitempty"`
	PaidAt              *time.Time           `json:"paid_at,omitempty"`
	PaymentAmount       *money.Cents         `json:"payment_amount,omitempty"`
	PayerName           string               `json:"payer_name,omitempty"`
	ConfirmationID      string               `json:"confirmation_id,omitempty"`
	PaymentNote         string               `json:"payment_note,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// PaymentEvent is one parsed payment confirmation. It is ephemeral: applied
// to at most one BillRecord and then discarded, so only its effect persists.
type PaymentEvent struct {
	PayerName      string      `json:"payer_name"`
	Amount         money.Cents `json:"amount"`
	Date           time.Time   `json:"payment_date"`
	ConfirmationID string      `json:"payment_id,omitempty"`
	Note           string      `json:"note,omitempty"`
	EmailID        string      `json:"email_id"`
}

// ProcessingLogEntry is one append-only audit row. Never mutated or deleted.
type ProcessingLogEntry struct {
	ID        uuid.UUID `json:"id"`
	BillID    string    `json:"bill_id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
}
