package extract

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ahting/billsplit/constants"
	"github.com/ahting/billsplit/internal/clock"
	"github.com/ahting/billsplit/internal/common"
	"github.com/ahting/billsplit/internal/inbox"
)

func testExtractor() *Extractor {
	cfg := Config{
		StatementSubject: "Energy Statement is Ready",
		BillIndicators:   []string{"paperless bill", "is now available", "statement balance"},
		PaymentIndicators: []string{
			"payment has been processed",
			"confirmation number",
			"we thank you for being",
		},
		IDPrefix:          "pge",
		CounterpartyRatio: 0.333333,
	}
	clk := clock.Fixed{T: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewExtractor(cfg, clk, zap.NewNop())
}

func statementMsg(body string) inbox.Message {
	return inbox.Message{
		ID:      "msg-1",
		Sender:  "DoNotReply@billpay.pge.com",
		Subject: "Your Energy Statement is Ready To View",
		Body:    body,
	}
}

func TestExtractBillStatement(t *testing.T) {
	e := testExtractor()
	msg := statementMsg("Your paperless bill is now available.\nAmount due: $288.15\nDue date: 03/15/2025")

	bill, err := e.Extract(msg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if bill.ID != "pge_3_15_2025_28815" {
		t.Errorf("ID = %q, want %q", bill.ID, "pge_3_15_2025_28815")
	}
	if bill.Amount != 28815 {
		t.Errorf("Amount = %d, want 28815", bill.Amount)
	}
	wantDue := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	if !bill.DueDate.Equal(wantDue) {
		t.Errorf("DueDate = %v, want %v", bill.DueDate, wantDue)
	}
	if bill.CounterpartyPortion != 9605 {
		t.Errorf("CounterpartyPortion = %d, want 9605", bill.CounterpartyPortion)
	}
	if bill.OwnPortion != 19210 {
		t.Errorf("OwnPortion = %d, want 19210", bill.OwnPortion)
	}
	if bill.Status != constants.BillStatusProcessed {
		t.Errorf("Status = %q, want %q", bill.Status, constants.BillStatusProcessed)
	}
	if bill.EmailID != "msg-1" {
		t.Errorf("EmailID = %q", bill.EmailID)
	}
}

func TestExtractPicksLargestAmount(t *testing.T) {
	e := testExtractor()
	msg := statementMsg("paperless bill\nPrevious balance: $50.00\nTotal amount: $120.00 due 03/15/2025")

	bill, err := e.Extract(msg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if bill.Amount != 12000 {
		t.Errorf("Amount = %d, want 12000", bill.Amount)
	}
}

func TestExtractDueDatePriority(t *testing.T) {
	e := testExtractor()
	// A bare date earlier in the body must lose to the date near "due".
	msg := statementMsg("paperless bill\nStatement date 03/01/2025\nTotal $120.00 due 03/15/2025")

	bill, err := e.Extract(msg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	if !bill.DueDate.Equal(want) {
		t.Errorf("DueDate = %v, want %v", bill.DueDate, want)
	}
}

func TestClassificationExclusionWins(t *testing.T) {
	e := testExtractor()
	// Bill vocabulary present, but the confirmation vocabulary disqualifies.
	msg := statementMsg("Your paperless bill $120.00 due 03/15/2025. Your payment has been processed, confirmation number 42.")

	_, err := e.Extract(msg)
	if !errors.Is(err, common.ErrNotABill) {
		t.Fatalf("err = %v, want ErrNotABill", err)
	}
}

func TestExtractRejections(t *testing.T) {
	e := testExtractor()
	tests := []struct {
		name string
		msg  inbox.Message
		want error
	}{
		{
			"wrong subject",
			inbox.Message{ID: "m", Subject: "Weekly newsletter", Body: "paperless bill $10.00 due 03/15/2025"},
			common.ErrNotABill,
		},
		{
			"no bill indicator",
			statementMsg("hello there, nothing billing related"),
			common.ErrNotABill,
		},
		{
			"empty body",
			statementMsg(""),
			common.ErrNotABill,
		},
		{
			"no amount",
			statementMsg("paperless bill due 03/15/2025"),
			common.ErrNoAmount,
		},
		{
			"no due date",
			statementMsg("paperless bill for $120.00, no date here"),
			common.ErrNoDueDate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(tt.msg)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDeriveIDDeterministic(t *testing.T) {
	due := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	a := DeriveID("pge", due, 28815)
	b := DeriveID("pge", due, 28815)
	if a != b {
		t.Errorf("ids differ: %q vs %q", a, b)
	}
	if a != "pge_3_15_2025_28815" {
		t.Errorf("id = %q", a)
	}
	if DeriveID("pge", due, 28816) == a {
		t.Error("different amounts must derive different ids")
	}
	if DeriveID("pge", due.AddDate(0, 1, 0), 28815) == a {
		t.Error("different due dates must derive different ids")
	}
}
