package request

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ahting/billsplit/constants"
	"github.com/ahting/billsplit/internal/clock"
	"github.com/ahting/billsplit/internal/common"
	"github.com/ahting/billsplit/internal/entity"
	"github.com/ahting/billsplit/internal/notify"
	"github.com/ahting/billsplit/internal/store"
)

// trackStore records the lifecycle calls the builder makes.
type trackStore struct {
	store.BillStore
	requested []string
	logged    []string
	refuse    bool
}

func (s *trackStore) MarkRequested(_ context.Context, id string, _ time.Time) (bool, error) {
	if s.refuse {
		return false, nil
	}
	s.requested = append(s.requested, id)
	return true, nil
}

func (s *trackStore) AppendLog(_ context.Context, e *entity.ProcessingLogEntry) error {
	s.logged = append(s.logged, e.Action)
	return nil
}

// failNotifier refuses the selected channels.
type failNotifier struct {
	failText  bool
	failEmail bool
	texts     []string
	emails    []string
}

func (n *failNotifier) SendText(_ context.Context, recipient, body string) (string, error) {
	if n.failText {
		return "", fmt.Errorf("gateway refused: %w", common.ErrDelivery)
	}
	n.texts = append(n.texts, recipient+"|"+body)
	return "id-text", nil
}

func (n *failNotifier) SendEmail(_ context.Context, to, subject, body string) (string, error) {
	if n.failEmail {
		return "", fmt.Errorf("smtp refused: %w", common.ErrDelivery)
	}
	n.emails = append(n.emails, to+"|"+subject+"|"+body)
	return "id-email", nil
}

func testConfig() Config {
	return Config{
		RecipientHandle: "Ushi-Lo",
		RecipientEmail:  "roommate@example.com",
		SMSGateway:      "5551234567@vtext.com",
		BillerLabel:     "PG&E",
		EnableEmail:     true,
		EnableText:      true,
	}
}

func testBill() *entity.BillRecord {
	return &entity.BillRecord{
		ID:                  "pge_3_15_2025_28815",
		Amount:              28815,
		DueDate:             time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		CounterpartyPortion: 9605,
		OwnPortion:          19210,
		Status:              constants.BillStatusProcessed,
	}
}

func TestBuildLinks(t *testing.T) {
	b := NewBuilder(testConfig(), notify.NewSimulated(zap.NewNop()), &trackStore{}, nil, zap.NewNop())
	req := b.Build(testBill())

	wantNote := "PG&E bill split - 3/15/2025 (your share $96.05 of $288.15)"
	if req.DisplayNote != wantNote {
		t.Errorf("note = %q, want %q", req.DisplayNote, wantNote)
	}
	wantDeep := "venmo://paycharge?txn=charge&recipients=Ushi-Lo&amount=96.05&note=" + url.QueryEscape(wantNote)
	if req.DeepLink != wantDeep {
		t.Errorf("deep link = %q, want %q", req.DeepLink, wantDeep)
	}
	wantWeb := "https://venmo.com/Ushi-Lo?txn=charge&amount=96.05&note=" + url.QueryEscape(wantNote)
	if req.WebLink != wantWeb {
		t.Errorf("web link = %q, want %q", req.WebLink, wantWeb)
	}
}

func TestSendMarksRequested(t *testing.T) {
	bills := &trackStore{}
	n := &failNotifier{}
	clk := clock.Fixed{T: time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)}
	b := NewBuilder(testConfig(), n, bills, clk, zap.NewNop())

	if _, err := b.Send(context.Background(), testBill()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(bills.requested) != 1 || bills.requested[0] != "pge_3_15_2025_28815" {
		t.Errorf("requested = %v", bills.requested)
	}
	if len(bills.logged) != 1 || bills.logged[0] != constants.ActionRequestSent {
		t.Errorf("logged = %v", bills.logged)
	}
	if len(n.texts) != 1 {
		t.Fatalf("texts = %d, want 1", len(n.texts))
	}
	if !strings.Contains(n.texts[0], "PG&E Bill - March 2025") {
		t.Errorf("sms body = %q", n.texts[0])
	}
	if !strings.Contains(n.texts[0], "Amount: $96.05") {
		t.Errorf("sms body = %q", n.texts[0])
	}
	if !strings.Contains(n.texts[0], "venmo://paycharge") {
		t.Errorf("sms body missing deep link: %q", n.texts[0])
	}
}

func TestSendFallsBackToEmail(t *testing.T) {
	bills := &trackStore{}
	n := &failNotifier{failText: true}
	b := NewBuilder(testConfig(), n, bills, nil, zap.NewNop())

	if _, err := b.Send(context.Background(), testBill()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(n.emails) != 1 {
		t.Fatalf("emails = %d, want 1", len(n.emails))
	}
	if len(bills.requested) != 1 {
		t.Errorf("requested = %v", bills.requested)
	}
}

func TestSendDeliveryFailureLeavesBillUntouched(t *testing.T) {
	bills := &trackStore{}
	n := &failNotifier{failText: true, failEmail: true}
	b := NewBuilder(testConfig(), n, bills, nil, zap.NewNop())

	_, err := b.Send(context.Background(), testBill())
	if !errors.Is(err, common.ErrDelivery) {
		t.Fatalf("err = %v, want ErrDelivery", err)
	}
	if len(bills.requested) != 0 {
		t.Errorf("bill transitioned despite delivery failure: %v", bills.requested)
	}
	if len(bills.logged) != 0 {
		t.Errorf("log written despite delivery failure: %v", bills.logged)
	}
}

func TestSendToleratesLostTransitionRace(t *testing.T) {
	bills := &trackStore{refuse: true}
	n := &failNotifier{}
	b := NewBuilder(testConfig(), n, bills, nil, zap.NewNop())

	if _, err := b.Send(context.Background(), testBill()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(bills.logged) != 0 {
		t.Errorf("log written for a lost transition: %v", bills.logged)
	}
}
