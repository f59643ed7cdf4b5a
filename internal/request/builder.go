// Package request builds the payment-request artifact for a bill and hands
// it to the notification channel.
package request

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahting/billsplit/constants"
	"github.com/ahting/billsplit/internal/clock"
	"github.com/ahting/billsplit/internal/common"
	"github.com/ahting/billsplit/internal/entity"
	"github.com/ahting/billsplit/internal/notify"
	"github.com/ahting/billsplit/internal/store"
)

// PaymentRequest is the artifact: an app deep link, a browser fallback, and
// the note shown to the payer.
type PaymentRequest struct {
	DeepLink    string `json:"deep_link"`
	WebLink     string `json:"web_link"`
	DisplayNote string `json:"display_note"`
}

// Config carries the recipient and presentation settings.
type Config struct {
	RecipientHandle string // payment-app handle charged for the counterparty share
	RecipientEmail  string
	SMSGateway      string
	BillerLabel     string // e.g. "PG&E", used in notes and message bodies
	EnableEmail     bool
	EnableText      bool
}

type Builder struct {
	cfg      Config
	notifier notify.Notifier
	bills    store.BillStore
	clock    clock.Clock
	logger   *zap.Logger
}

func NewBuilder(cfg Config, n notify.Notifier, bills store.BillStore, clk clock.Clock, logger *zap.Logger) *Builder {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Builder{cfg: cfg, notifier: n, bills: bills, clock: clk, logger: logger}
}

// Build constructs the request artifact for a bill. Pure; no delivery.
func (b *Builder) Build(bill *entity.BillRecord) PaymentRequest {
	amount := bill.CounterpartyPortion.Dollars()
	due := bill.DueDate.Format("1/2/2006")
	note := fmt.Sprintf("%s bill split - %s (your share $%s of $%s)",
		b.cfg.BillerLabel, due, amount, bill.Amount.Dollars())

	return PaymentRequest{
		DeepLink: fmt.Sprintf("venmo://paycharge?txn=charge&recipients=%s&amount=%s&note=%s",
			url.QueryEscape(b.cfg.RecipientHandle), amount, url.QueryEscape(note)),
		WebLink: fmt.Sprintf("https://venmo.com/%s?txn=charge&amount=%s&note=%s",
			url.PathEscape(b.cfg.RecipientHandle), amount, url.QueryEscape(note)),
		DisplayNote: note,
	}
}

// Send builds the artifact, attempts delivery exactly once per invocation,
// and on success marks the bill requested. A delivery failure leaves the bill
// in its prior status so a later run can retry; re-sending an
// already-requested bill is safe.
func (b *Builder) Send(ctx context.Context, bill *entity.BillRecord) (PaymentRequest, error) {
	req := b.Build(bill)
	body := fmt.Sprintf("%s Bill - %s\nAmount: $%s\n%s",
		b.cfg.BillerLabel,
		bill.DueDate.Format("January 2006"),
		bill.CounterpartyPortion.Dollars(),
		req.DeepLink,
	)

	delivered := false
	if b.cfg.EnableText && b.cfg.SMSGateway != "" {
		if _, err := b.notifier.SendText(ctx, b.cfg.SMSGateway, body); err != nil {
			b.logger.Warn("request.sms_failed", zap.String("bill_id", bill.ID), zap.Error(err))
		} else {
			delivered = true
		}
	}
	if b.cfg.EnableEmail && b.cfg.RecipientEmail != "" {
		subject := fmt.Sprintf("%s bill split: $%s due %s",
			b.cfg.BillerLabel, bill.CounterpartyPortion.Dollars(), bill.DueDate.Format("1/2/2006"))
		if _, err := b.notifier.SendEmail(ctx, b.cfg.RecipientEmail, subject, body); err != nil {
			b.logger.Warn("request.email_failed", zap.String("bill_id", bill.ID), zap.Error(err))
		} else {
			delivered = true
		}
	}
	if !delivered {
		return req, fmt.Errorf("bill %s: %w", bill.ID, common.ErrDelivery)
	}

	now := b.clock.Now()
	moved, err := b.bills.MarkRequested(ctx, bill.ID, now)
	if err != nil {
		return req, err
	}
	if !moved {
		// Another run already moved it past processed. The counterparty may
		// see a duplicate notification; the bill state stays consistent.
		b.logger.Info("request.already_requested", zap.String("bill_id", bill.ID))
		return req, nil
	}
	if err := b.bills.AppendLog(ctx, &entity.ProcessingLogEntry{
		ID:        uuid.New(),
		BillID:    bill.ID,
		Timestamp: now,
		Action:    constants.ActionRequestSent,
		Details:   fmt.Sprintf("payment request for $%s sent to %s", bill.CounterpartyPortion.Dollars(), b.cfg.RecipientHandle),
	}); err != nil {
		b.logger.Warn("request.log_failed", zap.String("bill_id", bill.ID), zap.Error(err))
	}
	b.logger.Info("request.sent",
		zap.String("bill_id", bill.ID),
		zap.String("amount", bill.CounterpartyPortion.Dollars()),
	)
	return req, nil
}
