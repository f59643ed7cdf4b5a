// Package runner sequences one invocation of the bill lifecycle: pull
// candidate statements, extract and persist bills, send payment requests,
// then pull confirmation candidates and settle matched bills. Invocations
// are synchronous and run to completion; overlapping runs are safe because
// every store mutation is conditional.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahting/billsplit/constants"
	"github.com/ahting/billsplit/internal/clock"
	"github.com/ahting/billsplit/internal/common"
	"github.com/ahting/billsplit/internal/entity"
	"github.com/ahting/billsplit/internal/extract"
	"github.com/ahting/billsplit/internal/inbox"
	"github.com/ahting/billsplit/internal/match"
	"github.com/ahting/billsplit/internal/notify"
	"github.com/ahting/billsplit/internal/request"
	"github.com/ahting/billsplit/internal/store"
)

const maxSearchResults = 50

// Options selects the behavior of one invocation.
type Options struct {
	TestMode bool `json:"test_mode"`
	DaysBack int  `json:"days_back"`
}

// Summary is the invocation report. Counts are always populated, even on a
// degraded run, so operators can see partial progress.
type Summary struct {
	BillsProcessed    int      `json:"bills_processed"`
	DuplicateBills    int      `json:"duplicate_bills"`
	RequestsSent      int      `json:"requests_sent"`
	PaymentsMatched   int      `json:"payments_matched"`
	UnmatchedPayments int      `json:"unmatched_payments"`
	Errors            []string `json:"errors"`
}

// Runner wires the lifecycle components around injected collaborators.
type Runner struct {
	cfg       *common.Config
	inbox     inbox.Inbox
	bills     store.BillStore
	extractor *extract.Extractor
	matcher   *match.Matcher
	notifier  notify.Notifier
	clock     clock.Clock
	logger    *zap.Logger
}

func New(cfg *common.Config, in inbox.Inbox, bills store.BillStore, n notify.Notifier, clk clock.Clock, logger *zap.Logger) *Runner {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	extractor := extract.NewExtractor(extract.Config{
		StatementSubject:  cfg.Bills.StatementSubject,
		BillIndicators:    cfg.Bills.BillIndicators,
		PaymentIndicators: cfg.Bills.PaymentIndicators,
		IDPrefix:          cfg.Bills.IDPrefix,
		CounterpartyRatio: cfg.Split.CounterpartyRatio,
	}, clk, logger)
	matcher := match.NewMatcher(match.Config{
		PaymentSender: cfg.Payments.Sender,
		MinPhrases:    cfg.Payments.MinPhrases,
		WindowDays:    cfg.Payments.WindowDays,
	}, bills, clk, logger)

	return &Runner{
		cfg:       cfg,
		inbox:     in,
		bills:     bills,
		extractor: extractor,
		matcher:   matcher,
		notifier:  n,
		clock:     clk,
		logger:    logger,
	}
}

// Run executes both lifecycle phases. Per-email failures accumulate in the
// summary; only an unreachable collaborator aborts the run.
func (r *Runner) Run(ctx context.Context, opts Options) (Summary, error) {
	sum := Summary{Errors: []string{}}
	if opts.DaysBack <= 0 {
		opts.DaysBack = r.cfg.Run.DaysBack
	}
	r.logger.Info("run.start", zap.Bool("test_mode", opts.TestMode), zap.Int("days_back", opts.DaysBack))

	// Bills whose delivery failed on an earlier invocation are retried before
	// new mail is scanned, so a stuck bill never waits behind a quiet inbox.
	if err := r.RetryPending(ctx, opts, &sum); err != nil {
		sum.Errors = append(sum.Errors, err.Error())
		return sum, err
	}
	if err := r.ProcessBills(ctx, opts, &sum); err != nil {
		sum.Errors = append(sum.Errors, err.Error())
		return sum, err
	}
	if err := r.CheckPayments(ctx, opts, &sum); err != nil {
		sum.Errors = append(sum.Errors, err.Error())
		return sum, err
	}

	r.logger.Info("run.done",
		zap.Int("bills_processed", sum.BillsProcessed),
		zap.Int("duplicates", sum.DuplicateBills),
		zap.Int("requests_sent", sum.RequestsSent),
		zap.Int("payments_matched", sum.PaymentsMatched),
		zap.Int("errors", len(sum.Errors)),
	)
	return sum, nil
}

// ProcessBills runs the statement phase: search, extract, dedup-persist,
// split, request.
func (r *Runner) ProcessBills(ctx context.Context, opts Options, sum *Summary) error {
	now := r.clock.Now()
	query := inbox.BillQuery(r.cfg.Bills.Sender, now.AddDate(0, 0, -opts.DaysBack), now)
	msgs, err := r.inbox.Search(ctx, query, maxSearchResults)
	if err != nil {
		return fmt.Errorf("bill search: %w", err)
	}

	builder := r.newBuilder(opts)
	for _, msg := range msgs {
		bill, err := r.extractor.Extract(msg)
		if err != nil {
			if errors.Is(err, common.ErrNotABill) {
				continue
			}
			// One bad email never aborts the batch.
			sum.Errors = append(sum.Errors, fmt.Sprintf("extract %s: %v", msg.ID, err))
			continue
		}

		if err := r.bills.Submit(ctx, bill); err != nil {
			if errors.Is(err, common.ErrDuplicateBill) {
				sum.DuplicateBills++
				r.logger.Info("run.duplicate_bill", zap.String("bill_id", bill.ID))
				continue
			}
			sum.Errors = append(sum.Errors, fmt.Sprintf("persist %s: %v", bill.ID, err))
			continue
		}
		sum.BillsProcessed++
		if err := r.bills.AppendLog(ctx, &entity.ProcessingLogEntry{
			ID:        uuid.New(),
			BillID:    bill.ID,
			Timestamp: r.clock.Now(),
			Action:    constants.ActionBillCreated,
			Details:   fmt.Sprintf("bill for %s due %s", bill.Amount, bill.DueDate.Format("1/2/2006")),
		}); err != nil {
			r.logger.Warn("run.log_failed", zap.String("bill_id", bill.ID), zap.Error(err))
		}

		if _, err := builder.Send(ctx, bill); err != nil {
			// Bill stays processed; the next run retries delivery.
			sum.Errors = append(sum.Errors, fmt.Sprintf("request %s: %v", bill.ID, err))
			continue
		}
		sum.RequestsSent++
	}
	return nil
}

// CheckPayments runs the confirmation phase: search, extract events, match
// against open bills, settle.
func (r *Runner) CheckPayments(ctx context.Context, opts Options, sum *Summary) error {
	since := r.clock.Now().AddDate(0, 0, -opts.DaysBack)
	query := inbox.ConfirmationQuery(r.cfg.Payments.Sender, since)
	msgs, err := r.inbox.Search(ctx, query, maxSearchResults)
	if err != nil {
		return fmt.Errorf("confirmation search: %w", err)
	}

	for _, msg := range msgs {
		res, err := r.matcher.ProcessEmail(ctx, msg)
		if err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("payment %s: %v", msg.ID, err))
			continue
		}
		if res.Matched {
			sum.PaymentsMatched++
		} else if errors.Is(res.Reason, common.ErrNoMatch) {
			// A real payment with no open bill is logged for manual review.
			sum.UnmatchedPayments++
		}
	}
	return nil
}

// RetryPending re-attempts delivery for bills still in processed after an
// earlier delivery failure. Run invokes it ahead of the statement phase;
// the duplicate check in ProcessBills never re-sends, so this is the only
// path back to requested for a stuck bill.
func (r *Runner) RetryPending(ctx context.Context, opts Options, sum *Summary) error {
	open, err := r.bills.ListOpen(ctx)
	if err != nil {
		return err
	}
	builder := r.newBuilder(opts)
	for _, bill := range open {
		if bill.Status != constants.BillStatusProcessed {
			continue
		}
		if _, err := builder.Send(ctx, bill); err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("request %s: %v", bill.ID, err))
			continue
		}
		sum.RequestsSent++
	}
	return nil
}

// newBuilder picks the real channel or, in test mode, the simulated one.
// Test mode is first-class: everything but the external send runs unchanged.
func (r *Runner) newBuilder(opts Options) *request.Builder {
	n := r.notifier
	if opts.TestMode {
		n = notify.NewSimulated(r.logger)
	}
	return request.NewBuilder(request.Config{
		RecipientHandle: r.cfg.Notify.CounterpartyVenmo,
		RecipientEmail:  r.cfg.Notify.CounterpartyEmail,
		SMSGateway:      r.cfg.Notify.SMSGateway,
		BillerLabel:     r.cfg.Bills.BillerLabel,
		EnableEmail:     r.cfg.Notify.EnableEmail,
		EnableText:      r.cfg.Notify.EnableText,
	}, n, r.bills, r.clock, r.logger)
}
