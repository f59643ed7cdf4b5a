// Package match turns a payment-confirmation email into a payment event and
// applies it to the best-matching open bill.
package match

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahting/billsplit/constants"
	"github.com/ahting/billsplit/internal/clock"
	"github.com/ahting/billsplit/internal/common"
	"github.com/ahting/billsplit/internal/entity"
	"github.com/ahting/billsplit/internal/inbox"
	"github.com/ahting/billsplit/internal/money"
	"github.com/ahting/billsplit/internal/store"
)

// Config carries the confirmation gate and matching policy.
type Config struct {
	// PaymentSender is the known notification address, e.g. venmo@venmo.com.
	PaymentSender string
	// Phrases is the confirmation vocabulary; at least MinPhrases of them
	// must appear in the body.
	Phrases    []string
	MinPhrases int
	// AmountTolerance is the maximum cent distance for a candidate match.
	AmountTolerance money.Cents
	// WindowDays hard-excludes bills whose due date is further from the
	// event date than this many days. 0 disables the window; amount
	// precedence alone then decides.
	WindowDays int
}

// DefaultPhrases is the stock confirmation vocabulary.
var DefaultPhrases = []string{
	"you charged",
	"transfer date and amount",
	"money credited to your venmo account",
	"payment id:",
}

type Matcher struct {
	cfg    Config
	bills  store.BillStore
	clock  clock.Clock
	logger *zap.Logger
}

func NewMatcher(cfg Config, bills store.BillStore, clk clock.Clock, logger *zap.Logger) *Matcher {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if len(cfg.Phrases) == 0 {
		cfg.Phrases = DefaultPhrases
	}
	if cfg.MinPhrases <= 0 {
		cfg.MinPhrases = 2
	}
	if cfg.AmountTolerance <= 0 {
		cfg.AmountTolerance = 1
	}
	return &Matcher{cfg: cfg, bills: bills, clock: clk, logger: logger}
}

// Result is the outcome of processing one confirmation candidate. Reason
// classifies a non-match for errors.Is: common.ErrNotAConfirmation when the
// gate rejected the email, common.ErrNoMatch when a real payment found no
// open bill to settle. Nil when matched.
type Result struct {
	Matched bool                 `json:"matched"`
	BillID  string               `json:"bill_id,omitempty"`
	Event   *entity.PaymentEvent `json:"payment_info,omitempty"`
	Message string               `json:"message"`
	Reason  error                `json:"-"`
}

var (
	payerRe = regexp.MustCompile(`(?i)You charged\s+([^\n]+)`)

	// Amount patterns in priority order: thousands-separated first, then
	// plain, then the "private+ $x.xx" transfer line.
	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$\s*(\d{1,3}(?:,\d{3})*\.\d{2})`),
		regexp.MustCompile(`\$\s*(\d+\.\d{2})`),
		regexp.MustCompile(`(?i)private\+\s*\$\s*(\d+\.\d{2})`),
	}

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`([A-Za-z]{3}\s+\d{1,2},\s+\d{4})`),
		regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`),
		regexp.MustCompile(`([A-Za-z]{3}\s+\d{1,2}\s+\d{4})`),
	}
	dateLayouts = []string{"Jan 2, 2006", "1/2/2006", "Jan 2 2006"}

	confirmationIDRe = regexp.MustCompile(`(?i)Payment ID:\s*(\d+)`)
)

// IsConfirmation applies the gate: known sender plus at least MinPhrases of
// the confirmation vocabulary.
func (m *Matcher) IsConfirmation(msg inbox.Message) bool {
	if !strings.Contains(strings.ToLower(msg.Sender), strings.ToLower(m.cfg.PaymentSender)) {
		return false
	}
	body := strings.ToLower(msg.Body)
	count := 0
	for _, phrase := range m.cfg.Phrases {
		if strings.Contains(body, phrase) {
			count++
		}
	}
	return count >= m.cfg.MinPhrases
}

// ExtractEvent parses the payment facts out of a confirmation body.
func (m *Matcher) ExtractEvent(msg inbox.Message) (*entity.PaymentEvent, error) {
	ev := &entity.PaymentEvent{EmailID: msg.ID}

	if p := payerRe.FindStringSubmatch(msg.Body); p != nil {
		ev.PayerName = strings.TrimSpace(p[1])
	}

	var found bool
	for _, re := range amountPatterns {
		if am := re.FindStringSubmatch(msg.Body); am != nil {
			c, err := money.ParseDollars(am[1])
			if err == nil && c > 0 {
				ev.Amount = c
				found = true
				break
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("message %s: %w", msg.ID, common.ErrNoAmount)
	}

	ev.Date = m.extractDate(msg.Body)
	if id := confirmationIDRe.FindStringSubmatch(msg.Body); id != nil {
		ev.ConfirmationID = id[1]
	}
	ev.Note = extractNote(msg.Body)

	m.logger.Info("match.event",
		zap.String("payer", ev.PayerName),
		zap.String("amount", ev.Amount.Dollars()),
		zap.String("confirmation_id", ev.ConfirmationID),
	)
	return ev, nil
}

// extractDate tries each pattern against each layout; an unparseable date
// falls back to now with a warning, never an error.
func (m *Matcher) extractDate(body string) time.Time {
	for _, re := range datePatterns {
		match := re.FindStringSubmatch(body)
		if match == nil {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, match[1]); err == nil {
				return t
			}
		}
	}
	now := m.clock.Now()
	m.logger.Warn("match.date_fallback", zap.Time("now", now))
	return now
}

// extractNote returns the free text between the payer line and the transfer
// marker.
func extractNote(body string) string {
	section := body
	if _, after, ok := strings.Cut(section, "You charged"); ok {
		section = after
	}
	if before, _, ok := strings.Cut(section, "Transfer Date"); ok {
		section = before
	}
	var lines []string
	for _, line := range strings.Split(section, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) <= 1 {
		return ""
	}
	// First non-empty line is the payer name; the rest is the note.
	return strings.TrimSpace(strings.Join(lines[1:], " "))
}

type candidate struct {
	bill       *entity.BillRecord
	amountDiff money.Cents
	daysDiff   int
}

// ProcessEmail runs the full gate -> extract -> match -> apply sequence for
// one email. Non-confirmations and unmatched events are reported in the
// Result, not as errors.
func (m *Matcher) ProcessEmail(ctx context.Context, msg inbox.Message) (Result, error) {
	if !m.IsConfirmation(msg) {
		return Result{Message: "not a payment confirmation email", Reason: common.ErrNotAConfirmation}, nil
	}

	ev, err := m.ExtractEvent(msg)
	if err != nil {
		return Result{Message: "could not extract payment information"}, err
	}

	open, err := m.bills.ListOpen(ctx)
	if err != nil {
		return Result{Event: ev}, err
	}

	candidates := m.rankCandidates(open, ev)
	if len(candidates) == 0 {
		m.logger.Warn("match.no_bill",
			zap.String("amount", ev.Amount.Dollars()),
			zap.String("payer", ev.PayerName),
		)
		return Result{Event: ev, Message: fmt.Sprintf("no matching bill for payment of %s", ev.Amount), Reason: common.ErrNoMatch}, nil
	}
	if len(candidates) > 1 {
		m.logger.Warn("match.multiple_bills",
			zap.String("amount", ev.Amount.Dollars()),
			zap.Int("candidates", len(candidates)),
		)
	}

	// Apply to the best candidate whose conditional transition succeeds. A
	// losing update means another run paid that bill between our read and
	// write; the next-ranked candidate is then still applicable.
	now := m.clock.Now()
	for _, c := range candidates {
		moved, err := m.bills.MarkPaid(ctx, c.bill.ID, ev, now)
		if err != nil {
			return Result{Event: ev}, err
		}
		if !moved {
			continue
		}
		if err := m.bills.AppendLog(ctx, &entity.ProcessingLogEntry{
			ID:        uuid.New(),
			BillID:    c.bill.ID,
			Timestamp: now,
			Action:    constants.ActionPaymentConfirmed,
			Details:   fmt.Sprintf("payment of %s confirmed from %s", ev.Amount, payerOrUnknown(ev.PayerName)),
		}); err != nil {
			m.logger.Warn("match.log_failed", zap.String("bill_id", c.bill.ID), zap.Error(err))
		}
		m.logger.Info("match.applied",
			zap.String("bill_id", c.bill.ID),
			zap.String("amount", ev.Amount.Dollars()),
			zap.String("payer", ev.PayerName),
		)
		return Result{
			Matched: true,
			BillID:  c.bill.ID,
			Event:   ev,
			Message: fmt.Sprintf("bill %s marked as paid (%s)", c.bill.ID, ev.Amount),
		}, nil
	}
	return Result{Event: ev, Message: "all candidate bills were already paid", Reason: common.ErrNoMatch}, nil
}

// rankCandidates filters open bills to those within the amount tolerance
// (and the optional date window) and orders them by amount distance, then by
// day distance to the due date. Amount match takes precedence over date
// proximity by policy.
func (m *Matcher) rankCandidates(open []*entity.BillRecord, ev *entity.PaymentEvent) []candidate {
	var out []candidate
	for _, bill := range open {
		diff := (bill.CounterpartyPortion - ev.Amount).Abs()
		if diff > m.cfg.AmountTolerance {
			continue
		}
		days := dayDistance(ev.Date, bill.DueDate)
		if m.cfg.WindowDays > 0 && days > m.cfg.WindowDays {
			continue
		}
		out = append(out, candidate{bill: bill, amountDiff: diff, daysDiff: days})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].amountDiff != out[j].amountDiff {
			return out[i].amountDiff < out[j].amountDiff
		}
		return out[i].daysDiff < out[j].daysDiff
	})
	return out
}

func dayDistance(a, b time.Time) int {
	d := a.Sub(b) / (24 * time.Hour)
	if d < 0 {
		d = -d
	}
	return int(d)
}

func payerOrUnknown(name string) string {
	if name == "" {
		return "Unknown"
	}
	return name
}
