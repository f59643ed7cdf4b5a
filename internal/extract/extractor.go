// Package extract turns a raw statement email into a structured bill record,
// or a "not a bill" verdict. It is a pure function of the email content plus
// the configured ratios; persistence is the caller's concern.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ahting/billsplit/constants"
	"github.com/ahting/billsplit/internal/clock"
	"github.com/ahting/billsplit/internal/common"
	"github.com/ahting/billsplit/internal/entity"
	"github.com/ahting/billsplit/internal/inbox"
	"github.com/ahting/billsplit/internal/money"
	"github.com/ahting/billsplit/internal/split"
)

// Config carries the classification vocabulary and identity settings.
type Config struct {
	StatementSubject  string
	BillIndicators    []string
	PaymentIndicators []string
	IDPrefix          string
	CounterpartyRatio float64
}

type Extractor struct {
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger
}

func NewExtractor(cfg Config, clk clock.Clock, logger *zap.Logger) *Extractor {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Extractor{cfg: cfg, clock: clk, logger: logger}
}

var amountRe = regexp.MustCompile(`\$(\d+\.\d{2})`)

// Due-date strategies in priority order. The bare date is the last resort.
var dueDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)due.{0,20}(\d{1,2}/\d{1,2}/\d{4})`),
	regexp.MustCompile(`(?i)(\d{1,2}/\d{1,2}/\d{4}).{0,20}due`),
	regexp.MustCompile(`(?i)by.{0,20}(\d{1,2}/\d{1,2}/\d{4})`),
	regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`),
}

const dueDateLayout = "1/2/2006"

// Extract classifies the message and, if it is a bill statement, parses the
// amount and due date, computes the split, and derives the stable id.
// Non-bills yield common.ErrNotABill; missing fields yield extraction errors.
func (e *Extractor) Extract(msg inbox.Message) (*entity.BillRecord, error) {
	if !e.isBillStatement(msg) {
		return nil, fmt.Errorf("message %s: %w", msg.ID, common.ErrNotABill)
	}

	amount, err := e.extractAmount(msg.Body)
	if err != nil {
		return nil, err
	}
	due, err := e.extractDueDate(msg.Body)
	if err != nil {
		return nil, err
	}

	counterparty, own := split.Split(amount, e.cfg.CounterpartyRatio)
	now := e.clock.Now()

	bill := &entity.BillRecord{
		ID:                  DeriveID(e.cfg.IDPrefix, due, amount),
		EmailID:             msg.ID,
		Amount:              amount,
		DueDate:             due,
		CounterpartyPortion: counterparty,
		OwnPortion:          own,
		EmailBody:           msg.Body,
		Status:              constants.BillStatusProcessed,
		ProcessedAt:         now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	e.logger.Info("extract.bill",
		zap.String("bill_id", bill.ID),
		zap.String("amount", bill.Amount.Dollars()),
		zap.String("due_date", due.Format(dueDateLayout)),
	)
	return bill, nil
}

// isBillStatement applies the classification gate: the subject must carry the
// statement-ready phrase, the body must carry a bill indicator, and none of
// the payment/confirmation indicators may appear. The exclusion set exists
// because autopay receipts from the same biller share most of the bill
// vocabulary.
func (e *Extractor) isBillStatement(msg inbox.Message) bool {
	if !strings.Contains(msg.Subject, e.cfg.StatementSubject) {
		return false
	}
	body := strings.ToLower(msg.Body)
	if body == "" {
		return false
	}
	hasBill := false
	for _, ind := range e.cfg.BillIndicators {
		if strings.Contains(body, strings.ToLower(ind)) {
			hasBill = true
			break
		}
	}
	if !hasBill {
		return false
	}
	for _, ind := range e.cfg.PaymentIndicators {
		if strings.Contains(body, strings.ToLower(ind)) {
			return false
		}
	}
	return true
}

// extractAmount picks the maximum currency token in the body. The grand total
// is typically the largest dollar figure on the statement; this is a
// documented approximation, not something to fix quietly.
func (e *Extractor) extractAmount(body string) (money.Cents, error) {
	matches := amountRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return 0, common.ErrNoAmount
	}
	var largest money.Cents
	for _, m := range matches {
		c, err := money.ParseDollars(m[1])
		if err != nil {
			continue
		}
		if c > largest {
			largest = c
		}
	}
	if largest <= 0 {
		return 0, common.ErrNoAmount
	}
	return largest, nil
}

// extractDueDate tries each pattern in order and takes the first match that
// is a textually valid calendar date.
func (e *Extractor) extractDueDate(body string) (time.Time, error) {
	for _, re := range dueDatePatterns {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			if t, err := time.Parse(dueDateLayout, m[1]); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, common.ErrNoDueDate
}

// DeriveID builds the stable identifier from the due date and amount in
// cents, so reprocessing the same underlying bill is always a no-op.
func DeriveID(prefix string, due time.Time, amount money.Cents) string {
	return fmt.Sprintf("%s_%s_%d",
		prefix,
		strings.ReplaceAll(due.Format(dueDateLayout), "/", "_"),
		int64(amount),
	)
}
