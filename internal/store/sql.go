package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ahting/billsplit/constants"
	"github.com/ahting/billsplit/internal/common"
	"github.com/ahting/billsplit/internal/entity"
	"github.com/ahting/billsplit/internal/money"
)

const (
	dateFormat = "2006-01-02"
	tsFormat   = time.RFC3339
)

// SQLStore implements BillStore over database/sql. Two drivers are supported:
// modernc sqlite (default, also used by tests) and Postgres through the pgx
// stdlib adapter.
type SQLStore struct {
	db       *sql.DB
	postgres bool
	logger   *zap.Logger
}

// Open connects, pings, and ensures the schema exists.
func Open(ctx context.Context, cfg common.StoreConfig, logger *zap.Logger) (*SQLStore, error) {
	driver := "sqlite"
	if cfg.Driver == "postgres" {
		driver = "pgx"
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, common.NewAppError("STORE_ERROR", "open database", err)
	}
	if driver == "sqlite" {
		// sqlite serializes writers anyway, and a single pooled connection
		// keeps ":memory:" databases stable across statements.
		db.SetMaxOpenConns(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, common.NewAppError("STORE_ERROR", "ping database", err)
	}

	s := &SQLStore{db: db, postgres: cfg.Driver == "postgres", logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bills (
			id              TEXT PRIMARY KEY,
			email_id        TEXT NOT NULL,
			amount_cents    BIGINT NOT NULL,
			due_date        TEXT NOT NULL,
			roommate_cents  BIGINT NOT NULL,
			my_cents        BIGINT NOT NULL,
			email_body      TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL,
			processed_at    TEXT NOT NULL,
			requested_at    TEXT,
			paid_at         TEXT,
			payment_cents   BIGINT,
			payer_name      TEXT NOT NULL DEFAULT '',
			confirmation_id TEXT NOT NULL DEFAULT '',
			payment_note    TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ix_bills_status ON bills (status)`,
		`CREATE TABLE IF NOT EXISTS processing_log (
			id        TEXT PRIMARY KEY,
			bill_id   TEXT NOT NULL,
			ts        TEXT NOT NULL,
			action    TEXT NOT NULL,
			details   TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS ix_processing_log_bill ON processing_log (bill_id, ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return common.NewAppError("STORE_ERROR", "ensure schema", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(q string) string {
	if !s.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *SQLStore) Submit(ctx context.Context, bill *entity.BillRecord) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO bills (id, email_id, amount_cents, due_date, roommate_cents, my_cents,
		                    email_body, status, processed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`),
		bill.ID,
		bill.EmailID,
		int64(bill.Amount),
		bill.DueDate.Format(dateFormat),
		int64(bill.CounterpartyPortion),
		int64(bill.OwnPortion),
		bill.EmailBody,
		string(bill.Status),
		bill.ProcessedAt.UTC().Format(tsFormat),
		bill.ProcessedAt.UTC().Format(tsFormat),
		bill.ProcessedAt.UTC().Format(tsFormat),
	)
	if err != nil {
		return common.NewAppError("STORE_ERROR", "submit bill", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.NewAppError("STORE_ERROR", "submit bill", err)
	}
	if n == 0 {
		return fmt.Errorf("bill %s: %w", bill.ID, common.ErrDuplicateBill)
	}
	s.logger.Info("store.bill_created", zap.String("bill_id", bill.ID))
	return nil
}

const billColumns = `id, email_id, amount_cents, due_date, roommate_cents, my_cents,
	email_body, status, processed_at, requested_at, paid_at, payment_cents,
	payer_name, confirmation_id, payment_note, created_at, updated_at`

func (s *SQLStore) Fetch(ctx context.Context, id string) (*entity.BillRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+billColumns+` FROM bills WHERE id = ?`), id)
	bill, err := scanBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.NewAppError("STORE_ERROR", "fetch bill", err)
	}
	return bill, nil
}

func (s *SQLStore) ListOpen(ctx context.Context) ([]*entity.BillRecord, error) {
	return s.list(ctx, s.rebind(
		`SELECT `+billColumns+` FROM bills WHERE status IN (?, ?) ORDER BY due_date ASC, id ASC`),
		string(constants.BillStatusProcessed), string(constants.BillStatusRequested))
}

func (s *SQLStore) ListAll(ctx context.Context) ([]*entity.BillRecord, error) {
	return s.list(ctx, `SELECT `+billColumns+` FROM bills ORDER BY due_date DESC, id ASC`)
}

func (s *SQLStore) list(ctx context.Context, query string, args ...any) ([]*entity.BillRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.NewAppError("STORE_ERROR", "list bills", err)
	}
	defer rows.Close()

	var bills []*entity.BillRecord
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, common.NewAppError("STORE_ERROR", "scan bill", err)
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError("STORE_ERROR", "list bills", err)
	}
	return bills, nil
}

func (s *SQLStore) MarkRequested(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE bills SET status = ?, requested_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`),
		string(constants.BillStatusRequested),
		at.UTC().Format(tsFormat),
		at.UTC().Format(tsFormat),
		id,
		string(constants.BillStatusProcessed),
	)
	if err != nil {
		return false, common.NewAppError("STORE_ERROR", "mark requested", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, common.NewAppError("STORE_ERROR", "mark requested", err)
	}
	return n > 0, nil
}

func (s *SQLStore) MarkPaid(ctx context.Context, id string, ev *entity.PaymentEvent, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE bills SET status = ?, paid_at = ?, payment_cents = ?, payer_name = ?,
		                  confirmation_id = ?, payment_note = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`),
		string(constants.BillStatusPaid),
		at.UTC().Format(tsFormat),
		int64(ev.Amount),
		ev.PayerName,
		ev.ConfirmationID,
		ev.Note,
		at.UTC().Format(tsFormat),
		id,
		string(constants.BillStatusProcessed),
		string(constants.BillStatusRequested),
	)
	if err != nil {
		return false, common.NewAppError("STORE_ERROR", "mark paid", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, common.NewAppError("STORE_ERROR", "mark paid", err)
	}
	return n > 0, nil
}

func (s *SQLStore) AppendLog(ctx context.Context, e *entity.ProcessingLogEntry) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO processing_log (id, bill_id, ts, action, details) VALUES (?, ?, ?, ?, ?)`),
		e.ID.String(),
		e.BillID,
		e.Timestamp.UTC().Format(tsFormat),
		e.Action,
		e.Details,
	)
	if err != nil {
		return common.NewAppError("STORE_ERROR", "append log", err)
	}
	return nil
}

func (s *SQLStore) ListLog(ctx context.Context, billID string) ([]*entity.ProcessingLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, bill_id, ts, action, details FROM processing_log WHERE bill_id = ? ORDER BY ts ASC`), billID)
	if err != nil {
		return nil, common.NewAppError("STORE_ERROR", "list log", err)
	}
	defer rows.Close()

	var entries []*entity.ProcessingLogEntry
	for rows.Next() {
		var (
			e     entity.ProcessingLogEntry
			idRaw string
			tsRaw string
		)
		if err := rows.Scan(&idRaw, &e.BillID, &tsRaw, &e.Action, &e.Details); err != nil {
			return nil, common.NewAppError("STORE_ERROR", "scan log", err)
		}
		if e.ID, err = uuid.Parse(idRaw); err != nil {
			return nil, common.NewAppError("STORE_ERROR", "scan log id", err)
		}
		if e.Timestamp, err = time.Parse(tsFormat, tsRaw); err != nil {
			return nil, common.NewAppError("STORE_ERROR", "scan log timestamp", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError("STORE_ERROR", "list log", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(r rowScanner) (*entity.BillRecord, error) {
	var (
		b            entity.BillRecord
		amount       int64
		roommate     int64
		mine         int64
		status       string
		dueRaw       string
		processedRaw string
		requestedRaw sql.NullString
		paidRaw      sql.NullString
		paymentCents sql.NullInt64
		createdRaw   string
		updatedRaw   string
	)
	err := r.Scan(
		&b.ID, &b.EmailID, &amount, &dueRaw, &roommate, &mine,
		&b.EmailBody, &status, &processedRaw, &requestedRaw, &paidRaw, &paymentCents,
		&b.PayerName, &b.ConfirmationID, &b.PaymentNote, &createdRaw, &updatedRaw,
	)
	if err != nil {
		return nil, err
	}
	b.Amount = money.Cents(amount)
	b.CounterpartyPortion = money.Cents(roommate)
	b.OwnPortion = money.Cents(mine)
	b.Status = constants.BillStatus(status)
	if b.DueDate, err = time.Parse(dateFormat, dueRaw); err != nil {
		return nil, fmt.Errorf("bill %s due_date: %w", b.ID, err)
	}
	if b.ProcessedAt, err = time.Parse(tsFormat, processedRaw); err != nil {
		return nil, fmt.Errorf("bill %s processed_at: %w", b.ID, err)
	}
	if b.CreatedAt, err = time.Parse(tsFormat, createdRaw); err != nil {
		return nil, fmt.Errorf("bill %s created_at: %w", b.ID, err)
	}
	if b.UpdatedAt, err = time.Parse(tsFormat, updatedRaw); err != nil {
		return nil, fmt.Errorf("bill %s updated_at: %w", b.ID, err)
	}
	if requestedRaw.Valid {
		t, err := time.Parse(tsFormat, requestedRaw.String)
		if err != nil {
			return nil, fmt.Errorf("bill %s requested_at: %w", b.ID, err)
		}
		b.RequestedAt = &t
	}
	if paidRaw.Valid {
		t, err := time.Parse(tsFormat, paidRaw.String)
		if err != nil {
			return nil, fmt.Errorf("bill %s paid_at: %w", b.ID, err)
		}
		b.PaidAt = &t
	}
	if paymentCents.Valid {
		c := money.Cents(paymentCents.Int64)
		b.PaymentAmount = &c
	}
	return &b, nil
}
