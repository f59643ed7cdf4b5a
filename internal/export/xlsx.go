// Package export produces XLSX workbooks of bill history for record keeping.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ahting/billsplit/internal/store"
)

// Service is a tiny façade over the bill store that produces XLSX bytes.
type Service struct {
	bills  store.BillStore
	logger *zap.Logger
}

func NewService(bills store.BillStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{bills: bills, logger: logger}
}

// ExportBillsXLSX returns an XLSX workbook (as bytes) of the full bill
// history, newest due date first.
func (s *Service) ExportBillsXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	recs, err := s.bills.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Bills"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		_, err := f.NewSheet(sheet)
		if err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Bill ID",
		"Due Date",
		"Total Amount",
		"Roommate Share",
		"My Share",
		"Status",
		"Processed",
		"Requested",
		"Paid",
		"Payment Amount",
		"Payer",
		"Confirmation ID",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.ID)
		write(2, r.DueDate.Format("2006-01-02"))
		write(3, r.Amount.Dollars())
		write(4, r.CounterpartyPortion.Dollars())
		write(5, r.OwnPortion.Dollars())
		write(6, string(r.Status))
		write(7, formatTime(&r.ProcessedAt))
		write(8, formatTime(r.RequestedAt))
		write(9, formatTime(r.PaidAt))
		if r.PaymentAmount != nil {
			write(10, r.PaymentAmount.Dollars())
		} else {
			write(10, "")
		}
		write(11, r.PayerName)
		write(12, r.ConfirmationID)

		row++
	}

	// Widen the columns operators actually squint at
	_ = f.SetColWidth(sheet, "A", "A", 24) // bill id
	_ = f.SetColWidth(sheet, "B", "B", 12) // due date
	_ = f.SetColWidth(sheet, "C", "E", 14) // amounts
	_ = f.SetColWidth(sheet, "F", "F", 12) // status
	_ = f.SetColWidth(sheet, "G", "I", 20) // timestamps
	_ = f.SetColWidth(sheet, "J", "J", 14) // payment amount
	_ = f.SetColWidth(sheet, "K", "K", 20) // payer
	_ = f.SetColWidth(sheet, "L", "L", 22) // confirmation id

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		zap.Int("rows", len(recs)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return buf.Bytes(), nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}

