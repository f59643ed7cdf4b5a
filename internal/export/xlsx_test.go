package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ahting/billsplit/constants"
	"github.com/ahting/billsplit/internal/common"
	"github.com/ahting/billsplit/internal/entity"
	"github.com/ahting/billsplit/internal/store"
)

func TestExportBillsXLSX(t *testing.T) {
	ctx := context.Background()
	bills, err := store.Open(ctx, common.StoreConfig{Driver: "sqlite", DSN: ":memory:"}, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer bills.Close()

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	bill := &entity.BillRecord{
		ID:                  "pge_3_15_2025_28815",
		EmailID:             "email-1",
		Amount:              28815,
		DueDate:             time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		CounterpartyPortion: 9605,
		OwnPortion:          19210,
		Status:              constants.BillStatusProcessed,
		ProcessedAt:         now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := bills.Submit(ctx, bill); err != nil {
		t.Fatal(err)
	}

	data, err := NewService(bills, zap.NewNop()).ExportBillsXLSX(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Bills")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("sheet has %d rows, want header plus one bill", len(rows))
	}
	if rows[0][0] != "Bill ID" || rows[0][2] != "Total Amount" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != "pge_3_15_2025_28815" {
		t.Errorf("bill id cell = %q", rows[1][0])
	}
	if rows[1][2] != "288.15" {
		t.Errorf("amount cell = %q", rows[1][2])
	}
	if rows[1][3] != "96.05" || rows[1][4] != "192.10" {
		t.Errorf("share cells = %q / %q", rows[1][3], rows[1][4])
	}
}

func TestExportEmptyHistory(t *testing.T) {
	ctx := context.Background()
	bills, err := store.Open(ctx, common.StoreConfig{Driver: "sqlite", DSN: ":memory:"}, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer bills.Close()

	data, err := NewService(bills, zap.NewNop()).ExportBillsXLSX(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty workbook bytes")
	}
}
