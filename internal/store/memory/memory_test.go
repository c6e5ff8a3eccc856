package memory

import (
	"context"
	"errors"
	"testing"

	"returndesk/backend/internal/domain"
	"returndesk/backend/internal/store"
)

func TestRefundTransactionLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.AddTransaction(ctx, domain.Transaction{
		ID: "T1", TotalCents: 500, SubtotalCents: 500, Status: domain.TxStatusCompleted,
		Items: []domain.TransactionItem{{ID: "I1", Name: "Widget", PriceCents: 500, Qty: 1}},
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	reversing, err := s.RefundTransaction(ctx, "T1", 500)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if reversing.TotalCents != -500 || reversing.Status != domain.TxStatusRefunded {
		t.Fatalf("unexpected reversing entry %+v", reversing)
	}
	if len(reversing.Items) != 1 || reversing.Items[0].Qty != -1 {
		t.Fatalf("reversing entry should negate line quantities, got %+v", reversing.Items)
	}

	original, _ := s.GetTransactionByID(ctx, "T1")
	if original.Status != domain.TxStatusRefunded {
		t.Fatalf("original should flip to refunded, got %s", original.Status)
	}

	if _, err := s.RefundTransaction(ctx, "T1", 500); !errors.Is(err, store.ErrAlreadyDone) {
		t.Fatalf("double refund should report ErrAlreadyDone, got %v", err)
	}
}

func TestRefundTransactionValidation(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.RefundTransaction(ctx, "missing", 100); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := s.AddTransaction(ctx, domain.Transaction{ID: "T1", TotalCents: 500, Status: domain.TxStatusCompleted}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.RefundTransaction(ctx, "T1", 600); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("over-refund should be rejected, got %v", err)
	}
	if _, err := s.RefundTransaction(ctx, "T1", 0); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("zero amount should be rejected, got %v", err)
	}
}

func TestAddTransactionDefaultsAndDuplicates(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.AddTransaction(ctx, domain.Transaction{TotalCents: 100})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if created.ID == "" || created.Date == "" || created.Time == "" {
		t.Fatalf("expected generated defaults, got %+v", created)
	}
	if created.Status != domain.TxStatusCompleted || created.Source != domain.SourceLocal {
		t.Fatalf("unexpected defaults %+v", created)
	}

	if _, err := s.AddTransaction(ctx, domain.Transaction{ID: created.ID}); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("duplicate id should be rejected, got %v", err)
	}
}

func TestUpdateStockModes(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	base, err := s.GetProductByIDOrName(ctx, "P-MUG-01")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	added, err := s.UpdateStock(ctx, "P-MUG-01", 5, domain.StockAdd)
	if err != nil || added.Stock != base.Stock+5 {
		t.Fatalf("add: %v %+v", err, added)
	}
	set, err := s.UpdateStock(ctx, "P-MUG-01", 2, domain.StockSet)
	if err != nil || set.Stock != 2 {
		t.Fatalf("set: %v %+v", err, set)
	}
	sub, err := s.UpdateStock(ctx, "P-MUG-01", 10, domain.StockSubtract)
	if err != nil || sub.Stock != 0 {
		t.Fatalf("subtract should clamp at zero: %v %+v", err, sub)
	}

	if _, err := s.UpdateStock(ctx, "P-MUG-01", 1, "divide"); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("unknown mode should be rejected, got %v", err)
	}
	if _, err := s.UpdateStock(ctx, "missing", 1, domain.StockAdd); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing product should report ErrNotFound, got %v", err)
	}
}

func TestGetProductByIDOrName(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	byID, err := s.GetProductByIDOrName(ctx, "P-MUG-01")
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	byName, err := s.GetProductByIDOrName(ctx, "ceramic mug 350ml")
	if err != nil {
		t.Fatalf("by name: %v", err)
	}
	if byID.ID != byName.ID {
		t.Fatalf("id and name lookup should agree: %s vs %s", byID.ID, byName.ID)
	}
}

func TestGetLowStockProducts(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.UpdateStock(ctx, "P-MUG-01", 1, domain.StockSet); err != nil {
		t.Fatalf("set: %v", err)
	}

	low, err := s.GetLowStockProducts(ctx)
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	var found bool
	for _, p := range low {
		if p.ID == "P-MUG-01" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected P-MUG-01 in low stock, got %+v", low)
	}
}

func TestReturnRecordInventoryFlag(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreateReturnRecord(ctx, domain.ReturnRecord{
		TransactionID: "T1",
		Items:         []domain.ReturnItem{{ProductID: "P1", Qty: 1, Condition: domain.ConditionNew}},
		ValueCents:    100,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.SetReturnInventoryUpdated(ctx, created.ID, true); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	records, _ := s.ListReturnRecords(ctx)
	if len(records) != 1 || !records[0].InventoryUpdated {
		t.Fatalf("expected flag persisted, got %+v", records)
	}

	if err := s.SetReturnInventoryUpdated(ctx, "missing", true); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditLogsNewestFirstWithLimit(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.CreateAuditLog(ctx, domain.AuditLog{Action: "a", EntityID: string(rune('0' + i))}); err != nil {
			t.Fatalf("create audit: %v", err)
		}
	}

	logs, err := s.ListAuditLogs(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected limit applied, got %d", len(logs))
	}
}
