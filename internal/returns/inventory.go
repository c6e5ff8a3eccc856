package returns

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"returndesk/backend/internal/domain"
	"returndesk/backend/internal/store"
)

// RecordReturn persists a completed return. Inventory is not touched here;
// UpdateInventoryForReturn applies the condition-gated restock as a separate,
// revertible step.
func (s *Service) RecordReturn(ctx context.Context, record domain.ReturnRecord) (*domain.ReturnRecord, error) {
	record.TransactionID = strings.TrimSpace(record.TransactionID)
	if record.TransactionID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", store.ErrInvalidRequest)
	}
	if len(record.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one return item is required", store.ErrInvalidRequest)
	}
	for _, item := range record.Items {
		if item.Qty < 1 {
			return nil, fmt.Errorf("%w: return quantity %d for %s", store.ErrInvalidRequest, item.Qty, item.Name)
		}
		switch item.Condition {
		case domain.ConditionNew, domain.ConditionOpened, domain.ConditionDamaged, domain.ConditionDefective:
		default:
			return nil, fmt.Errorf("%w: unknown condition %q", store.ErrInvalidRequest, item.Condition)
		}
	}

	if record.ValueCents == 0 {
		for _, item := range record.Items {
			record.ValueCents += item.PriceCents * int64(item.Qty)
		}
	}
	record.InventoryUpdated = false

	created, err := s.repo.CreateReturnRecord(ctx, record)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "return_recorded", "return", created.ID,
		fmt.Sprintf("transaction=%s,items=%d,value=%d", created.TransactionID, len(created.Items), created.ValueCents))
	return created, nil
}

// UpdateInventoryForReturn restocks the restockable items of a return. Items
// in new or opened condition go back on the shelf; damaged and defective items
// are skipped. Each per-item decision lands in the audit trail.
func (s *Service) UpdateInventoryForReturn(ctx context.Context, returnID string) (*domain.ReturnRecord, error) {
	record, err := s.findReturn(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if record.InventoryUpdated {
		return nil, store.ErrAlreadyDone
	}

	for _, item := range record.Items {
		if !item.Restockable() {
			s.logAudit(ctx, "restock_skipped", "product", item.ProductID,
				fmt.Sprintf("return=%s,qty=%d,condition=%s", record.ID, item.Qty, item.Condition))
			continue
		}

		product, err := s.resolveProduct(ctx, item)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.logAudit(ctx, "restock_skipped", "product", item.ProductID,
					fmt.Sprintf("return=%s,qty=%d,reason=product_not_found", record.ID, item.Qty))
				continue
			}
			return nil, err
		}

		if _, err := s.repo.UpdateStock(ctx, product.ID, item.Qty, domain.StockAdd); err != nil {
			return nil, err
		}
		s.logAudit(ctx, "restock_applied", "product", product.ID,
			fmt.Sprintf("return=%s,qty=%d,condition=%s", record.ID, item.Qty, item.Condition))
	}

	if err := s.repo.SetReturnInventoryUpdated(ctx, record.ID, true); err != nil {
		return nil, err
	}
	record.InventoryUpdated = true
	return record, nil
}

// RevertInventoryUpdate undoes a prior restock so that an applied-then-reverted
// return nets out to no stock change. Non-restockable items were never added
// and are not subtracted.
func (s *Service) RevertInventoryUpdate(ctx context.Context, returnID string) (*domain.ReturnRecord, error) {
	record, err := s.findReturn(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if !record.InventoryUpdated {
		return nil, store.ErrAlreadyDone
	}

	for _, item := range record.Items {
		if !item.Restockable() {
			continue
		}
		product, err := s.resolveProduct(ctx, item)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Printf("[returns] WARN: cannot revert restock for missing product %s (return %s)", item.ProductID, record.ID)
				continue
			}
			return nil, err
		}
		if _, err := s.repo.UpdateStock(ctx, product.ID, item.Qty, domain.StockSubtract); err != nil {
			return nil, err
		}
		s.logAudit(ctx, "restock_reverted", "product", product.ID,
			fmt.Sprintf("return=%s,qty=%d", record.ID, item.Qty))
	}

	if err := s.repo.SetReturnInventoryUpdated(ctx, record.ID, false); err != nil {
		return nil, err
	}
	record.InventoryUpdated = false
	return record, nil
}

func (s *Service) findReturn(ctx context.Context, returnID string) (*domain.ReturnRecord, error) {
	returnID = strings.TrimSpace(returnID)
	if returnID == "" {
		return nil, fmt.Errorf("%w: return id is required", store.ErrInvalidRequest)
	}

	records, err := s.repo.ListReturnRecords(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == returnID {
			return &records[i], nil
		}
	}
	return nil, store.ErrNotFound
}

// resolveProduct matches a return item to inventory by product id, falling
// back to the display name when only that was captured at the register.
func (s *Service) resolveProduct(ctx context.Context, item domain.ReturnItem) (*domain.Product, error) {
	if item.ProductID != "" {
		product, err := s.repo.GetProductByIDOrName(ctx, item.ProductID)
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if item.Name != "" {
		return s.repo.GetProductByIDOrName(ctx, item.Name)
	}
	return nil, store.ErrNotFound
}
