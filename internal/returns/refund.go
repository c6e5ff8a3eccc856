package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"returndesk/backend/internal/crm"
	"returndesk/backend/internal/domain"
	"returndesk/backend/internal/store"
	"returndesk/backend/internal/xid"
)

// ProcessRefund reverses a located transaction. Local transactions go through
// the ledger's own refund routine and never touch the CRM; CRM transactions
// submit a reversing invoice and mirror exactly one compensating local entry
// on success, none on failure.
//
// Repeated submissions without an idempotency key each produce their own
// reversal. Callers that cannot guarantee single delivery must send a key.
func (s *Service) ProcessRefund(ctx context.Context, req domain.RefundRequest) (domain.RefundResult, error) {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if req.TransactionID == "" {
		return domain.RefundResult{}, fmt.Errorf("%w: transaction id is required", store.ErrInvalidRequest)
	}

	if req.IdempotencyKey != "" {
		if prior, replayed := s.claimRefundKey(req.IdempotencyKey); replayed {
			prior.Duplicate = true
			return prior, nil
		}
		defer func() { s.releaseRefundKey(req.IdempotencyKey) }()
	}

	original, err := s.lookupTransaction(ctx, req.TransactionID)
	if err != nil {
		return domain.RefundResult{}, err
	}

	amount := req.AmountCents
	if amount == 0 {
		amount = original.TotalCents
	}
	if amount < 0 || amount > original.TotalCents {
		return domain.RefundResult{}, fmt.Errorf("%w: refund amount %d out of range", store.ErrInvalidRequest, amount)
	}

	tax := original.TaxCents
	if original.TotalCents != 0 && amount != original.TotalCents {
		tax = original.TaxCents * amount / original.TotalCents
	}

	rev := Reversal{
		Lines:          negateLines(original.Items),
		TotalCents:     -amount,
		TaxCents:       -tax,
		PaymentMethod:  "Refund",
		Status:         domain.TxStatusRefunded,
		Cashier:        actorUsername(ctx),
		Notes:          req.Reason,
		RefundOriginal: true,
	}

	entry, err := s.dispatcher.Dispatch(ctx, *original, rev)
	if err != nil {
		if kind := crm.KindOf(err); kind != "" {
			s.logAudit(ctx, "refund_failed", "transaction", original.ID,
				fmt.Sprintf("amount=%d,kind=%s", amount, kind))
			return domain.RefundResult{Success: false, Error: err.Error()}, nil
		}
		return domain.RefundResult{}, err
	}

	result := domain.RefundResult{
		Success:  true,
		RefundID: xid.NewRefund(),
	}
	if req.IdempotencyKey != "" {
		s.recordRefund(req.IdempotencyKey, result)
	}

	s.logAudit(ctx, "refund_processed", "transaction", original.ID,
		fmt.Sprintf("refund_id=%s,amount=%d,entry=%s,reason=%s", result.RefundID, amount, entry.ID, req.Reason))
	return result, nil
}

// lookupTransaction resolves an id against the ledger first, then against the
// CRM for ids carrying the CRM prefix.
func (s *Service) lookupTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := s.repo.GetTransactionByID(ctx, id)
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if !strings.HasPrefix(id, domain.CRMIDPrefix) {
		return nil, store.ErrNotFound
	}

	crmID := strings.TrimPrefix(id, domain.CRMIDPrefix)
	invoices, err := s.crm.SearchInvoices(ctx, crm.SearchQuery{Status: "paid", InvoiceNumber: crmID})
	if err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		if inv.ID == crmID || inv.InvoiceNumber == crmID {
			tx := invoiceToTransaction(inv)
			return &tx, nil
		}
	}
	return nil, store.ErrNotFound
}

// claimRefundKey returns the recorded result for a key, or marks the key as
// in flight. A submission racing an in-flight one with the same key blocks
// until that one finishes, so a key dispatches at most one reversal.
func (s *Service) claimRefundKey(key string) (domain.RefundResult, bool) {
	for {
		s.mu.Lock()
		if result, ok := s.refundResults[key]; ok {
			s.mu.Unlock()
			return result, true
		}
		pending, ok := s.refundInFlight[key]
		if !ok {
			s.refundInFlight[key] = make(chan struct{})
			s.mu.Unlock()
			return domain.RefundResult{}, false
		}
		s.mu.Unlock()
		<-pending
	}
}

func (s *Service) releaseRefundKey(key string) {
	s.mu.Lock()
	pending := s.refundInFlight[key]
	delete(s.refundInFlight, key)
	s.mu.Unlock()
	close(pending)
}

func (s *Service) recordRefund(key string, result domain.RefundResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refundResults[key] = result
}

func negateLines(items []domain.TransactionItem) []domain.TransactionItem {
	negated := make([]domain.TransactionItem, len(items))
	for i, item := range items {
		negated[i] = item
		negated[i].Qty = -item.Qty
	}
	return negated
}

func actorUsername(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return "system"
}
