package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"returndesk/backend/internal/crm"
	"returndesk/backend/internal/domain"
	"returndesk/backend/internal/store"
)

// Reversal describes the ledger-facing shape of a refund or exchange: the
// signed lines, the signed total and how the resulting entry is labelled.
type Reversal struct {
	Lines         []domain.TransactionItem
	TotalCents    int64 // signed; negative for pure refunds
	TaxCents      int64 // signed, same sign as TotalCents
	PaymentMethod string
	Status        string
	Cashier       string
	Notes         string
	// RefundOriginal marks the original ledger transaction refunded via the
	// ledger's own refund routine instead of appending a standalone entry.
	// Only meaningful for local originals.
	RefundOriginal bool
}

// ReversalDispatcher routes a reversal to the system that owns the original
// transaction. Local originals mutate the ledger directly; CRM originals
// submit a reversing invoice first and mirror a compensating local entry only
// after the remote call succeeds.
type ReversalDispatcher struct {
	repo store.Repository
	crm  CRMGateway
}

func NewReversalDispatcher(repo store.Repository, gateway CRMGateway) *ReversalDispatcher {
	return &ReversalDispatcher{repo: repo, crm: gateway}
}

func (d *ReversalDispatcher) Dispatch(ctx context.Context, original domain.Transaction, rev Reversal) (*domain.Transaction, error) {
	switch original.Source {
	case domain.SourceCRM:
		return d.dispatchCRM(ctx, original, rev)
	case domain.SourceLocal, "":
		return d.dispatchLocal(ctx, original, rev)
	default:
		return nil, fmt.Errorf("%w: unknown transaction source %q", store.ErrInvalidRequest, original.Source)
	}
}

func (d *ReversalDispatcher) dispatchLocal(ctx context.Context, original domain.Transaction, rev Reversal) (*domain.Transaction, error) {
	if rev.RefundOriginal {
		return d.repo.RefundTransaction(ctx, original.ID, -rev.TotalCents)
	}

	now := time.Now().UTC()
	entry := domain.Transaction{
		Date:          now.Format("2006-01-02"),
		Time:          now.Format("15:04:05"),
		SubtotalCents: rev.TotalCents - rev.TaxCents,
		TaxCents:      rev.TaxCents,
		TotalCents:    rev.TotalCents,
		Items:         rev.Lines,
		PaymentMethod: rev.PaymentMethod,
		Cashier:       rev.Cashier,
		CustomerID:    original.CustomerID,
		CustomerName:  original.CustomerName,
		Status:        rev.Status,
		Source:        domain.SourceLocal,
	}
	return d.repo.AddTransaction(ctx, entry)
}

func (d *ReversalDispatcher) dispatchCRM(ctx context.Context, original domain.Transaction, rev Reversal) (*domain.Transaction, error) {
	now := time.Now().UTC()

	lines := make([]crm.InvoiceLine, 0, len(rev.Lines))
	for _, item := range rev.Lines {
		lines = append(lines, crm.InvoiceLine{
			ProductID:  item.ID,
			Name:       item.Name,
			PriceCents: item.PriceCents,
			Qty:        item.Qty,
			TotalCents: item.PriceCents * int64(item.Qty),
		})
	}

	created, err := d.crm.CreateInvoice(ctx, crm.Invoice{
		InvoiceNumber: reversalInvoiceNumber(original),
		Date:          now.Format("2006-01-02"),
		Time:          now.Format("15:04:05"),
		AmountCents:   rev.TotalCents,
		TaxCents:      rev.TaxCents,
		Status:        "refund",
		CustomerID:    original.CustomerID,
		CustomerName:  original.CustomerName,
		PaymentMethod: rev.PaymentMethod,
		Cashier:       rev.Cashier,
		Notes:         rev.Notes,
		Lines:         lines,
	})
	if err != nil {
		return nil, err
	}

	// The compensating entry keeps local reporting consistent with the books
	// the CRM now holds. It is only written after the remote reversal landed.
	mirror := domain.Transaction{
		InvoiceNumber: reversalInvoiceNumber(original),
		Date:          now.Format("2006-01-02"),
		Time:          now.Format("15:04:05"),
		SubtotalCents: rev.TotalCents - rev.TaxCents,
		TaxCents:      rev.TaxCents,
		TotalCents:    rev.TotalCents,
		Items:         rev.Lines,
		PaymentMethod: rev.PaymentMethod,
		Cashier:       "CRM Refund",
		CustomerID:    original.CustomerID,
		CustomerName:  original.CustomerName,
		Status:        rev.Status,
		Source:        domain.SourceLocal,
		CRMInvoiceID:  created.ID,
	}
	return d.repo.AddTransaction(ctx, mirror)
}

// reversalInvoiceNumber derives the reversing invoice number from the
// original: REV-<original invoice number>, falling back to the bare CRM id.
func reversalInvoiceNumber(original domain.Transaction) string {
	if original.InvoiceNumber != "" {
		return "REV-" + original.InvoiceNumber
	}
	return "REV-" + strings.TrimPrefix(original.ID, domain.CRMIDPrefix)
}
