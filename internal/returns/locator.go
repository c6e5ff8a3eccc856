package returns

import (
	"context"
	"log"
	"sort"
	"strings"

	"returndesk/backend/internal/crm"
	"returndesk/backend/internal/domain"
	"returndesk/backend/internal/store"
)

// SearchRefundableTransactions runs the unified search over the local ledger
// and the CRM invoice API. Local results are limited to completed transactions
// inside the local window; the CRM search goes back further and is restricted
// to paid invoices. CRM failures degrade to local-only results, they never
// fail the search.
func (s *Service) SearchRefundableTransactions(ctx context.Context, params domain.SearchParams) ([]domain.Transaction, error) {
	if params.Empty() {
		return nil, store.ErrInvalidRequest
	}

	local, err := s.searchLocal(ctx, params)
	if err != nil {
		return nil, err
	}

	remote := s.searchCRM(ctx, params)

	// Local results win the dedup: a transaction present in both systems is
	// refunded through the ledger, not through the CRM.
	merged := make([]domain.Transaction, 0, len(local)+len(remote))
	seen := make(map[string]bool, len(local)+len(remote))
	for _, tx := range local {
		seen[tx.DedupKey()] = true
		merged = append(merged, tx)
	}
	for _, tx := range remote {
		if seen[tx.DedupKey()] {
			continue
		}
		seen[tx.DedupKey()] = true
		merged = append(merged, tx)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].SortKey() > merged[j].SortKey()
	})
	return merged, nil
}

func (s *Service) searchLocal(ctx context.Context, params domain.SearchParams) ([]domain.Transaction, error) {
	transactions, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().AddDate(0, 0, -s.localWindowDays).Format("2006-01-02")

	matched := make([]domain.Transaction, 0, 16)
	for _, tx := range transactions {
		if tx.Status != domain.TxStatusCompleted {
			continue
		}
		if tx.Date < cutoff {
			continue
		}
		if matchesParams(tx, params) {
			matched = append(matched, tx)
		}
	}
	return matched, nil
}

// searchCRM queries the remote invoice API; any failure is logged and absorbed
// into an empty result set.
func (s *Service) searchCRM(ctx context.Context, params domain.SearchParams) []domain.Transaction {
	if !s.crm.Configured() {
		return nil
	}

	now := s.now()
	query := crm.SearchQuery{
		Status:        "paid",
		InvoiceNumber: firstNonEmpty(params.InvoiceNumber, params.ReceiptNumber),
		CustomerID:    params.CustomerID,
		CustomerName:  params.CustomerName,
		Phone:         params.Phone,
		Email:         params.Email,
		DateFrom:      firstNonEmpty(params.DateFrom, now.AddDate(0, 0, -s.crmWindowDays).Format("2006-01-02")),
		DateTo:        params.DateTo,
	}

	invoices, err := s.crm.SearchInvoices(ctx, query)
	if err != nil {
		log.Printf("[returns] WARN: CRM search degraded to local-only (kind=%s): %v", crm.KindOf(err), err)
		return nil
	}

	transactions := make([]domain.Transaction, 0, len(invoices))
	for _, inv := range invoices {
		transactions = append(transactions, invoiceToTransaction(inv))
	}
	return transactions
}

// invoiceToTransaction lifts a CRM invoice into the unified transaction shape
// with the CRM id prefix and source tag applied.
func invoiceToTransaction(inv crm.Invoice) domain.Transaction {
	items := make([]domain.TransactionItem, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		items = append(items, domain.TransactionItem{
			ID:         line.ProductID,
			Name:       line.Name,
			PriceCents: line.PriceCents,
			Qty:        line.Qty,
		})
	}

	return domain.Transaction{
		ID:            domain.CRMIDPrefix + inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Date:          inv.Date,
		Time:          inv.Time,
		SubtotalCents: inv.AmountCents - inv.TaxCents,
		TaxCents:      inv.TaxCents,
		TotalCents:    inv.AmountCents,
		Items:         items,
		PaymentMethod: inv.PaymentMethod,
		Cashier:       inv.Cashier,
		CustomerID:    inv.CustomerID,
		CustomerName:  inv.CustomerName,
		CustomerPhone: inv.CustomerPhone,
		CustomerEmail: inv.CustomerEmail,
		Status:        domain.TxStatusCompleted,
		Source:        domain.SourceCRM,
		CRMInvoiceID:  inv.ID,
	}
}

func matchesParams(tx domain.Transaction, params domain.SearchParams) bool {
	if params.ReceiptNumber != "" && !containsFold(tx.ID, params.ReceiptNumber) &&
		!containsFold(tx.InvoiceNumber, params.ReceiptNumber) {
		return false
	}
	if params.InvoiceNumber != "" && !containsFold(tx.InvoiceNumber, params.InvoiceNumber) {
		return false
	}
	if params.CustomerID != "" && !strings.EqualFold(tx.CustomerID, params.CustomerID) {
		return false
	}
	if params.CustomerName != "" && !containsFold(tx.CustomerName, params.CustomerName) {
		return false
	}
	if params.Phone != "" && !containsFold(tx.CustomerPhone, params.Phone) {
		return false
	}
	if params.Email != "" && !containsFold(tx.CustomerEmail, params.Email) {
		return false
	}
	if params.DateFrom != "" && tx.Date < params.DateFrom {
		return false
	}
	if params.DateTo != "" && tx.Date > params.DateTo {
		return false
	}
	return true
}

func containsFold(haystack string, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(strings.TrimSpace(needle)))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
