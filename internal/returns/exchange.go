package returns

import (
	"context"
	"fmt"
	"strings"

	"returndesk/backend/internal/crm"
	"returndesk/backend/internal/domain"
	"returndesk/backend/internal/store"
	"returndesk/backend/internal/xid"
)

// CalculateExchangeOptions quotes an exchange before it is confirmed. The
// difference is signed: positive means the customer owes the difference,
// negative means a refund is due. Every referenced original item must exist on
// the transaction or the whole quote fails.
func (s *Service) CalculateExchangeOptions(ctx context.Context, transactionID string, entries []domain.ExchangeEntry) (domain.ExchangeOptions, error) {
	original, err := s.lookupTransaction(ctx, strings.TrimSpace(transactionID))
	if err != nil {
		return domain.ExchangeOptions{}, err
	}

	items, err := resolveExchangeItems(*original, entries)
	if err != nil {
		return domain.ExchangeOptions{}, err
	}

	diff := totalDifference(items)
	opts := domain.ExchangeOptions{
		DifferenceCents: diff,
		RequiresPayment: diff > 0,
	}
	if diff < 0 {
		opts.RefundAmountCents = -diff
	}
	return opts, nil
}

// CreateExchange confirms an exchange: it writes the paired return and
// replacement lines to the system owning the original transaction and appends
// the exchange record to the history.
func (s *Service) CreateExchange(ctx context.Context, req domain.ExchangeRequest) (domain.ExchangeResult, error) {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if req.TransactionID == "" {
		return domain.ExchangeResult{}, fmt.Errorf("%w: transaction id is required", store.ErrInvalidRequest)
	}
	if len(req.Entries) == 0 {
		return domain.ExchangeResult{}, fmt.Errorf("%w: at least one exchange entry is required", store.ErrInvalidRequest)
	}

	original, err := s.lookupTransaction(ctx, req.TransactionID)
	if err != nil {
		return domain.ExchangeResult{}, err
	}

	items, err := resolveExchangeItems(*original, req.Entries)
	if err != nil {
		return domain.ExchangeResult{}, err
	}

	diff := totalDifference(items)
	paymentMethod := "Card"
	if diff < 0 {
		paymentMethod = "Refund"
	}

	cashier := req.Cashier
	if cashier == "" {
		cashier = actorUsername(ctx)
	}

	rev := Reversal{
		Lines:         pairedLines(items),
		TotalCents:    diff,
		PaymentMethod: paymentMethod,
		Status:        domain.TxStatusCompleted,
		Cashier:       cashier,
		Notes:         req.Notes,
	}

	entry, err := s.dispatcher.Dispatch(ctx, *original, rev)
	if err != nil {
		if kind := crm.KindOf(err); kind != "" {
			s.logAudit(ctx, "exchange_failed", "transaction", original.ID,
				fmt.Sprintf("difference=%d,kind=%s", diff, kind))
			return domain.ExchangeResult{Success: false, Error: err.Error()}, nil
		}
		return domain.ExchangeResult{}, err
	}

	exchange := domain.ExchangeTransaction{
		ID:                    xid.NewExchange(),
		OriginalTransactionID: original.ID,
		Items:                 items,
		TotalDifferenceCents:  diff,
		ExchangeDate:          entry.Date,
		ExchangeTime:          entry.Time,
		Cashier:               cashier,
		Notes:                 req.Notes,
		Status:                domain.ExchangeStatusCompleted,
	}
	if err := s.history.Append(ctx, exchange); err != nil {
		// The ledger write already happened; losing the history entry is
		// reportable but must not roll back the exchange.
		s.logAudit(ctx, "exchange_history_write_failed", "exchange", exchange.ID, err.Error())
	}

	s.logAudit(ctx, "exchange_processed", "exchange", exchange.ID,
		fmt.Sprintf("original=%s,difference=%d,entry=%s", original.ID, diff, entry.ID))

	return domain.ExchangeResult{
		Success:    true,
		ExchangeID: exchange.ID,
		Exchange:   &exchange,
	}, nil
}

// resolveExchangeItems validates every entry against the original transaction
// lines and derives the per-pair price difference. Any unknown original item
// fails the whole operation; nothing is partially applied.
func resolveExchangeItems(original domain.Transaction, entries []domain.ExchangeEntry) ([]domain.ExchangeItem, error) {
	byID := make(map[string]domain.TransactionItem, len(original.Items))
	for _, item := range original.Items {
		byID[item.ID] = item
	}

	items := make([]domain.ExchangeItem, 0, len(entries))
	for _, entry := range entries {
		origItem, ok := byID[entry.OriginalItemID]
		if !ok {
			return nil, fmt.Errorf("%w: item %s is not on transaction %s", store.ErrInvalidRequest, entry.OriginalItemID, original.ID)
		}

		qty := entry.OriginalQty
		if qty < 1 {
			qty = origItem.Qty
		}
		if qty < 1 || qty > origItem.Qty {
			return nil, fmt.Errorf("%w: return quantity %d out of range for item %s", store.ErrInvalidRequest, qty, entry.OriginalItemID)
		}

		replacementQty := entry.ReplacementQty
		if replacementQty < 1 {
			replacementQty = qty
		}
		if entry.ReplacementID == "" || entry.ReplacementName == "" || entry.ReplacementPriceCents < 0 {
			return nil, fmt.Errorf("%w: replacement for item %s is incomplete", store.ErrInvalidRequest, entry.OriginalItemID)
		}

		returned := origItem
		returned.Qty = qty
		replacement := domain.TransactionItem{
			ID:         entry.ReplacementID,
			Name:       entry.ReplacementName,
			PriceCents: entry.ReplacementPriceCents,
			Qty:        replacementQty,
			Image:      entry.ReplacementImage,
		}

		items = append(items, domain.ExchangeItem{
			Original:             returned,
			Replacement:          replacement,
			PriceDifferenceCents: replacement.PriceCents*int64(replacement.Qty) - returned.PriceCents*int64(returned.Qty),
		})
	}
	return items, nil
}

func totalDifference(items []domain.ExchangeItem) int64 {
	var diff int64
	for _, item := range items {
		diff += item.PriceDifferenceCents
	}
	return diff
}

// pairedLines renders the exchange as ledger lines: a negative quantity
// "[RETURN]" line for each returned item followed by the positive replacement
// line.
func pairedLines(items []domain.ExchangeItem) []domain.TransactionItem {
	lines := make([]domain.TransactionItem, 0, len(items)*2)
	for _, item := range items {
		lines = append(lines, domain.TransactionItem{
			ID:         item.Original.ID,
			Name:       "[RETURN] " + item.Original.Name,
			PriceCents: item.Original.PriceCents,
			Qty:        -item.Original.Qty,
			Image:      item.Original.Image,
		})
		lines = append(lines, item.Replacement)
	}
	return lines
}
