package returns

import (
	"context"
	"fmt"
	"math"
	"sort"

	"returndesk/backend/internal/domain"
	"returndesk/backend/internal/store"
)

// CalculateReturnRate derives the return rate for the trailing day, week or
// month: returned count and value over sold count and value, both as
// percentages rounded to two decimals. Reversing ledger entries (negative
// totals) are excluded from the sales side.
func (s *Service) CalculateReturnRate(ctx context.Context, period string) (domain.ReturnRateReport, error) {
	days, err := periodDays(period)
	if err != nil {
		return domain.ReturnRateReport{}, err
	}

	now := s.now()
	cutoffDate := now.AddDate(0, 0, -days).Format("2006-01-02")
	cutoffTime := now.AddDate(0, 0, -days)

	transactions, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return domain.ReturnRateReport{}, err
	}

	report := domain.ReturnRateReport{Period: period}
	for _, tx := range transactions {
		if tx.TotalCents <= 0 || tx.Date < cutoffDate {
			continue
		}
		report.SalesCount++
		report.SalesValueCents += tx.TotalCents
	}

	records, err := s.repo.ListReturnRecords(ctx)
	if err != nil {
		return domain.ReturnRateReport{}, err
	}

	reasons := make(map[string]int)
	for _, record := range records {
		if record.CreatedAt.Before(cutoffTime) {
			continue
		}
		report.ReturnCount++
		report.ReturnValueCents += record.ValueCents
		if record.Reason != "" {
			reasons[record.Reason]++
		}
		for _, item := range record.Items {
			if item.Reason != "" {
				reasons[item.Reason]++
			}
		}
	}

	if report.SalesCount > 0 {
		report.CountRatePct = round2(float64(report.ReturnCount) / float64(report.SalesCount) * 100)
	}
	if report.SalesValueCents > 0 {
		report.ValueRatePct = round2(float64(report.ReturnValueCents) / float64(report.SalesValueCents) * 100)
	}
	report.TopReasons = topReasons(reasons, 5)

	return report, nil
}

// GetReturnImpactedStock lists low-stock products whose shortage is linked to
// returns that could not restock, with the returned versus restocked split.
func (s *Service) GetReturnImpactedStock(ctx context.Context) ([]domain.ImpactedStock, error) {
	low, err := s.repo.GetLowStockProducts(ctx)
	if err != nil {
		return nil, err
	}
	if len(low) == 0 {
		return nil, nil
	}

	records, err := s.repo.ListReturnRecords(ctx)
	if err != nil {
		return nil, err
	}

	type tally struct {
		returned  int
		restocked int
		lastAt    string
		lastWhy   string
	}
	tallies := make(map[string]*tally)

	for _, record := range records {
		for _, item := range record.Items {
			key := item.ProductID
			if key == "" {
				key = item.Name
			}
			t := tallies[key]
			if t == nil {
				t = &tally{}
				tallies[key] = t
			}
			t.returned += item.Qty
			if item.Restockable() && record.InventoryUpdated {
				t.restocked += item.Qty
			}
			at := record.CreatedAt.UTC().Format("2006-01-02 15:04:05")
			if at > t.lastAt {
				t.lastAt = at
				t.lastWhy = firstNonEmpty(item.Reason, record.Reason)
			}
		}
	}

	impacted := make([]domain.ImpactedStock, 0, len(low))
	for _, product := range low {
		t := tallies[product.ID]
		if t == nil {
			t = tallies[product.Name]
		}
		if t == nil || t.returned <= t.restocked {
			continue
		}
		impacted = append(impacted, domain.ImpactedStock{
			ProductID:    product.ID,
			Name:         product.Name,
			Stock:        product.Stock,
			ReturnedQty:  t.returned,
			RestockedQty: t.restocked,
			LastReturnAt: t.lastAt,
			LastReason:   t.lastWhy,
		})
	}

	sort.Slice(impacted, func(i, j int) bool {
		return impacted[i].Stock < impacted[j].Stock
	})
	return impacted, nil
}

func periodDays(period string) (int, error) {
	switch period {
	case domain.PeriodDay:
		return 1, nil
	case domain.PeriodWeek:
		return 7, nil
	case domain.PeriodMonth:
		return 30, nil
	default:
		return 0, fmt.Errorf("%w: unknown period %q", store.ErrInvalidRequest, period)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func topReasons(counts map[string]int, limit int) []domain.ReasonFrequency {
	if len(counts) == 0 {
		return nil
	}
	reasons := make([]domain.ReasonFrequency, 0, len(counts))
	for reason, count := range counts {
		reasons = append(reasons, domain.ReasonFrequency{Reason: reason, Count: count})
	}
	sort.Slice(reasons, func(i, j int) bool {
		if reasons[i].Count != reasons[j].Count {
			return reasons[i].Count > reasons[j].Count
		}
		return reasons[i].Reason < reasons[j].Reason
	})
	if len(reasons) > limit {
		reasons = reasons[:limit]
	}
	return reasons
}
