package service

import (
	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/billbook/internal/inventory/domain"
)

// Validate classifies every request against snapshot in one pass. Lines on
// the same product are judged by their combined quantity.
func Validate(requests []domain.Request, snapshot domain.Snapshot) domain.Report {
	demand := Demand(requests)

	report := domain.Report{Lines: make([]domain.LineCheck, 0, len(requests))}
	for i, req := range requests {
		requested := demand[req.ProductID]
		stock := snapshot[req.ProductID]
		level, shortfall := classify(requested, stock)
		report.Lines = append(report.Lines, domain.LineCheck{
			Line:      i,
			ProductID: req.ProductID,
			Requested: requested,
			Available: stock.Available,
			Level:     level,
			Shortfall: shortfall,
		})
	}
	return report
}

// Demand totals requested quantity per product.
func Demand(requests []domain.Request) map[snowflake.ID]int64 {
	grouped := lo.GroupBy(requests, func(r domain.Request) snowflake.ID { return r.ProductID })
	return lo.MapValues(grouped, func(rs []domain.Request, _ snowflake.ID) int64 {
		return lo.SumBy(rs, func(r domain.Request) int64 { return r.Quantity })
	})
}

func classify(requested int64, stock domain.Stock) (domain.Level, int64) {
	available := max(stock.Available, 0)
	switch {
	case available == 0 || requested > available:
		return domain.LevelBlocked, max(requested-available, 0)
	case available < stock.LowThreshold:
		return domain.LevelLow, 0
	default:
		return domain.LevelOK, 0
	}
}
