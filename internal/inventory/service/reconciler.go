package service

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/inventory/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ForCreate takes every requested quantity out of stock.
func ForCreate(items []domain.Request) []domain.Delta {
	return net(nil, items)
}

// ForDelete returns every quantity the invoice held.
func ForDelete(items []domain.Request) []domain.Delta {
	return net(items, nil)
}

// ForUpdate nets old against next per product: delta = old - next. Products
// dropped from the invoice come back in full and new ones are taken in full.
func ForUpdate(old, next []domain.Request) []domain.Delta {
	return net(old, next)
}

func net(restore, take []domain.Request) []domain.Delta {
	totals := make(map[snowflake.ID]int64)
	for _, r := range restore {
		totals[r.ProductID] += r.Quantity
	}
	for _, r := range take {
		totals[r.ProductID] -= r.Quantity
	}

	deltas := make([]domain.Delta, 0, len(totals))
	for id, qty := range totals {
		if qty == 0 {
			continue
		}
		deltas = append(deltas, domain.Delta{ProductID: id, Quantity: qty})
	}
	sortDeltas(deltas)
	return deltas
}

// Rows are always touched in product id order so concurrent invoices lock
// products in the same sequence.
func sortDeltas(deltas []domain.Delta) {
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].ProductID < deltas[j].ProductID })
}

func (s *Service) Apply(ctx context.Context, db *gorm.DB, orgID snowflake.ID, deltas []domain.Delta) error {
	ordered := append([]domain.Delta(nil), deltas...)
	sortDeltas(ordered)

	var shortages []domain.Shortage
	for _, delta := range ordered {
		switch {
		case delta.Quantity < 0:
			ok, err := s.repo.DecrementStock(ctx, db, orgID, delta.ProductID, -delta.Quantity)
			if err != nil {
				return err
			}
			if ok {
				continue
			}
			levels, err := s.repo.StockSnapshot(ctx, db, orgID, []snowflake.ID{delta.ProductID}, false)
			if err != nil {
				return err
			}
			level, exists := levels[delta.ProductID]
			if !exists {
				return &domain.MissingProductError{ProductID: delta.ProductID, Delta: delta.Quantity}
			}
			shortages = append(shortages, domain.Shortage{
				ProductID: delta.ProductID,
				Requested: -delta.Quantity,
				Available: level.StockQuantity,
			})
		case delta.Quantity > 0:
			ok, err := s.repo.IncrementStock(ctx, db, orgID, delta.ProductID, delta.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return &domain.MissingProductError{ProductID: delta.ProductID, Delta: delta.Quantity}
			}
		}
	}

	if len(shortages) > 0 {
		return &domain.InsufficientStockError{Shortages: shortages}
	}

	s.log.Debug("stock deltas applied",
		zap.String("org_id", orgID.String()),
		zap.Int("products", len(ordered)),
	)
	return nil
}
