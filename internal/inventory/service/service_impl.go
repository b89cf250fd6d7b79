package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/billbook/internal/inventory/domain"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo productdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo productdomain.Repository
}

func New(p Params) domain.Service {
	return NewService(p)
}

// NewService returns the concrete type for callers that want the pure helpers
// alongside the store-backed operations.
func NewService(p Params) *Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("inventory.service"),
		repo: p.Repo,
	}
}

func (s *Service) Snapshot(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID, lock bool) (domain.Snapshot, error) {
	levels, err := s.repo.StockSnapshot(ctx, db, orgID, lo.Uniq(ids), lock)
	if err != nil {
		return nil, err
	}
	return SnapshotOf(levels), nil
}

// SnapshotOf narrows product stock levels to what the validator reads.
func SnapshotOf(levels map[snowflake.ID]productdomain.StockLevel) domain.Snapshot {
	snapshot := make(domain.Snapshot, len(levels))
	for id, level := range levels {
		snapshot[id] = domain.Stock{
			ProductID:    id,
			Available:    level.StockQuantity,
			LowThreshold: level.LowStockThreshold,
		}
	}
	return snapshot
}

func (s *Service) Check(ctx context.Context, orgID snowflake.ID, requests []domain.Request) (domain.Report, error) {
	ids := lo.Map(requests, func(r domain.Request, _ int) snowflake.ID { return r.ProductID })
	snapshot, err := s.Snapshot(ctx, s.db, orgID, ids, false)
	if err != nil {
		return domain.Report{}, err
	}
	return Validate(requests, snapshot), nil
}
