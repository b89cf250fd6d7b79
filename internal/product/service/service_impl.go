package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	"github.com/smallbiznis/billbook/internal/product/domain"
	"github.com/smallbiznis/billbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
	Repo    domain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	genID   *snowflake.Node
	clock   clock.Clock
	billing *config.BillingConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("product.service"),
		repo:    p.Repo,
		genID:   p.GenID,
		clock:   p.Clock,
		billing: p.Billing,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	filter := domain.ListRequest{
		Name:    strings.ToLower(strings.TrimSpace(req.Name)),
		Active:  req.Active,
		SortBy:  strings.TrimSpace(req.SortBy),
		OrderBy: strings.TrimSpace(req.OrderBy),
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = slug.Make(name)
	}
	if code == "" || len(code) > 128 {
		return nil, domain.ErrInvalidCode
	}

	if req.Price.IsNegative() || !domain.PriceFits(req.Price) {
		return nil, domain.ErrInvalidPrice
	}
	if req.TaxRate.IsNegative() || !domain.TaxRateFits(req.TaxRate) {
		return nil, domain.ErrInvalidTaxRate
	}
	if req.StockQuantity < 0 {
		return nil, domain.ErrInvalidStock
	}

	threshold := s.billing.Get().LowStockThreshold
	if req.LowStockThreshold != nil {
		threshold = *req.LowStockThreshold
	}
	if threshold < 0 {
		return nil, domain.ErrInvalidThreshold
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	p := &domain.Product{
		ID:                s.genID.Generate(),
		OrgID:             orgID,
		Code:              code,
		Name:              name,
		Description:       normalizeDescription(req.Description),
		HSNCode:           strings.TrimSpace(req.HSNCode),
		Price:             req.Price,
		TaxRate:           req.TaxRate,
		StockQuantity:     req.StockQuantity,
		LowStockThreshold: threshold,
		Active:            active,
		Metadata:          datatypes.JSONMap{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.Metadata != nil {
		p.Metadata = datatypes.JSONMap(req.Metadata)
	}
	if err := s.repo.Create(ctx, s.db, p); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateCode
		}
		return nil, err
	}

	s.log.Info("product created",
		zap.String("product_id", p.ID.String()),
		zap.String("code", p.Code),
		zap.Int64("stock_quantity", p.StockQuantity),
	)
	resp := toResponse(p)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	item, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Description != nil {
		item.Description = normalizeDescription(req.Description)
	}
	if req.HSNCode != nil {
		item.HSNCode = strings.TrimSpace(*req.HSNCode)
	}
	if req.Price != nil {
		if req.Price.IsNegative() || !domain.PriceFits(*req.Price) {
			return nil, domain.ErrInvalidPrice
		}
		item.Price = *req.Price
	}
	if req.TaxRate != nil {
		if req.TaxRate.IsNegative() || !domain.TaxRateFits(*req.TaxRate) {
			return nil, domain.ErrInvalidTaxRate
		}
		item.TaxRate = *req.TaxRate
	}
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return nil, domain.ErrInvalidThreshold
		}
		item.LowStockThreshold = *req.LowStockThreshold
	}
	if req.Active != nil {
		item.Active = *req.Active
	}
	if req.Metadata != nil {
		item.Metadata = datatypes.JSONMap(req.Metadata)
	}

	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, err
	}

	resp := toResponse(item)
	return &resp, nil
}

// Restock adds received goods to the on-hand quantity. Stock sold through
// invoices is only ever changed by the invoice lifecycle.
func (s *Service) Restock(ctx context.Context, req domain.RestockRequest) (*domain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	productID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	var updated *domain.Product
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.IncrementStock(ctx, tx, orgID, productID, req.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound
		}
		updated, err = s.repo.FindByID(ctx, tx, orgID, productID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("product restocked",
		zap.String("product_id", productID.String()),
		zap.Int64("quantity", req.Quantity),
		zap.Int64("stock_quantity", updated.StockQuantity),
	)
	resp := toResponse(updated)
	return &resp, nil
}

func (s *Service) load(ctx context.Context, id string) (*domain.Product, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	productID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, productID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func normalizeDescription(value *string) *string {
	if value == nil {
		return nil
	}
	description := strings.TrimSpace(*value)
	if description == "" {
		return nil
	}
	return &description
}

func toResponse(p *domain.Product) domain.Response {
	resp := domain.Response{
		ID:                p.ID.String(),
		OrganizationID:    p.OrgID.String(),
		Code:              p.Code,
		Name:              p.Name,
		Description:       p.Description,
		HSNCode:           p.HSNCode,
		Price:             p.Price,
		TaxRate:           p.TaxRate,
		StockQuantity:     p.StockQuantity,
		LowStockThreshold: p.LowStockThreshold,
		Active:            p.Active,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if len(p.Metadata) > 0 {
		resp.Metadata = map[string]any(p.Metadata)
	}
	return resp
}

