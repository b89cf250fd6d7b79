package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/customer/domain"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	"github.com/smallbiznis/billbook/pkg/db/option"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return domain.Customer{}, domain.ErrInvalidEmail
		}
	}

	now := s.clock.Now()
	customer := domain.Customer{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Name:      name,
		Email:     email,
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		Metadata:  datatypes.JSONMap(req.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if customer.Metadata == nil {
		customer.Metadata = datatypes.JSONMap{}
	}

	if err := s.repo.Insert(ctx, s.db, &customer); err != nil {
		return domain.Customer{}, err
	}

	s.log.Debug("customer created", zap.String("customer_id", customer.ID.String()))
	return customer, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListCustomerResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListCustomerFilter{
		Name: strings.ToLower(strings.TrimSpace(req.Name)),
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter, req.Pagination)
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	items, pageInfo, err := pagination.BuildPageInfo(items, req.Size(), func(c *domain.Customer) pagination.Cursor {
		return option.CursorOf(c.ID.Int64(), c.CreatedAt)
	})
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	customers := make([]domain.Customer, 0, len(items))
	for _, item := range items {
		customers = append(customers, *item)
	}

	return domain.ListCustomerResponse{PageInfo: pageInfo, Customers: customers}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidOrganization
	}

	customerID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || customerID == 0 {
		return domain.Customer{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrNotFound
	}

	return *item, nil
}

