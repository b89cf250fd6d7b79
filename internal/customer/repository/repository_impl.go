package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/customer/domain"
	"github.com/smallbiznis/billbook/pkg/db/option"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Create(customer).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListCustomerFilter, page pagination.Pagination) ([]*domain.Customer, error) {
	var customers []*domain.Customer
	stmt := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("org_id = ?", orgID)
	if filter.Name != "" {
		stmt = stmt.Where("LOWER(name) LIKE ?", "%"+filter.Name+"%")
	}
	if err := option.ApplyPagination(page).Apply(stmt).Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}
