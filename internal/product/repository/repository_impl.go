package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/product/domain"
	"github.com/smallbiznis/billbook/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Create(product).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListRequest) ([]domain.Product, error) {
	var items []domain.Product
	stmt := db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("org_id = ?", orgID)

	if filter.Name != "" {
		stmt = stmt.Where("LOWER(name) LIKE ?", "%"+filter.Name+"%")
	}
	if filter.Active != nil {
		stmt = stmt.Where("active = ?", *filter.Active)
	}

	stmt = option.WithSortBy(option.WithQuerySortBy(filter.SortBy, filter.OrderBy, map[string]bool{
		"created_at":     true,
		"updated_at":     true,
		"name":           true,
		"stock_quantity": true,
	})).Apply(stmt)

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	if product == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE products
		 SET name = ?, description = ?, hsn_code = ?, price = ?, tax_rate = ?,
		     low_stock_threshold = ?, active = ?, metadata = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		product.Name,
		product.Description,
		product.HSNCode,
		product.Price,
		product.TaxRate,
		product.LowStockThreshold,
		product.Active,
		product.Metadata,
		product.UpdatedAt,
		product.OrgID,
		product.ID,
	).Error
}

func (r *repo) StockSnapshot(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID, lock bool) (map[snowflake.ID]domain.StockLevel, error) {
	levels := make(map[snowflake.ID]domain.StockLevel, len(ids))
	if len(ids) == 0 {
		return levels, nil
	}

	stmt := db.WithContext(ctx).
		Model(&domain.Product{}).
		Select("id, name, hsn_code, price, tax_rate, stock_quantity, low_stock_threshold, active").
		Where("org_id = ? AND id IN ?", orgID, ids).
		Order("id")
	if lock {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rows []domain.Product
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		levels[row.ID] = row.StockLevel()
	}
	return levels, nil
}

func (r *repo) DecrementStock(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, qty int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE products
		 SET stock_quantity = stock_quantity - ?
		 WHERE org_id = ? AND id = ? AND stock_quantity >= ?`,
		qty, orgID, id, qty,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) IncrementStock(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, qty int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE products
		 SET stock_quantity = stock_quantity + ?
		 WHERE org_id = ? AND id = ?`,
		qty, orgID, id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
