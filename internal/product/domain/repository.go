package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Product, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListRequest) ([]Product, error)
	Update(ctx context.Context, db *gorm.DB, product *Product) error

	// StockSnapshot returns the stock view of every listed product that exists.
	// With lock set the rows are held FOR UPDATE until db's transaction ends.
	StockSnapshot(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID, lock bool) (map[snowflake.ID]StockLevel, error)
	// DecrementStock removes qty only when at least qty is on hand.
	// It reports false when no row matched, leaving stock untouched.
	DecrementStock(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, qty int64) (bool, error)
	// IncrementStock reports false when the product does not exist.
	IncrementStock(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, qty int64) (bool, error)
}
