package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/internal/inventory/domain"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
	productrepo "github.com/smallbiznis/billbook/internal/product/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testOrg = snowflake.ID(100)

func TestApplyMovesStock(t *testing.T) {
	svc, db := setupInventory(t)
	seedProduct(t, db, 1, 10)
	seedProduct(t, db, 2, 4)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Apply(ctx, tx, testOrg, []domain.Delta{{ProductID: 2, Quantity: 3}, {ProductID: 1, Quantity: -7}})
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stockOf(t, db, 1))
	assert.Equal(t, int64(7), stockOf(t, db, 2))
}

func TestApplyReportsEveryShortageAndRollsBack(t *testing.T) {
	svc, db := setupInventory(t)
	seedProduct(t, db, 1, 10)
	seedProduct(t, db, 2, 1)
	seedProduct(t, db, 3, 0)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Apply(ctx, tx, testOrg, []domain.Delta{
			{ProductID: 1, Quantity: -5},
			{ProductID: 2, Quantity: -2},
			{ProductID: 3, Quantity: -1},
		})
	})

	var shortage *domain.InsufficientStockError
	require.True(t, errors.As(err, &shortage), "got %v", err)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	require.Len(t, shortage.Shortages, 2)
	assert.Equal(t, domain.Shortage{ProductID: 2, Requested: 2, Available: 1}, shortage.Shortages[0])
	assert.Equal(t, domain.Shortage{ProductID: 3, Requested: 1, Available: 0}, shortage.Shortages[1])

	assert.Equal(t, int64(10), stockOf(t, db, 1), "successful decrement must roll back with the rest")
}

func TestApplyMissingProduct(t *testing.T) {
	svc, db := setupInventory(t)
	ctx := context.Background()

	for _, delta := range []domain.Delta{{ProductID: 42, Quantity: -1}, {ProductID: 42, Quantity: 1}} {
		err := svc.Apply(ctx, db, testOrg, []domain.Delta{delta})
		var missing *domain.MissingProductError
		require.True(t, errors.As(err, &missing), "got %v", err)
		assert.Equal(t, snowflake.ID(42), missing.ProductID)
	}
}

func TestCheckIsAdvisory(t *testing.T) {
	svc, db := setupInventory(t)
	seedProduct(t, db, 1, 3)

	report, err := svc.Check(context.Background(), testOrg, []domain.Request{{ProductID: 1, Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, domain.LevelLow, report.Lines[0].Level)
	assert.Equal(t, int64(3), stockOf(t, db, 1))
}

func setupInventory(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	if err := db.AutoMigrate(&productdomain.Product{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return NewService(Params{DB: db, Log: zap.NewNop(), Repo: productrepo.Provide()}), db
}

func seedProduct(t *testing.T, db *gorm.DB, id snowflake.ID, stock int64) {
	t.Helper()
	now := time.Now().UTC()
	err := db.Create(&productdomain.Product{
		ID:                id,
		OrgID:             testOrg,
		Code:              fmt.Sprintf("p-%d", id),
		Name:              fmt.Sprintf("Product %d", id),
		Price:             decimal.NewFromInt(100),
		TaxRate:           decimal.NewFromInt(18),
		StockQuantity:     stock,
		LowStockThreshold: 5,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}).Error
	require.NoError(t, err)
}

func stockOf(t *testing.T, db *gorm.DB, id snowflake.ID) int64 {
	t.Helper()
	var stock int64
	require.NoError(t, db.Raw("SELECT stock_quantity FROM products WHERE id = ?", id).Scan(&stock).Error)
	return stock
}
