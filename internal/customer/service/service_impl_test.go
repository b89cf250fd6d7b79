package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/customer/domain"
	"github.com/smallbiznis/billbook/internal/customer/repository"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestCreateAndGet(t *testing.T) {
	svc, _ := setupCustomerService(t)
	ctx := orgcontext.WithOrgID(context.Background(), 7)

	created, err := svc.Create(ctx, domain.CreateCustomerRequest{Name: "  Acme Traders ", Email: "ops@acme.test"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Traders", created.Name)

	got, err := svc.GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "ops@acme.test", got.Email)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := setupCustomerService(t)
	ctx := orgcontext.WithOrgID(context.Background(), 7)

	_, err := svc.Create(context.Background(), domain.CreateCustomerRequest{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)

	_, err = svc.Create(ctx, domain.CreateCustomerRequest{Name: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, domain.CreateCustomerRequest{Name: "x", Email: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)
}

func TestGetIsScopedToOrganization(t *testing.T) {
	svc, _ := setupCustomerService(t)
	created, err := svc.Create(orgcontext.WithOrgID(context.Background(), 7), domain.CreateCustomerRequest{Name: "Acme"})
	require.NoError(t, err)

	_, err = svc.GetByID(orgcontext.WithOrgID(context.Background(), 8), created.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetByID(orgcontext.WithOrgID(context.Background(), 7), "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, _ := setupCustomerService(t)
	ctx := orgcontext.WithOrgID(context.Background(), 7)

	var names []string
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("Customer %d", i)
		_, err := svc.Create(ctx, domain.CreateCustomerRequest{Name: name})
		require.NoError(t, err)
		names = append(names, name)
	}

	first, err := svc.List(ctx, domain.ListCustomerRequest{Pagination: pagination.Pagination{PageSize: 3}})
	require.NoError(t, err)
	require.Len(t, first.Customers, 3)
	assert.True(t, first.HasMore)
	assert.Equal(t, names[4], first.Customers[0].Name)

	second, err := svc.List(ctx, domain.ListCustomerRequest{Pagination: pagination.Pagination{PageSize: 3, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.Customers, 2)
	assert.False(t, second.HasMore)
	assert.Equal(t, names[0], second.Customers[1].Name)

	filtered, err := svc.List(ctx, domain.ListCustomerRequest{Name: "customer 3"})
	require.NoError(t, err)
	require.Len(t, filtered.Customers, 1)

	_, err = svc.List(ctx, domain.ListCustomerRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}

func setupCustomerService(t *testing.T) (domain.Service, *gorm.DB) {
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
	if err := db.AutoMigrate(&domain.Customer{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: mustNode(t),
		Clock: &tickingClock{clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))},
		Repo:  repository.Provide(),
	})
	return svc, db
}

// tickingClock hands out strictly increasing timestamps.
type tickingClock struct{ *clock.FakeClock }

func (c *tickingClock) Now() time.Time { return c.Tick(time.Second) }

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}
