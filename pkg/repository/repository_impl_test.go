package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/billbook/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type note struct {
	ID    int64 `gorm:"primaryKey;autoIncrement:false"`
	OrgID int64 `gorm:"not null"`
	Body  string
}

func setupStore(t *testing.T) (Repository[note], *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&note{}))
	return ProvideStore[note](db), db
}

func TestStoreCreateFindDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	require.NoError(t, store.BatchCreate(ctx, []*note{
		{ID: 1, OrgID: 10, Body: "a"},
		{ID: 2, OrgID: 10, Body: "b"},
		{ID: 3, OrgID: 20, Body: "c"},
	}))
	require.NoError(t, store.BatchCreate(ctx, nil))

	found, err := store.Find(ctx, &note{OrgID: 10}, option.QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Order("id desc")
	}))
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.EqualValues(t, 2, found[0].ID)

	one, err := store.FindOne(ctx, &note{ID: 3, OrgID: 20})
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, "c", one.Body)

	missing, err := store.FindOne(ctx, &note{ID: 3, OrgID: 10})
	require.NoError(t, err)
	assert.Nil(t, missing)

	deleted, err := store.Delete(ctx, &note{OrgID: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	count, err := store.Count(ctx, &note{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestStoreWithTrxRollsBack(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, store.WithTrx(tx).Create(ctx, &note{ID: 7, OrgID: 10}))
		return gorm.ErrInvalidTransaction
	})
	require.ErrorIs(t, err, gorm.ErrInvalidTransaction)

	count, err := store.Count(ctx, &note{OrgID: 10})
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Same(t, store, store.WithTrx(nil))
}
