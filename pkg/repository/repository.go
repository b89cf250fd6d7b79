// Package repository is a small generic gorm store for tables whose
// queries are plain column matches.
package repository

import (
	"context"

	"github.com/smallbiznis/billbook/pkg/db/option"
	"gorm.io/gorm"
)

type Repository[T any] interface {
	// WithTrx returns a store bound to tx.
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns nil, nil when nothing matches.
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	BatchCreate(ctx context.Context, resources []*T) error
	// Delete removes every row matching query and reports how many went.
	Delete(ctx context.Context, query *T) (int64, error)
	Count(ctx context.Context, query *T) (int64, error)
}
