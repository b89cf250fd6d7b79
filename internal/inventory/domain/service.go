package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Snapshot reads current stock for ids. With lock set the rows stay
	// locked until db's transaction ends.
	Snapshot(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID, lock bool) (Snapshot, error)
	// Check is the advisory read path: no locks, nothing written.
	Check(ctx context.Context, orgID snowflake.ID, requests []Request) (Report, error)
	// Apply writes deltas inside db's transaction. Decrements are guarded so
	// stock never goes negative.
	Apply(ctx context.Context, db *gorm.DB, orgID snowflake.ID, deltas []Delta) error
}
