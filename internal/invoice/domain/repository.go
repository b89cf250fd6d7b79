package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository persists invoices. Every method takes the handle to run on so
// the lifecycle can pass its transaction.
type Repository interface {
	// NextSequence bumps the org's counter and returns the new ordinal with
	// the creation time it must carry: now, or just after the previous
	// invoice's creation time when the clock has not moved past it.
	NextSequence(ctx context.Context, db *gorm.DB, orgID snowflake.ID, now time.Time) (int64, time.Time, error)
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice, items []InvoiceItem) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, lock bool) (*Invoice, error)
	ListItems(ctx context.Context, db *gorm.DB, orgID snowflake.ID, invoiceIDs []snowflake.ID) (map[snowflake.ID][]InvoiceItem, error)
	Update(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	ReplaceItems(ctx context.Context, db *gorm.DB, invoice *Invoice, items []InvoiceItem) error
	// Delete removes the invoice and its items and reports whether it existed.
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (bool, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListInvoiceFilter, page pagination.Pagination) ([]Invoice, error)
	// Ordering returns id, created_at and sequence of every org invoice in
	// creation order.
	Ordering(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Invoice, error)
	// CustomerNames resolves ids to names; unknown ids are absent.
	CustomerNames(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) (map[snowflake.ID]string, error)
}
