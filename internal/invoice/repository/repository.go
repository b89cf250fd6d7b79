package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/pkg/db/option"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"github.com/smallbiznis/billbook/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	invoices repository.Repository[domain.Invoice]
	items    repository.Repository[domain.InvoiceItem]
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{
		invoices: repository.ProvideStore[domain.Invoice](db),
		items:    repository.ProvideStore[domain.InvoiceItem](db),
	}
}

func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, orgID snowflake.ID, now time.Time) (int64, time.Time, error) {
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "org_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_value": gorm.Expr("invoice_sequences.last_value + 1"),
		}),
	}).Create(&domain.InvoiceSequence{
		OrgID:        orgID,
		LastValue:    1,
		LastIssuedAt: time.Unix(0, 0).UTC(),
	}).Error
	if err != nil {
		return 0, time.Time{}, err
	}

	var seq domain.InvoiceSequence
	err = db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ?", orgID).
		Take(&seq).Error
	if err != nil {
		return 0, time.Time{}, err
	}

	issuedAt := now.UTC().Truncate(time.Microsecond)
	if floor := seq.LastIssuedAt.UTC().Add(time.Microsecond); issuedAt.Before(floor) {
		issuedAt = floor
	}

	err = db.WithContext(ctx).Exec(
		`UPDATE invoice_sequences SET last_issued_at = ? WHERE org_id = ?`,
		issuedAt, orgID,
	).Error
	if err != nil {
		return 0, time.Time{}, err
	}
	return seq.LastValue, issuedAt, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice, items []domain.InvoiceItem) error {
	if invoice == nil {
		return gorm.ErrInvalidData
	}
	if err := r.invoices.WithTrx(db).Create(ctx, invoice); err != nil {
		return err
	}
	return r.items.WithTrx(db).BatchCreate(ctx, lo.ToSlicePtr(items))
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, lock bool) (*domain.Invoice, error) {
	var opts []option.QueryOption
	if lock {
		opts = append(opts, option.QueryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
			return stmt.Clauses(clause.Locking{Strength: "UPDATE"})
		}))
	}
	return r.invoices.WithTrx(db).FindOne(ctx, &domain.Invoice{ID: id, OrgID: orgID}, opts...)
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orgID snowflake.ID, invoiceIDs []snowflake.ID) (map[snowflake.ID][]domain.InvoiceItem, error) {
	out := make(map[snowflake.ID][]domain.InvoiceItem, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return out, nil
	}

	var rows []domain.InvoiceItem
	err := db.WithContext(ctx).
		Where("org_id = ? AND invoice_id IN ?", orgID, lo.Uniq(invoiceIDs)).
		Order("invoice_id, position").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.InvoiceID] = append(out[row.InvoiceID], row)
	}
	return out, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	if invoice == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET customer_id = ?, status = ?, subtotal = ?, total_tax = ?, total = ?,
		     due_date = ?, notes = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		invoice.CustomerID,
		invoice.Status,
		invoice.Subtotal,
		invoice.TotalTax,
		invoice.Total,
		invoice.DueDate,
		invoice.Notes,
		invoice.UpdatedAt,
		invoice.OrgID,
		invoice.ID,
	).Error
}

func (r *repo) ReplaceItems(ctx context.Context, db *gorm.DB, invoice *domain.Invoice, items []domain.InvoiceItem) error {
	store := r.items.WithTrx(db)
	if _, err := store.Delete(ctx, &domain.InvoiceItem{OrgID: invoice.OrgID, InvoiceID: invoice.ID}); err != nil {
		return err
	}
	return store.BatchCreate(ctx, lo.ToSlicePtr(items))
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (bool, error) {
	if _, err := r.items.WithTrx(db).Delete(ctx, &domain.InvoiceItem{OrgID: orgID, InvoiceID: id}); err != nil {
		return false, err
	}
	deleted, err := r.invoices.WithTrx(db).Delete(ctx, &domain.Invoice{ID: id, OrgID: orgID})
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListInvoiceFilter, page pagination.Pagination) ([]domain.Invoice, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("org_id = ?", orgID)

	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("created_at <= ?", filter.CreatedTo.UTC())
	}

	stmt = option.ApplyPagination(page).Apply(stmt)

	var invoices []domain.Invoice
	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) Ordering(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]domain.Invoice, error) {
	var rows []domain.Invoice
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Select("id, created_at, sequence").
		Where("org_id = ?", orgID).
		Order("created_at, sequence, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type customerRow struct {
	ID   snowflake.ID
	Name string
}

func (r *repo) CustomerNames(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) (map[snowflake.ID]string, error) {
	names := make(map[snowflake.ID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	var rows []customerRow
	err := db.WithContext(ctx).Raw(
		`SELECT id, name
		 FROM customers
		 WHERE org_id = ? AND id IN ?`,
		orgID,
		lo.Uniq(ids),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}
