package numbering

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/observability/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// LoaderFunc reads an organization's full creation order from storage,
// sorted by (created_at, sequence, id).
type LoaderFunc func(ctx context.Context, orgID snowflake.ID) ([]Entry, error)

// RepositoryLoader reads an org's creation order through repo on db.
func RepositoryLoader(db *gorm.DB, repo domain.Repository) LoaderFunc {
	return func(ctx context.Context, orgID snowflake.ID) ([]Entry, error) {
		rows, err := repo.Ordering(ctx, db, orgID)
		if err != nil {
			return nil, err
		}
		entries := make([]Entry, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, Entry{InvoiceID: row.ID, CreatedAt: row.CreatedAt, Sequence: row.Sequence})
		}
		return entries, nil
	}
}

type Assigner struct {
	index    Index
	load     LoaderFunc
	template string
	log      *zap.Logger
	metrics  *metrics.Metrics
	group    singleflight.Group
}

func NewAssigner(index Index, load LoaderFunc, template string, log *zap.Logger, m *metrics.Metrics) *Assigner {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Assigner{
		index:    index,
		load:     load,
		template: template,
		log:      log.Named("invoice.numbering"),
		metrics:  m,
	}
}

// Number returns the invoice's formal number when it has one, otherwise the
// number derived from its creation date in loc and its ordinal.
func (a *Assigner) Number(ctx context.Context, inv *domain.Invoice, loc *time.Location) (string, error) {
	if inv == nil {
		return "", domain.ErrInvoiceNotFound
	}
	if inv.FormalNumber != nil && strings.TrimSpace(*inv.FormalNumber) != "" {
		return *inv.FormalNumber, nil
	}

	entry, err := a.resolve(ctx, inv.OrgID, inv.ID)
	if err != nil {
		return "", err
	}
	if entry.Sequence != inv.Sequence {
		a.log.Error("ordering index disagrees with stored sequence",
			zap.String("org_id", inv.OrgID.String()),
			zap.String("invoice_id", inv.ID.String()),
			zap.Int64("index_sequence", entry.Sequence),
			zap.Int64("stored_sequence", inv.Sequence),
		)
		return "", domain.ErrNumberingConflict
	}

	if loc == nil {
		loc = time.UTC
	}
	return Format(a.template, inv.CreatedAt.In(loc), entry.Sequence)
}

// Record adds a committed invoice to the index. The index is a cache, so a
// failure only costs a reload later.
func (a *Assigner) Record(ctx context.Context, inv *domain.Invoice) {
	entry := Entry{InvoiceID: inv.ID, CreatedAt: inv.CreatedAt, Sequence: inv.Sequence}
	if err := a.index.Append(ctx, inv.OrgID, entry); err != nil {
		a.log.Warn("ordering index append failed", zap.String("invoice_id", inv.ID.String()), zap.Error(err))
	}
}

func (a *Assigner) Forget(ctx context.Context, orgID, invoiceID snowflake.ID) {
	if err := a.index.Remove(ctx, orgID, invoiceID); err != nil {
		a.log.Warn("ordering index remove failed", zap.String("invoice_id", invoiceID.String()), zap.Error(err))
	}
}

func (a *Assigner) resolve(ctx context.Context, orgID, invoiceID snowflake.ID) (Entry, error) {
	entry, ok, err := a.index.Lookup(ctx, orgID, invoiceID)
	if err != nil {
		a.log.Warn("ordering index lookup failed", zap.String("backend", a.index.Backend()), zap.Error(err))
	}
	if ok {
		return entry, nil
	}

	entries, err := a.reload(ctx, orgID)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.InvoiceID == invoiceID {
			return e, nil
		}
	}
	return Entry{}, domain.ErrNumberNotFound
}

// reload collapses concurrent reloads of the same org into one query.
func (a *Assigner) reload(ctx context.Context, orgID snowflake.ID) ([]Entry, error) {
	v, err, _ := a.group.Do(strconv.FormatInt(orgID.Int64(), 10), func() (any, error) {
		entries, err := a.load(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("load invoice ordering: %w", err)
		}
		a.metrics.RecordNumberingReload(ctx, a.index.Backend())
		if err := a.index.Replace(ctx, orgID, entries); err != nil {
			a.log.Warn("ordering index replace failed", zap.String("backend", a.index.Backend()), zap.Error(err))
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Entry), nil
}
