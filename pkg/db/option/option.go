package option

import (
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a gorm statement.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type QueryOptionFunc func(*gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// ApplyPagination positions the statement after the page cursor in
// (created_at desc, id desc) order and fetches one extra row for HasMore.
// An undecodable token surfaces as a statement error.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			_ = db.AddError(err)
			return db
		}
		if cursor != nil {
			createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
			if err != nil {
				_ = db.AddError(pagination.ErrInvalidPageToken)
				return db
			}
			id, err := strconv.ParseInt(cursor.ID, 10, 64)
			if err != nil {
				_ = db.AddError(pagination.ErrInvalidPageToken)
				return db
			}
			db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
		}
		return db.Order("created_at desc, id desc").Limit(page.Size() + 1)
	})
}

// CursorOf builds the cursor for a row ordered by (created_at desc, id desc).
func CursorOf(id int64, createdAt time.Time) pagination.Cursor {
	return pagination.Cursor{
		ID:        strconv.FormatInt(id, 10),
		CreatedAt: createdAt.UTC().Format(time.RFC3339Nano),
	}
}

// SortBy is a validated ORDER BY clause.
type SortBy struct {
	Column string
	Desc   bool
}

// WithQuerySortBy resolves user-supplied sort parameters against allowed
// columns, falling back to created_at desc.
func WithQuerySortBy(sortBy, orderBy string, allowed map[string]bool) SortBy {
	column := strings.ToLower(strings.TrimSpace(sortBy))
	if !allowed[column] {
		return SortBy{Column: "created_at", Desc: true}
	}
	desc := true
	if strings.EqualFold(strings.TrimSpace(orderBy), "asc") {
		desc = false
	}
	return SortBy{Column: column, Desc: desc}
}

func WithSortBy(s SortBy) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Order(clause.OrderByColumn{Column: clause.Column{Name: s.Column}, Desc: s.Desc}).
			Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: s.Desc})
	})
}
