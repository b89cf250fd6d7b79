// Package domain contains persistence models and contracts for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is set by callers; nothing in the lifecycle moves it on its own.
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusPending, InvoiceStatusPaid, InvoiceStatusOverdue:
		return true
	}
	return false
}

// Invoice is the persisted header. Sequence is the per-org ordinal assigned
// at creation; FormalNumber is set only when the caller supplied one.
type Invoice struct {
	ID           snowflake.ID    `gorm:"primaryKey"`
	OrgID        snowflake.ID    `gorm:"not null;uniqueIndex:ux_invoices_org_sequence,priority:1;uniqueIndex:ux_invoices_org_formal_number,priority:1"`
	Sequence     int64           `gorm:"not null;uniqueIndex:ux_invoices_org_sequence,priority:2"`
	FormalNumber *string         `gorm:"type:varchar(64);uniqueIndex:ux_invoices_org_formal_number,priority:2"`
	CustomerID   snowflake.ID    `gorm:"not null;index"`
	Status       InvoiceStatus   `gorm:"type:varchar(16);not null"`
	TaxRegime    string          `gorm:"type:varchar(16);not null"`
	Subtotal     decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	TotalTax     decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Total        decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	DueDate      time.Time       `gorm:"not null"`
	Notes        string          `gorm:"type:text"`
	CreatedBy    string          `gorm:"type:varchar(64)"`
	CreatedAt    time.Time       `gorm:"not null;index"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceItem is one persisted line, kept in Position order.
type InvoiceItem struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	OrgID       snowflake.ID    `gorm:"not null"`
	InvoiceID   snowflake.ID    `gorm:"not null;index"`
	Position    int             `gorm:"not null"`
	ProductID   snowflake.ID    `gorm:"not null;index"`
	Description string          `gorm:"type:text"`
	HSNCode     string          `gorm:"column:hsn_code;type:varchar(32)"`
	Quantity    int64           `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	TaxRate     decimal.Decimal `gorm:"type:numeric(9,4);not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	TaxAmount   decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	CreatedAt   time.Time       `gorm:"not null"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

// InvoiceSequence is the per-org ordinal counter. LastIssuedAt is the
// creation time handed to the invoice holding LastValue.
type InvoiceSequence struct {
	OrgID        snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	LastValue    int64        `gorm:"not null"`
	LastIssuedAt time.Time    `gorm:"not null"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }

// Models lists every table the invoice package owns.
func Models() []any {
	return []any{&Invoice{}, &InvoiceItem{}, &InvoiceSequence{}}
}
