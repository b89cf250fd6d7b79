package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Product struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID             snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;uniqueIndex:ux_products_org_code,priority:1"`
	Code              string            `json:"code" gorm:"type:varchar(128);not null;uniqueIndex:ux_products_org_code,priority:2"`
	Name              string            `json:"name" gorm:"type:text;not null"`
	Description       *string           `json:"description,omitempty" gorm:"type:text"`
	HSNCode           string            `json:"hsn_code,omitempty" gorm:"column:hsn_code;type:varchar(32)"`
	Price             decimal.Decimal   `json:"price" gorm:"type:numeric(20,6);not null;default:0"`
	TaxRate           decimal.Decimal   `json:"tax_rate" gorm:"type:numeric(9,4);not null;default:0"`
	StockQuantity     int64             `json:"stock_quantity" gorm:"not null;default:0"`
	LowStockThreshold int64             `json:"low_stock_threshold" gorm:"not null;default:0"`
	Active            bool              `json:"active" gorm:"not null"`
	Metadata          datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:json"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// Storage limits of the money columns: NUMERIC(20,6) for prices and amounts,
// NUMERIC(9,4) for tax rates.
const (
	PriceScale   int32 = 6
	TaxRateScale int32 = 4
)

var (
	MaxAmount  = decimal.New(1, 14)
	MaxTaxRate = decimal.New(1, 5)
)

// PriceFits reports whether d is stored in a price column unchanged.
func PriceFits(d decimal.Decimal) bool { return fits(d, PriceScale, MaxAmount) }

// TaxRateFits reports whether d is stored in a tax rate column unchanged.
func TaxRateFits(d decimal.Decimal) bool { return fits(d, TaxRateScale, MaxTaxRate) }

func fits(d decimal.Decimal, scale int32, limit decimal.Decimal) bool {
	return d.Equal(d.Truncate(scale)) && d.Abs().LessThan(limit)
}

// StockLevel is the slice of a product the invoice engine reads when pricing
// and validating line items.
type StockLevel struct {
	ProductID         snowflake.ID
	Name              string
	HSNCode           string
	Price             decimal.Decimal
	TaxRate           decimal.Decimal
	StockQuantity     int64
	LowStockThreshold int64
	Active            bool
}

func (p Product) StockLevel() StockLevel {
	return StockLevel{
		ProductID:         p.ID,
		Name:              p.Name,
		HSNCode:           p.HSNCode,
		Price:             p.Price,
		TaxRate:           p.TaxRate,
		StockQuantity:     p.StockQuantity,
		LowStockThreshold: p.LowStockThreshold,
		Active:            p.Active,
	}
}
