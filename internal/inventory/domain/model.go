// Package domain describes stock checks and the stock movements an invoice
// mutation implies.
package domain

import (
	"github.com/bwmarrin/snowflake"
)

// Level classifies a requested quantity against available stock.
type Level string

const (
	LevelOK      Level = "OK"
	LevelLow     Level = "LOW"
	LevelBlocked Level = "BLOCKED"
)

// Stock is what the validator needs to know about one product.
type Stock struct {
	ProductID    snowflake.ID
	Available    int64
	LowThreshold int64
}

// Snapshot maps product id to stock. A product absent from the snapshot has
// nothing available.
type Snapshot map[snowflake.ID]Stock

// Request is one line's demand on a product.
type Request struct {
	ProductID snowflake.ID
	Quantity  int64
}

// LineCheck is the verdict for one requested line. Requested is the demand of
// every line on the same product, since they draw on the same stock.
type LineCheck struct {
	Line      int          `json:"line"`
	ProductID snowflake.ID `json:"product_id"`
	Requested int64        `json:"requested"`
	Available int64        `json:"available"`
	Level     Level        `json:"level"`
	Shortfall int64        `json:"shortfall,omitempty"`
}

// Report lists a verdict for every line in request order.
type Report struct {
	Lines []LineCheck `json:"lines"`
}

func (r Report) Blocked() bool {
	for _, line := range r.Lines {
		if line.Level == LevelBlocked {
			return true
		}
	}
	return false
}

// Violations returns one BLOCKED entry per product, in first-seen order.
func (r Report) Violations() []LineCheck {
	return r.byLevel(LevelBlocked)
}

// Warnings returns one LOW entry per product, in first-seen order.
func (r Report) Warnings() []LineCheck {
	return r.byLevel(LevelLow)
}

func (r Report) byLevel(level Level) []LineCheck {
	var out []LineCheck
	seen := make(map[snowflake.ID]struct{})
	for _, line := range r.Lines {
		if line.Level != level {
			continue
		}
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		out = append(out, line)
	}
	return out
}

// Delta is a signed stock movement: negative takes stock, positive returns it.
type Delta struct {
	ProductID snowflake.ID
	Quantity  int64
}
