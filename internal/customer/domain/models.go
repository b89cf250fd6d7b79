package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Customer struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID      `gorm:"not null;index" json:"org_id"`
	Name      string            `gorm:"not null" json:"name"`
	Email     string            `json:"email,omitempty"`
	Phone     string            `json:"phone,omitempty"`
	Address   string            `json:"address,omitempty"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null" json:"updated_at"`
}
