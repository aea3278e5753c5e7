package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Borrower is a registered library member identified by their id card.
type Borrower struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	IDCardNumber string         `gorm:"column:id_card_number;not null"`
	Name         string         `gorm:"column:name;not null"`
	Email        string         `gorm:"column:email;not null"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index"`
}
