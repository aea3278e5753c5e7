package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Book is a catalogued title. Stock counts the physical copies the library
// owns; loans never change it. Deleted books are soft deleted so the loan
// ledger keeps its references.
type Book struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Title     string         `gorm:"column:title;not null"`
	ISBN      string         `gorm:"column:isbn;not null"`
	Stock     int            `gorm:"column:stock;not null;default:0"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}
