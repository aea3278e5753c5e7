package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// The goose migrations target Postgres. Local sqlite runs get this equivalent
// schema instead, keeping the partial unique indexes the lending rules rely on.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		isbn TEXT NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_books_isbn ON books(isbn) WHERE deleted_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS borrowers (
		id TEXT PRIMARY KEY,
		id_card_number TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_borrowers_id_card_number ON borrowers(id_card_number) WHERE deleted_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL REFERENCES books(id) ON DELETE RESTRICT,
		borrower_id TEXT NOT NULL REFERENCES borrowers(id) ON DELETE RESTRICT,
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'returned')),
		borrowed_at DATETIME NOT NULL,
		due_date DATETIME NOT NULL,
		returned_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_loans_active_borrower ON loans(borrower_id) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// ApplySQLite creates the sqlite schema. Every statement is idempotent.
func ApplySQLite(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if name := conn.Dialector.Name(); name != "sqlite" {
		return fmt.Errorf("sqlite schema cannot be applied to %s", name)
	}
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
