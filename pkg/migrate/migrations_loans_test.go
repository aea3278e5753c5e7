package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestLoansMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_loans.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS loans",
		"status loan_status NOT NULL DEFAULT 'active'",
		"FOREIGN KEY (book_id) REFERENCES books(id) ON DELETE RESTRICT",
		"FOREIGN KEY (borrower_id) REFERENCES borrowers(id) ON DELETE RESTRICT",
		"CHECK (due_date > borrowed_at)",
		"CHECK (due_date <= borrowed_at + interval '30 days')",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_loans_active_borrower ON loans (borrower_id) WHERE status = 'active'",
		"DROP TABLE IF EXISTS loans",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestLoanWindowGuardUsesFixedHours(t *testing.T) {
	content := readMigration(t, "*_loan_due_window_hours.sql")
	up, down, ok := strings.Cut(content, "-- +goose Down")
	if !ok {
		t.Fatal("missing down section")
	}
	if !strings.Contains(up, "CHECK (due_date <= borrowed_at + interval '768 hours')") {
		t.Error("up section should bound the due date in hours")
	}
	if strings.Contains(up, "days')") {
		t.Error("up section must not use calendar day arithmetic")
	}
	if !strings.Contains(down, "CHECK (due_date <= borrowed_at + interval '30 days')") {
		t.Error("down section should restore the original guard")
	}
}

func TestCatalogMigrationKeepsSoftDeleteUniqueness(t *testing.T) {
	content := readMigration(t, "*_create_books_and_borrowers.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS books",
		"CHECK (stock >= 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_books_isbn ON books (isbn) WHERE deleted_at IS NULL",
		"CREATE TABLE IF NOT EXISTS borrowers",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_borrowers_id_card_number ON borrowers (id_card_number) WHERE deleted_at IS NULL",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEnumMigrationMatchesOutboxEvents(t *testing.T) {
	content := readMigration(t, "*_create_enums.sql")

	for _, sub := range []string{
		"CREATE TYPE loan_status AS ENUM ('active', 'returned')",
		"CREATE TYPE event_type_enum AS ENUM ('loan_created', 'loan_returned')",
		"CREATE TYPE aggregate_type_enum AS ENUM ('loan')",
		"CREATE TYPE outbox_dlq_error_reason_enum AS ENUM ('max_attempts', 'non_retryable')",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
