package books

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-loans-backend/internal/availability"
	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
)

// CreateBookInput holds the fields accepted when cataloguing a book.
type CreateBookInput struct {
	Title string
	ISBN  string
	Stock int
}

// UpdateBookInput holds the optional fields for a partial update.
type UpdateBookInput struct {
	Title *string
	ISBN  *string
	Stock *int
}

type ListBooksInput struct {
	Search string
	Limit  int
	Cursor string
}

// BookDTO is a book with its derived availability.
type BookDTO struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	ISBN            string    `json:"isbn"`
	Stock           int       `json:"stock"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type BookListDTO struct {
	Books      []BookDTO `json:"books"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// CatalogSummary feeds the dashboard.
type CatalogSummary struct {
	TotalBooks     int `json:"total_books"`
	TotalCopies    int `json:"total_copies"`
	AvailableBooks int `json:"available_books"`
}

func newBookDTO(book models.Book, activeLoans int64) BookDTO {
	return BookDTO{
		ID:              book.ID,
		Title:           book.Title,
		ISBN:            book.ISBN,
		Stock:           book.Stock,
		AvailableCopies: availability.AvailableCopies(book.Stock, activeLoans),
		CreatedAt:       book.CreatedAt,
		UpdatedAt:       book.UpdatedAt,
	}
}
