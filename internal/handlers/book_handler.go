package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"library-backend/internal/dto"
	"library-backend/internal/middleware"
	"library-backend/internal/models"
	"library-backend/internal/services"
	"library-backend/utils/response"
)

// BookHandler serves the catalog and ledger views any signed in user can see.
type BookHandler struct {
	catalog *services.CatalogService
	lending *services.LendingService
	logger  *slog.Logger
}

func NewBookHandler(catalog *services.CatalogService, lending *services.LendingService, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		catalog: catalog,
		lending: lending,
		logger:  logger,
	}
}

// ListBooks lists lendable titles, or the whole catalog with ?available=false.
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	availableOnly := true
	if raw := r.URL.Query().Get("available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "available must be true or false")
			return
		}
		availableOnly = v
	}

	var (
		books []models.Book
		err   error
	)
	if availableOnly {
		books, err = h.catalog.ListAvailable(r.Context())
	} else {
		books, err = h.catalog.ListAll(r.Context())
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := dto.BooksResponse{Books: make([]dto.BookResponse, 0, len(books))}
	for _, b := range books {
		resp.Books = append(resp.Books, dto.BookResponse{
			ID:     b.ID,
			Title:  b.Title,
			Author: b.Author,
		})
	}

	response.JSON(w, http.StatusOK, resp)
}

// BorrowedBooks lists every loan of the caller, returned ones included.
func (h *BookHandler) BorrowedBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		response.Error(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	borrowed, err := h.lending.BorrowedBy(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := make([]dto.BorrowedBookResponse, 0, len(borrowed))
	for _, b := range borrowed {
		resp = append(resp, dto.BorrowedBookResponse{
			BorrowedBookID: b.RecordID,
			Title:          b.Title,
			Author:         b.Author,
			BorrowedDate:   b.BorrowedDate,
			ReturnDate:     b.ReturnDate,
			Returned:       b.Returned,
			ReturnedAt:     b.ReturnedAt,
		})
	}

	response.JSON(w, http.StatusOK, resp)
}
