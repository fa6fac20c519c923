package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"library-backend/internal/dto"
	"library-backend/internal/middleware"
	"library-backend/internal/services"
	"library-backend/utils/response"
)

type AdminHandler struct {
	auth    *services.AuthService
	users   *services.UserService
	catalog *services.CatalogService
	lending *services.LendingService
	logger  *slog.Logger
}

func NewAdminHandler(
	auth *services.AuthService,
	users *services.UserService,
	catalog *services.CatalogService,
	lending *services.LendingService,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		auth:    auth,
		users:   users,
		catalog: catalog,
		lending: lending,
		logger:  logger,
	}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	users, err := h.users.ListAll(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := dto.UsersResponse{Users: make([]dto.UserResponse, 0, len(users))}
	for i := range users {
		resp.Users = append(resp.Users, toUserResponse(&users[i]))
	}

	response.JSON(w, http.StatusOK, resp)
}

// AddBooks adds copies to a title, creating it on first use.
func (h *AdminHandler) AddBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req dto.AddBooksRequest
	if err := response.Decode(r.Body, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	book, err := h.catalog.AddCopies(r.Context(), req.Title, req.Author, req.Count)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "copies added",
		"book_id", book.ID,
		"count", req.Count,
		"available_copies", book.AvailableCopies,
	)

	response.JSON(w, http.StatusOK, dto.MessageResponse{
		Message: fmt.Sprintf("Added %d copies of %q by %s", req.Count, book.Title, book.Author),
	})
}

// LendBook lends a copy to user_id on behalf of the calling admin.
func (h *AdminHandler) LendBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	lender := middleware.GetUserFromContext(r.Context())
	if lender == nil {
		response.Error(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req dto.LendBookRequest
	if err := response.Decode(r.Body, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	loan, err := h.lending.Lend(r.Context(), services.LendRequest{
		Title:      req.Title,
		Author:     req.Author,
		BorrowerID: req.UserID,
		LenderID:   lender.ID,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "book lent",
		"record_id", loan.Record.ID,
		"book_id", loan.Book.ID,
		"borrower_id", loan.Record.BorrowerID,
		"lender_id", loan.Record.LenderID,
	)

	response.JSON(w, http.StatusOK, dto.LendBookResponse{
		RecordID: loan.Record.ID,
		Title:    loan.Book.Title,
		Author:   loan.Book.Author,
		ReturnBy: loan.Record.ReturnDate,
	})
}

func (h *AdminHandler) ReturnBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	recordID, err := strconv.ParseInt(r.PathValue("record_id"), 10, 64)
	if err != nil || recordID <= 0 {
		response.Error(w, http.StatusBadRequest, "Invalid record id")
		return
	}

	loan, err := h.lending.MarkReturned(r.Context(), recordID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "book returned",
		"record_id", loan.Record.ID,
		"book_id", loan.Book.ID,
	)

	response.JSON(w, http.StatusOK, dto.ReturnBookResponse{
		RecordID:   loan.Record.ID,
		Title:      loan.Book.Title,
		Author:     loan.Book.Author,
		ReturnedAt: *loan.Record.ReturnedAt,
	})
}

// CreateAdmin promotes user_id when the path carries the bootstrap key.
func (h *AdminHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req dto.GrantAdminRequest
	if err := response.Decode(r.Body, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.auth.GrantAdmin(r.Context(), req.UserID, r.PathValue("access_key"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "admin granted", "user_id", user.ID)

	response.JSON(w, http.StatusOK, dto.MessageResponse{
		Message: fmt.Sprintf("User %s is now an admin", user.Username),
	})
}
