package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"library-backend/internal/database"
	"library-backend/internal/middleware"
	"library-backend/internal/services"
	"library-backend/utils/response"
)

// writeServiceError maps service errors to HTTP statuses. Anything it does
// not recognise is logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		response.Error(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, services.ErrUnauthenticated):
		response.Error(w, http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, services.ErrForbidden):
		response.Error(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, services.ErrUserNotFound):
		response.Error(w, http.StatusNotFound, "User not found")
	case errors.Is(err, services.ErrBookNotFound):
		response.Error(w, http.StatusNotFound, "Book not found")
	case errors.Is(err, services.ErrRecordNotFound):
		response.Error(w, http.StatusNotFound, "Borrow record not found")
	case errors.Is(err, services.ErrNoCopiesAvailable):
		response.Error(w, http.StatusConflict, "No copies available")
	case errors.Is(err, services.ErrAlreadyReturned):
		response.Error(w, http.StatusConflict, "Book already returned")
	case errors.Is(err, database.ErrTxConflict):
		response.Error(w, http.StatusConflict, "Request conflicted, retry")
	case errors.Is(err, services.ErrConflict):
		response.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidArgument):
		response.Error(w, http.StatusBadRequest, err.Error())
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		response.Error(w, http.StatusInternalServerError, "Internal server error")
	}
}
