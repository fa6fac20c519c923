package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"library-backend/internal/middleware"
	"library-backend/internal/services"
	"library-backend/utils/response"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Services struct {
	Auth    *services.AuthService
	Users   *services.UserService
	Catalog *services.CatalogService
	Lending *services.LendingService
}

type RouterConfig struct {
	CORSOrigin string
}

func NewRouter(svc Services, db Pinger, cfg RouterConfig, logger *slog.Logger) http.Handler {
	authMiddleware := middleware.NewAuthMiddleware(svc.Auth, logger)
	authHandler := NewAuthHandler(svc.Auth, logger)
	bookHandler := NewBookHandler(svc.Catalog, svc.Lending, logger)
	adminHandler := NewAdminHandler(svc.Auth, svc.Users, svc.Catalog, svc.Lending, logger)

	router := http.NewServeMux()

	router.HandleFunc("GET /health", health(db))

	router.HandleFunc("POST /api/auth/signup", authHandler.RegisterUser)
	router.HandleFunc("POST /api/auth/login", authHandler.LoginUser)
	router.Handle("GET /api/auth/me", authMiddleware.RequireAuth(http.HandlerFunc(authHandler.GetMe)))

	router.Handle("GET /api/books", authMiddleware.RequireAuth(http.HandlerFunc(bookHandler.ListBooks)))
	router.Handle("GET /api/user/borrowed", authMiddleware.RequireAuth(http.HandlerFunc(bookHandler.BorrowedBooks)))

	router.Handle("GET /api/admin/users", authMiddleware.RequireAdmin(http.HandlerFunc(adminHandler.ListUsers)))
	router.Handle("PUT /api/admin/books", authMiddleware.RequireAdmin(http.HandlerFunc(adminHandler.AddBooks)))
	router.Handle("POST /api/admin/lend", authMiddleware.RequireAdmin(http.HandlerFunc(adminHandler.LendBook)))
	router.Handle("POST /api/admin/return/{record_id}", authMiddleware.RequireAdmin(http.HandlerFunc(adminHandler.ReturnBook)))

	// Guarded by the bootstrap key in the path rather than a token.
	router.HandleFunc("POST /api/admin/create_admin/{access_key}", adminHandler.CreateAdmin)

	var handler http.Handler = router
	if cfg.CORSOrigin != "" {
		handler = middleware.CORS(cfg.CORSOrigin)(handler)
	}
	return middleware.RequestLogger(logger)(handler)
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
		response.Success(w, map[string]string{"status": "ok"}, "database reachable")
	}
}
