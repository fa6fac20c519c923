package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"library-backend/internal/dto"
	"library-backend/internal/handlers"
	"library-backend/internal/middleware"
	"library-backend/internal/password"
	"library-backend/internal/services"
	"library-backend/internal/testutil"
	"library-backend/internal/token"
	"library-backend/utils/response"
)

const adminKey = "bootstrap-key"

type server struct {
	handler http.Handler
}

func newServer(t *testing.T) *server {
	t.Helper()

	db := testutil.NewDB(t)
	tokens, err := token.NewService("handler-secret", "HS256", time.Hour)
	require.NoError(t, err)

	users := services.NewUserService(db)
	catalog := services.NewCatalogService(db, 1)
	svc := handlers.Services{
		Auth:    services.NewAuthService(users, password.NewHasher(bcrypt.MinCost), tokens, adminKey),
		Users:   users,
		Catalog: catalog,
		Lending: services.NewLendingService(db, catalog, users, 15*24*time.Hour),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &server{handler: handlers.NewRouter(svc, db, handlers.RouterConfig{}, logger)}
}

func (s *server) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, response.Decode(rec.Body, &v), rec.Body.String())
	return v
}

func (s *server) signup(t *testing.T, username string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/signup", "", dto.RegisterUserRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password-" + username,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[dto.TokenResponse](t, rec).AccessToken
}

func (s *server) me(t *testing.T, bearer string) dto.UserResponse {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/auth/me", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[dto.UserResponse](t, rec)
}

func (s *server) admin(t *testing.T, username string) string {
	t.Helper()
	bearer := s.signup(t, username)
	rec := s.do(t, http.MethodPost, "/api/admin/create_admin/"+adminKey, "", dto.GrantAdminRequest{UserID: s.me(t, bearer).ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return bearer
}

func TestSignupLoginAndMe(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/signup", "", dto.RegisterUserRequest{
		Username: "legolas",
		Email:    "Legolas@Mirkwood.org",
		Password: "greenleaf",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	tok := decode[dto.TokenResponse](t, rec)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.NotEmpty(t, tok.AccessToken)

	me := s.me(t, tok.AccessToken)
	assert.Equal(t, "legolas", me.Username)
	assert.Equal(t, "legolas@mirkwood.org", me.Email)
	assert.False(t, me.IsAdmin)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", dto.LoginUserRequest{Email: "legolas@mirkwood.org", Password: "greenleaf"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, me.ID, s.me(t, decode[dto.TokenResponse](t, rec).AccessToken).ID)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", dto.LoginUserRequest{Email: "legolas@mirkwood.org", Password: "orc"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", dto.LoginUserRequest{Email: "gimli@erebor.org", Password: "axe"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignup_Rejections(t *testing.T) {
	s := newServer(t)
	s.signup(t, "sam")

	rec := s.do(t, http.MethodPost, "/api/auth/signup", "", dto.RegisterUserRequest{Username: "samwise", Email: "sam@example.com", Password: "pw"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/signup", "", dto.RegisterUserRequest{Username: "rosie", Email: "rosie@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/signup", "", dto.RegisterUserRequest{
		Username: "lobelia",
		Email:    "lobelia@example.com",
		Password: strings.Repeat("x", 100),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/signup", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	s := newServer(t)

	for _, path := range []string{"/api/auth/me", "/api/books", "/api/user/borrowed", "/api/admin/users"} {
		rec := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"), path)
	}

	rec := s.do(t, http.MethodGet, "/api/books", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutes_ForbiddenForReaders(t *testing.T) {
	s := newServer(t)
	reader := s.signup(t, "pippin")

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/admin/users", reader, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPut, "/api/admin/books", reader,
		dto.AddBooksRequest{Title: "Dune", Author: "Frank Herbert", Count: 1}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/admin/lend", reader,
		dto.LendBookRequest{UserID: 1, Title: "Dune", Author: "Frank Herbert"}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/admin/return/1", reader, nil).Code)
}

func TestCreateAdmin(t *testing.T) {
	s := newServer(t)
	bearer := s.signup(t, "aragorn")
	id := s.me(t, bearer).ID

	rec := s.do(t, http.MethodPost, "/api/admin/create_admin/wrong-key", "", dto.GrantAdminRequest{UserID: id})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, s.me(t, bearer).IsAdmin)

	rec = s.do(t, http.MethodPost, "/api/admin/create_admin/"+adminKey, "", dto.GrantAdminRequest{UserID: 9999})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/admin/create_admin/"+adminKey, "", dto.GrantAdminRequest{UserID: id})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[dto.MessageResponse](t, rec).Message, "aragorn")
	assert.True(t, s.me(t, bearer).IsAdmin)

	rec = s.do(t, http.MethodGet, "/api/admin/users", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.UsersResponse](t, rec).Users, 1)
}

func TestAddBooks(t *testing.T) {
	s := newServer(t)
	admin := s.admin(t, "elrond")

	rec := s.do(t, http.MethodPut, "/api/admin/books", admin, dto.AddBooksRequest{Title: "Dune", Author: "Frank Herbert", Count: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[dto.MessageResponse](t, rec).Message)

	rec = s.do(t, http.MethodPut, "/api/admin/books", admin, dto.AddBooksRequest{Title: "dune ", Author: "frank herbert", Count: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/books?available=false", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	books := decode[dto.BooksResponse](t, rec).Books
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)

	rec = s.do(t, http.MethodPut, "/api/admin/books", admin, dto.AddBooksRequest{Title: "Dune", Author: "Frank Herbert", Count: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/admin/books", admin, dto.AddBooksRequest{Author: "Frank Herbert", Count: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBooks_AvailabilityFilter(t *testing.T) {
	s := newServer(t)
	admin := s.admin(t, "galadriel")

	for title, count := range map[string]int{"Dune": 3, "Emma": 1} {
		rec := s.do(t, http.MethodPut, "/api/admin/books", admin, dto.AddBooksRequest{Title: title, Author: "Someone", Count: count})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/api/books", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	available := decode[dto.BooksResponse](t, rec).Books
	require.Len(t, available, 1)
	assert.Equal(t, "Dune", available[0].Title)

	rec = s.do(t, http.MethodGet, "/api/books?available=false", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.BooksResponse](t, rec).Books, 2)

	rec = s.do(t, http.MethodGet, "/api/books?available=maybe", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLendAndReturnFlow(t *testing.T) {
	s := newServer(t)
	admin := s.admin(t, "gandalf")
	reader := s.signup(t, "frodo")
	readerID := s.me(t, reader).ID

	rec := s.do(t, http.MethodPut, "/api/admin/books", admin, dto.AddBooksRequest{Title: "The Hobbit", Author: "J.R.R. Tolkien", Count: 3})
	require.Equal(t, http.StatusOK, rec.Code)

	lend := func() *httptest.ResponseRecorder {
		return s.do(t, http.MethodPost, "/api/admin/lend", admin, dto.LendBookRequest{
			UserID: readerID,
			Title:  "the hobbit",
			Author: "j.r.r. tolkien",
		})
	}

	rec = lend()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[dto.LendBookResponse](t, rec)
	assert.Equal(t, "The Hobbit", first.Title)
	assert.WithinDuration(t, time.Now().Add(15*24*time.Hour), first.ReturnBy, time.Minute)

	require.Equal(t, http.StatusOK, lend().Code)

	// One copy left, which stays on the shelf.
	rec = lend()
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/books", reader, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[dto.BooksResponse](t, rec).Books)

	rec = s.do(t, http.MethodGet, "/api/user/borrowed", reader, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	borrowed := decode[[]dto.BorrowedBookResponse](t, rec)
	require.Len(t, borrowed, 2)
	assert.Equal(t, first.RecordID, borrowed[0].BorrowedBookID)
	assert.False(t, borrowed[0].Returned)

	path := fmt.Sprintf("/api/admin/return/%d", first.RecordID)
	rec = s.do(t, http.MethodPost, path, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	returned := decode[dto.ReturnBookResponse](t, rec)
	assert.Equal(t, first.RecordID, returned.RecordID)
	assert.False(t, returned.ReturnedAt.IsZero())

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, path, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/admin/return/424242", admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/admin/return/abc", admin, nil).Code)

	rec = s.do(t, http.MethodGet, "/api/user/borrowed", reader, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	borrowed = decode[[]dto.BorrowedBookResponse](t, rec)
	require.Len(t, borrowed, 2)
	assert.True(t, borrowed[0].Returned)
	assert.NotNil(t, borrowed[0].ReturnedAt)
}

func TestLendBook_UnknownReferences(t *testing.T) {
	s := newServer(t)
	admin := s.admin(t, "saruman")

	rec := s.do(t, http.MethodPost, "/api/admin/lend", admin, dto.LendBookRequest{UserID: s.me(t, admin).ID, Title: "Missing", Author: "Nobody"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/admin/books", admin, dto.AddBooksRequest{Title: "Dune", Author: "Frank Herbert", Count: 5})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/admin/lend", admin, dto.LendBookRequest{UserID: 777, Title: "Dune", Author: "Frank Herbert"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndRequestID(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	health := decode[response.SuccessResponse](t, rec)
	assert.True(t, health.Success)
	assert.Equal(t, map[string]interface{}{"status": "ok"}, health.Data)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(middleware.RequestIDHeader))
}
