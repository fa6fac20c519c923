package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"library-backend/internal/database"
	"library-backend/internal/models"
	"library-backend/internal/password"
	"library-backend/internal/testutil"
	"library-backend/internal/token"
)

const (
	testAdminKey   = "bootstrap-key"
	testLoanPeriod = 15 * 24 * time.Hour
)

type fixture struct {
	db      *database.DB
	hasher  *password.Hasher
	tokens  *token.Service
	users   *UserService
	catalog *CatalogService
	lending *LendingService
	auth    *AuthService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithReserve(t, 1)
}

func newFixtureWithReserve(t *testing.T, reserve int) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	tokens, err := token.NewService("test-secret", "HS256", 7*time.Hour)
	require.NoError(t, err)

	f := &fixture{
		db:     db,
		hasher: password.NewHasher(bcrypt.MinCost),
		tokens: tokens,
	}
	f.users = NewUserService(db)
	f.catalog = NewCatalogService(db, reserve)
	f.lending = NewLendingService(db, f.catalog, f.users, testLoanPeriod)
	f.auth = NewAuthService(f.users, f.hasher, tokens, testAdminKey)
	return f
}

func (f *fixture) createUser(t *testing.T, username string, admin bool) *models.User {
	t.Helper()
	ctx := context.Background()

	hash, err := f.hasher.Hash("password-" + username)
	require.NoError(t, err)
	user, err := f.users.Create(ctx, username, username+"@example.com", hash)
	require.NoError(t, err)

	if admin {
		user, err = f.users.SetAdmin(ctx, user.ID, true)
		require.NoError(t, err)
	}
	return user
}

func (f *fixture) addBook(t *testing.T, title, author string, copies int) *models.Book {
	t.Helper()
	book, err := f.catalog.AddCopies(context.Background(), title, author, copies)
	require.NoError(t, err)
	return book
}

func (f *fixture) copiesOf(t *testing.T, bookID int64) int {
	t.Helper()
	book, err := f.catalog.findByID(context.Background(), f.db, bookID)
	require.NoError(t, err)
	return book.AvailableCopies
}
