package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"library-backend/internal/database"
	"library-backend/internal/models"
)

const usersTable = "users"

var userColumns = []interface{}{
	"id", "username", "email", "password_hash", "is_admin", "created_at", "updated_at",
}

// UserService is the user directory. It does not check who is asking;
// callers gate admin-only operations.
type UserService struct {
	db  *database.DB
	now func() time.Time
}

func NewUserService(db *database.DB) *UserService {
	return &UserService{db: db, now: utcNow}
}

// Create inserts a user. The pre-checks give precise messages; the unique
// constraints are what actually guard against a concurrent duplicate.
func (s *UserService) Create(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)
	if username == "" || email == "" || passwordHash == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", ErrInvalidArgument)
	}

	if _, err := s.find(ctx, s.db, goqu.C("email").Eq(email)); err == nil {
		return nil, fmt.Errorf("%w: email already exists", ErrConflict)
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	if _, err := s.find(ctx, s.db, goqu.C("username").Eq(username)); err == nil {
		return nil, fmt.Errorf("%w: username already exists", ErrConflict)
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Timestamps:   models.NewTimestamps(s.now()),
	}

	id, err := s.db.Insert(ctx, s.db, s.db.Builder().Insert(usersTable).Rows(goqu.Record{
		"username":      user.Username,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"is_admin":      false,
		"created_at":    user.CreatedAt,
		"updated_at":    user.UpdatedAt,
	}))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username or email already exists", ErrConflict)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user.ID = id
	return user, nil
}

func (s *UserService) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return s.find(ctx, s.db, goqu.C("id").Eq(id))
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.find(ctx, s.db, goqu.C("email").Eq(normalizeEmail(email)))
}

func (s *UserService) ListAll(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	ds := s.db.Builder().From(usersTable).Select(userColumns...).Order(goqu.C("id").Asc())
	if err := s.db.FindAll(ctx, s.db, &users, ds); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SetAdmin flips the admin flag and returns the updated user.
func (s *UserService) SetAdmin(ctx context.Context, id int64, isAdmin bool) (*models.User, error) {
	var user *models.User

	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		now := s.now()
		n, err := s.db.Update(ctx, tx, s.db.Builder().Update(usersTable).
			Set(goqu.Record{"is_admin": isAdmin, "updated_at": now}).
			Where(goqu.C("id").Eq(id)))
		if err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		if n == 0 {
			return ErrUserNotFound
		}

		user, err = s.find(ctx, tx, goqu.C("id").Eq(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) find(ctx context.Context, q database.Querier, where exp.Expression) (*models.User, error) {
	var user models.User
	ds := s.db.Builder().From(usersTable).Select(userColumns...).Where(where).Limit(1)

	if err := s.db.Find(ctx, q, &user, ds); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
