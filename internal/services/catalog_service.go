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

const booksTable = "books"

var bookColumns = []interface{}{
	"id", "title", "author", "available_copies", "created_at", "updated_at",
}

type CatalogService struct {
	db *database.DB
	// reserve copies of every title never leave the shelf; a book is
	// available only while available_copies > reserve.
	reserve int
	now     func() time.Time
}

func NewCatalogService(db *database.DB, reserve int) *CatalogService {
	return &CatalogService{db: db, reserve: reserve, now: utcNow}
}

func (s *CatalogService) Reserve() int {
	return s.reserve
}

// FindByTitleAuthor matches title and author ignoring case and surrounding
// whitespace.
func (s *CatalogService) FindByTitleAuthor(ctx context.Context, title, author string) (*models.Book, error) {
	return s.findByTitleAuthor(ctx, s.db, title, author)
}

// AddCopies tops up the matching book or creates it. Two callers creating
// the same new title race on the unique index; the loser retries and
// lands on the increment path.
func (s *CatalogService) AddCopies(ctx context.Context, title, author string, count int) (*models.Book, error) {
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if title == "" || author == "" {
		return nil, fmt.Errorf("%w: title and author are required", ErrInvalidArgument)
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be a positive integer, got %d", ErrInvalidArgument, count)
	}

	var book *models.Book

	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		now := s.now()

		n, err := s.db.Update(ctx, tx, s.db.Builder().Update(booksTable).
			Set(goqu.Record{
				"available_copies": goqu.L("available_copies + ?", count),
				"updated_at":       now,
			}).
			Where(titleAuthorMatch(title, author)))
		if err != nil {
			return fmt.Errorf("failed to add copies: %w", err)
		}

		if n == 0 {
			_, err = s.db.Insert(ctx, tx, s.db.Builder().Insert(booksTable).Rows(goqu.Record{
				"title":            title,
				"author":           author,
				"title_key":        normalize(title),
				"author_key":       normalize(author),
				"available_copies": count,
				"created_at":       now,
				"updated_at":       now,
			}))
			if err != nil {
				if database.IsUniqueViolation(err) {
					return fmt.Errorf("%w: %q by %q was created concurrently", database.ErrTxConflict, title, author)
				}
				return fmt.Errorf("failed to create book: %w", err)
			}
		}

		book, err = s.findByTitleAuthor(ctx, tx, title, author)
		return err
	})
	if err != nil {
		return nil, conflictOr(err)
	}

	return book, nil
}

// ListAvailable returns books with more than the reserved number of copies.
func (s *CatalogService) ListAvailable(ctx context.Context) ([]models.Book, error) {
	return s.list(ctx, goqu.C("available_copies").Gt(s.reserve))
}

func (s *CatalogService) ListAll(ctx context.Context) ([]models.Book, error) {
	return s.list(ctx, nil)
}

func (s *CatalogService) list(ctx context.Context, where exp.Expression) ([]models.Book, error) {
	books := []models.Book{}

	ds := s.db.Builder().From(booksTable).Select(bookColumns...).Order(goqu.C("id").Asc())
	if where != nil {
		ds = ds.Where(where)
	}

	if err := s.db.FindAll(ctx, s.db, &books, ds); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

func (s *CatalogService) findByTitleAuthor(ctx context.Context, q database.Querier, title, author string) (*models.Book, error) {
	return s.find(ctx, q, titleAuthorMatch(title, author))
}

func (s *CatalogService) findByID(ctx context.Context, q database.Querier, id int64) (*models.Book, error) {
	return s.find(ctx, q, goqu.C("id").Eq(id))
}

func (s *CatalogService) find(ctx context.Context, q database.Querier, where exp.Expression) (*models.Book, error) {
	var book models.Book
	ds := s.db.Builder().From(booksTable).Select(bookColumns...).Where(where).Limit(1)

	if err := s.db.Find(ctx, q, &book, ds); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return &book, nil
}

// titleAuthorMatch compares against the stored keys. Case folding happens
// only in normalize, never in SQL, whose LOWER differs per store.
func titleAuthorMatch(title, author string) exp.Expression {
	return goqu.And(
		goqu.C("title_key").Eq(normalize(title)),
		goqu.C("author_key").Eq(normalize(author)),
	)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
