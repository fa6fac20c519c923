package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"library-backend/internal/database"
	"library-backend/internal/models"
)

const borrowRecordsTable = "borrow_records"

var borrowRecordColumns = []interface{}{
	"id", "book_id", "borrower_id", "lender_id", "lending_date", "return_date",
	"returned", "returned_at", "created_at", "updated_at",
}

type LendRequest struct {
	Title      string
	Author     string
	BorrowerID int64
	LenderID   int64
}

// Loan pairs a borrow record with the book it refers to.
type Loan struct {
	Record models.BorrowRecord
	Book   models.Book
}

// LendingService is the lending ledger. Every copy count change happens in
// the same transaction as the record it belongs to.
type LendingService struct {
	db         *database.DB
	catalog    *CatalogService
	users      *UserService
	loanPeriod time.Duration
	now        func() time.Time
}

func NewLendingService(db *database.DB, catalog *CatalogService, users *UserService, loanPeriod time.Duration) *LendingService {
	return &LendingService{
		db:         db,
		catalog:    catalog,
		users:      users,
		loanPeriod: loanPeriod,
		now:        utcNow,
	}
}

// Lend takes one copy off the shelf and records who has it. The copy count
// is decremented with a guarded update, so of two concurrent lenders racing
// for the last lendable copy exactly one wins and the other sees
// ErrNoCopiesAvailable.
func (s *LendingService) Lend(ctx context.Context, req LendRequest) (*Loan, error) {
	var loan *Loan

	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := s.users.find(ctx, tx, goqu.C("id").Eq(req.BorrowerID)); err != nil {
			return fmt.Errorf("borrower %d: %w", req.BorrowerID, err)
		}
		if _, err := s.users.find(ctx, tx, goqu.C("id").Eq(req.LenderID)); err != nil {
			return fmt.Errorf("lender %d: %w", req.LenderID, err)
		}

		book, err := s.catalog.findByTitleAuthor(ctx, tx, req.Title, req.Author)
		if err != nil {
			return err
		}

		now := s.now()

		n, err := s.db.Update(ctx, tx, s.db.Builder().Update(booksTable).
			Set(goqu.Record{
				"available_copies": goqu.L("available_copies - 1"),
				"updated_at":       now,
			}).
			Where(
				goqu.C("id").Eq(book.ID),
				goqu.C("available_copies").Gt(s.catalog.Reserve()),
			))
		if err != nil {
			return fmt.Errorf("failed to take copy: %w", err)
		}
		if n == 0 {
			return ErrNoCopiesAvailable
		}

		record := models.BorrowRecord{
			BookID:      book.ID,
			BorrowerID:  req.BorrowerID,
			LenderID:    req.LenderID,
			LendingDate: now,
			ReturnDate:  now.Add(s.loanPeriod),
			Timestamps:  models.NewTimestamps(now),
		}

		record.ID, err = s.db.Insert(ctx, tx, s.db.Builder().Insert(borrowRecordsTable).Rows(goqu.Record{
			"book_id":      record.BookID,
			"borrower_id":  record.BorrowerID,
			"lender_id":    record.LenderID,
			"lending_date": record.LendingDate,
			"return_date":  record.ReturnDate,
			"returned":     false,
			"created_at":   record.CreatedAt,
			"updated_at":   record.UpdatedAt,
		}))
		if err != nil {
			return fmt.Errorf("failed to create borrow record: %w", err)
		}

		book.AvailableCopies--
		book.UpdatedAt = now
		loan = &Loan{Record: record, Book: *book}
		return nil
	})
	if err != nil {
		return nil, conflictOr(err)
	}

	return loan, nil
}

// MarkReturned moves an active record to returned and puts the copy back.
func (s *LendingService) MarkReturned(ctx context.Context, recordID int64) (*Loan, error) {
	var loan *Loan

	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		record, err := s.findRecord(ctx, tx, recordID)
		if err != nil {
			return err
		}
		if record.Returned {
			return ErrAlreadyReturned
		}

		now := s.now()

		n, err := s.db.Update(ctx, tx, s.db.Builder().Update(borrowRecordsTable).
			Set(goqu.Record{"returned": true, "returned_at": now, "updated_at": now}).
			Where(goqu.C("id").Eq(recordID), goqu.C("returned").IsFalse()))
		if err != nil {
			return fmt.Errorf("failed to mark record returned: %w", err)
		}
		if n == 0 {
			return ErrAlreadyReturned
		}

		_, err = s.db.Update(ctx, tx, s.db.Builder().Update(booksTable).
			Set(goqu.Record{
				"available_copies": goqu.L("available_copies + 1"),
				"updated_at":       now,
			}).
			Where(goqu.C("id").Eq(record.BookID)))
		if err != nil {
			return fmt.Errorf("failed to restore copy: %w", err)
		}

		book, err := s.catalog.findByID(ctx, tx, record.BookID)
		if err != nil {
			return err
		}

		record.Returned = true
		record.ReturnedAt = &now
		record.UpdatedAt = now
		loan = &Loan{Record: *record, Book: *book}
		return nil
	})
	if err != nil {
		return nil, conflictOr(err)
	}

	return loan, nil
}

// BorrowedBy lists a borrower's records, oldest first.
func (s *LendingService) BorrowedBy(ctx context.Context, borrowerID int64) ([]models.BorrowedBook, error) {
	borrowed := []models.BorrowedBook{}

	ds := s.db.Builder().
		From(borrowRecordsTable).
		Join(goqu.T(booksTable), goqu.On(goqu.I("books.id").Eq(goqu.I("borrow_records.book_id")))).
		Select(
			goqu.I("borrow_records.id"),
			goqu.I("books.title"),
			goqu.I("books.author"),
			goqu.I("borrow_records.lending_date"),
			goqu.I("borrow_records.return_date"),
			goqu.I("borrow_records.returned"),
			goqu.I("borrow_records.returned_at"),
		).
		Where(goqu.I("borrow_records.borrower_id").Eq(borrowerID)).
		Order(goqu.I("borrow_records.id").Asc())

	if err := s.db.FindAll(ctx, s.db, &borrowed, ds); err != nil {
		return nil, fmt.Errorf("failed to list borrowed books: %w", err)
	}
	return borrowed, nil
}

func (s *LendingService) findRecord(ctx context.Context, q database.Querier, id int64) (*models.BorrowRecord, error) {
	var record models.BorrowRecord
	ds := s.db.Builder().From(borrowRecordsTable).Select(borrowRecordColumns...).Where(goqu.C("id").Eq(id))

	if err := s.db.Find(ctx, q, &record, ds); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get borrow record: %w", err)
	}
	return &record, nil
}

func conflictOr(err error) error {
	if errors.Is(err, database.ErrTxConflict) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}
