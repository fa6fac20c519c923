package models

import (
	"time"
)

type BorrowStatus string

const (
	BorrowActive   BorrowStatus = "active"
	BorrowReturned BorrowStatus = "returned"
)

// BorrowRecord moves from active to returned exactly once.
type BorrowRecord struct {
	ID int64 `db:"id" json:"id"`

	BookID     int64 `db:"book_id" json:"book_id"`
	BorrowerID int64 `db:"borrower_id" json:"borrower_id"`
	LenderID   int64 `db:"lender_id" json:"lender_id"`

	LendingDate time.Time  `db:"lending_date" json:"lending_date"`
	ReturnDate  time.Time  `db:"return_date" json:"return_date"`
	Returned    bool       `db:"returned" json:"returned"`
	ReturnedAt  *time.Time `db:"returned_at" json:"returned_at,omitempty"`

	Timestamps
}

func (r *BorrowRecord) Status() BorrowStatus {
	if r.Returned {
		return BorrowReturned
	}
	return BorrowActive
}

// BorrowedBook is a borrow record joined with its book.
type BorrowedBook struct {
	RecordID     int64      `db:"id"`
	Title        string     `db:"title"`
	Author       string     `db:"author"`
	BorrowedDate time.Time  `db:"lending_date"`
	ReturnDate   time.Time  `db:"return_date"`
	Returned     bool       `db:"returned"`
	ReturnedAt   *time.Time `db:"returned_at"`
}
