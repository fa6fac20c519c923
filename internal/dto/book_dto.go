package dto

import (
	"time"
)

type BookResponse struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

type BooksResponse struct {
	Books []BookResponse `json:"books"`
}

type AddBooksRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Count  int    `json:"count"`
}

type LendBookRequest struct {
	UserID int64  `json:"user_id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

type LendBookResponse struct {
	RecordID int64     `json:"record_id"`
	Title    string    `json:"title"`
	Author   string    `json:"author"`
	ReturnBy time.Time `json:"return_by"`
}

type ReturnBookResponse struct {
	RecordID   int64     `json:"record_id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	ReturnedAt time.Time `json:"returned_at"`
}

type BorrowedBookResponse struct {
	BorrowedBookID int64      `json:"borrowed_book_id"`
	Title          string     `json:"title"`
	Author         string     `json:"author"`
	BorrowedDate   time.Time  `json:"borrowed_date"`
	ReturnDate     time.Time  `json:"return_date"`
	Returned       bool       `json:"returned"`
	ReturnedAt     *time.Time `json:"returned_at,omitempty"`
}
