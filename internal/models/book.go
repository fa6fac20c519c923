package models

type Book struct {
	ID int64 `db:"id" json:"id"`

	Title           string `db:"title" json:"title"`
	Author          string `db:"author" json:"author"`
	AvailableCopies int    `db:"available_copies" json:"available_copies"`

	Timestamps
}
