// Package importer bulk loads catalog copies from CSV.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	"library-backend/internal/models"
)

// Entry is one CSV row: title,author,count. Line is the physical line the
// row starts on.
type Entry struct {
	Line   int
	Title  string
	Author string
	Count  int
}

type CopyAdder interface {
	AddCopies(ctx context.Context, title, author string, count int) (*models.Book, error)
}

type Result struct {
	Imported int
	Failed   int
}

// Parse reads title,author,count rows. A first row whose count column is not
// a number is treated as a header. Every bad row is reported, not just the first.
func Parse(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	var (
		entries []Entry
		errs    *multierror.Error
		rows    int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rows++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) && errors.Is(parseErr.Err, csv.ErrFieldCount) {
				errs = multierror.Append(errs, fmt.Errorf("line %d: %w", parseErr.StartLine, parseErr.Err))
				continue
			}
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}

		// Quoted fields may span lines, so report where the row starts.
		line, _ := reader.FieldPos(0)

		count, err := strconv.Atoi(strings.TrimSpace(record[2]))
		if err != nil {
			if rows == 1 {
				continue
			}
			errs = multierror.Append(errs, fmt.Errorf("line %d: invalid count %q", line, record[2]))
			continue
		}

		entries = append(entries, Entry{
			Line:   line,
			Title:  record[0],
			Author: record[1],
			Count:  count,
		})
	}

	return entries, errs.ErrorOrNil()
}

// Import adds each entry in order and keeps going past failures. The
// returned error aggregates every failed row.
func Import(ctx context.Context, catalog CopyAdder, entries []Entry) (Result, error) {
	var (
		res  Result
		errs *multierror.Error
	)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := catalog.AddCopies(ctx, e.Title, e.Author, e.Count); err != nil {
			res.Failed++
			errs = multierror.Append(errs, fmt.Errorf("line %d (%s by %s): %w", e.Line, e.Title, e.Author, err))
			continue
		}
		res.Imported++
	}
	return res, errs.ErrorOrNil()
}
