package snowapi

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Result is the result set of one executed statement. It holds a single
// page of raw rows at a time; moving to another page replaces them.
// A Result is not safe for concurrent use.
type Result struct {
	service *Service

	id         string
	total      int64
	page       int
	pageTotal  int
	partitions []PartitionMeta
	schema     Schema
	data       [][]*string
	createdOn  time.Time
	executed   bool
}

// ID returns the statement handle.
func (r *Result) ID() string { return r.id }

// Total returns the number of rows across all pages.
func (r *Result) Total() int64 { return r.total }

// Page returns the current page number, starting at 1.
func (r *Result) Page() int { return r.page }

// PageTotal returns the number of pages.
func (r *Result) PageTotal() int { return r.pageTotal }

// Partitions returns the per-page metadata sent with the first page.
func (r *Result) Partitions() []PartitionMeta { return r.partitions }

// Schema returns the column schema.
func (r *Result) Schema() Schema { return r.schema }

// RawRows returns the current page undecoded.
func (r *Result) RawRows() [][]*string { return r.data }

// CreatedOn returns when the server created the result.
func (r *Result) CreatedOn() time.Time { return r.createdOn }

// Executed reports whether the statement completed successfully.
func (r *Result) Executed() bool { return r.executed }

// Rows decodes the current page. Nothing is cached; each call decodes
// again. Rows returns nil when there is no schema or no data.
func (r *Result) Rows() ([]Row, error) {
	if r.schema == nil || r.data == nil {
		return nil, nil
	}
	rows := make([]Row, 0, len(r.data))
	for _, raw := range r.data {
		row, err := Decode(r.schema, raw)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *Result) First(ctx context.Context) (bool, error) {
	return r.GoToPage(ctx, 1)
}

func (r *Result) Previous(ctx context.Context) (bool, error) {
	return r.GoToPage(ctx, r.page-1)
}

func (r *Result) Next(ctx context.Context) (bool, error) {
	return r.GoToPage(ctx, r.page+1)
}

func (r *Result) Last(ctx context.Context) (bool, error) {
	return r.GoToPage(ctx, r.pageTotal)
}

// GoToPage loads page n. It returns false without contacting the server when
// the statement has not executed or n is outside 1..PageTotal(); page 0 is
// always refused.
func (r *Result) GoToPage(ctx context.Context, n int) (bool, error) {
	if !r.executed {
		return false, nil
	}
	if n < 1 || n > r.pageTotal {
		return false, nil
	}

	page, err := r.service.FetchPage(ctx, r.id, n)
	if err != nil {
		return false, err
	}
	if !page.Has("data") {
		return false, unacceptable("object %q not found", "data")
	}
	rows, err := page.Rows()
	if err != nil {
		return false, unacceptable("%v", err)
	}

	r.data = rows
	r.page = n
	logger.WithFields(logrus.Fields{"handle": r.id, "page": n, "rows": len(rows)}).Debug("page loaded")
	return true, nil
}

// Each calls fn for every row from the current page to the last, fetching
// pages as it goes. Iteration stops at the first error from fn.
func (r *Result) Each(ctx context.Context, fn func(Row) error) error {
	if !r.executed {
		return nil
	}
	for {
		rows, err := r.Rows()
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := fn(row); err != nil {
				return err
			}
		}
		ok, err := r.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}
