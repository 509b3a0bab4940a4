// Package state persists per-directory frozen records.
//
// A record remembers which rule last governed a directory and which of the
// directory's direct children already carry that rule's tags. Stores are keyed
// by namespace directory path; the backing medium is up to the implementation.
package state

import (
	"context"
	"errors"

	"github.com/animus-labs/freezer/internal/domain"
)

// FileName is the sibling record file written into every processed directory.
const FileName = ".frozen"

var ErrNotFound = errors.New("record not found")

type Store interface {
	// Load returns ErrNotFound when no record exists and a *SchemaError when
	// the stored record is malformed. Other errors are I/O failures.
	Load(ctx context.Context, dir string) (domain.Record, error)
	Save(ctx context.Context, dir string, rec domain.Record) error
}

// LoadOrEmpty collapses every load failure into an empty record. valid is
// false whenever the empty record was substituted; cause carries the reason.
func LoadOrEmpty(ctx context.Context, store Store, dir string) (rec domain.Record, valid bool, cause error) {
	defer func() {
		if v := recover(); v != nil {
			rec, valid, cause = domain.EmptyRecord(), false, &PanicError{Value: v}
		}
	}()
	rec, err := store.Load(ctx, dir)
	if err != nil {
		return domain.EmptyRecord(), false, err
	}
	if rec.AppliedTags == nil {
		rec.AppliedTags = domain.TagSet{}
	}
	if rec.MarkerTags == nil {
		rec.MarkerTags = domain.TagSet{}
	}
	if rec.AffectedFiles == nil {
		rec.AffectedFiles = []string{}
	}
	return rec, true, nil
}

// PanicError wraps a panic raised by a store implementation during Load.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "record load panicked"
}

// Kind classifies a load failure for logging.
func Kind(err error) string {
	var schemaErr *SchemaError
	var panicErr *PanicError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "missing"
	case errors.As(err, &schemaErr):
		return "invalid"
	case errors.As(err, &panicErr):
		return "panic"
	default:
		return "io"
	}
}
