package repository

import (
	"context"

	"github.com/chedeval/progeval/internal/evaluation"
)

// SearchLimit caps search results.
const SearchLimit = 50

// Repository persists evaluation records and their responses.
type Repository interface {
	Get(ctx context.Context, refNo string) (*evaluation.Record, error)
	// Create inserts a new record; evaluation.ErrRefNoTaken when refNo exists.
	Create(ctx context.Context, r *evaluation.Record) error
	// Update overwrites the editable fields of the record matched by refNo.
	Update(ctx context.Context, r *evaluation.Record) error
	// List returns every record, most recently updated first.
	List(ctx context.Context) ([]evaluation.Record, error)
	// Search matches q case-insensitively against personnel name, refNo,
	// institution and email, most recently updated first.
	Search(ctx context.Context, q string, limit int) ([]evaluation.Record, error)

	Responses(ctx context.Context, refNo string) (evaluation.ResponseMap, error)
	// ReplaceResponses atomically swaps the record's whole response set.
	ReplaceResponses(ctx context.Context, refNo string, rs evaluation.ResponseMap) error
}
