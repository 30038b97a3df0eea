package repository

import (
	"context"

	"github.com/chedeval/progeval/internal/catalog"
)

// Repository persists the reference catalog. Create is an upsert by id so a
// retried call with the same pre-generated id applies once; Update fails with
// catalog.ErrNotFound when the id does not exist.
type Repository interface {
	ListPrograms(ctx context.Context) ([]catalog.AcademicProgram, error)
	CreateProgram(ctx context.Context, p *catalog.AcademicProgram) error
	UpdateProgram(ctx context.Context, p *catalog.AcademicProgram) error
	DeleteProgram(ctx context.Context, id string) error

	ListDocuments(ctx context.Context) ([]catalog.RegulatoryDocument, error)
	CreateDocument(ctx context.Context, d *catalog.RegulatoryDocument) error
	UpdateDocument(ctx context.Context, d *catalog.RegulatoryDocument) error
	DeleteDocument(ctx context.Context, id string) error

	ListSections(ctx context.Context) ([]catalog.Section, error)
	ListItems(ctx context.Context) ([]catalog.RequirementItem, error)

	// Import upserts every row by id.
	Import(ctx context.Context, rows catalog.Rows) error
}
