package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chedeval/progeval/internal/catalog"
	"github.com/chedeval/progeval/internal/catalog/repository"
	"github.com/chedeval/progeval/internal/dbguard"
	"github.com/chedeval/progeval/pkg/logger"
)

// Options tunes guard deadlines and the snapshot cache.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// Service exposes catalog CRUD and a cached, validated snapshot used by the
// resolver and the checklist compiler.
type Service struct {
	repo  repository.Repository
	guard *dbguard.Guard
	opts  Options

	mu       sync.Mutex
	snap     *catalog.Catalog
	loadedAt time.Time
	gen      uint64 // bumped by invalidate; a load started under an older gen is not cached
	now      func() time.Time
}

func New(repo repository.Repository, guard *dbguard.Guard, opts Options) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	return &Service{repo: repo, guard: guard, opts: opts, now: time.Now}
}

// NewMemoryService returns a Service over an in-memory repository.
func NewMemoryService() *Service {
	return New(repository.NewMemoryRepo(), dbguard.New(nil, 0), Options{})
}

// ValidationError reports a missing or malformed field on a catalog row.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string { return "missing required field: " + e.Field }

func (s *Service) ListPrograms(ctx context.Context) ([]catalog.AcademicProgram, error) {
	return dbguard.Run(ctx, s.guard, "programs.list", s.opts.ReadTimeout, s.repo.ListPrograms)
}

// SaveProgram creates the program when p.ID is empty and updates it otherwise.
func (s *Service) SaveProgram(ctx context.Context, p *catalog.AcademicProgram) (created bool, err error) {
	p.Code = strings.TrimSpace(p.Code)
	p.Name = strings.TrimSpace(p.Name)
	switch {
	case p.Code == "":
		return false, &ValidationError{Field: "code"}
	case p.Name == "":
		return false, &ValidationError{Field: "name"}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
		created = true
		err = s.guard.Exec(ctx, "programs.create", s.opts.WriteTimeout, func(ctx context.Context) error {
			return s.repo.CreateProgram(ctx, p)
		})
	} else {
		err = s.guard.Exec(ctx, "programs.update", s.opts.WriteTimeout, func(ctx context.Context) error {
			return s.repo.UpdateProgram(ctx, p)
		})
	}
	if err == nil {
		s.invalidate()
	}
	return created, err
}

func (s *Service) DeleteProgram(ctx context.Context, id string) error {
	err := s.guard.Exec(ctx, "programs.delete", s.opts.WriteTimeout, func(ctx context.Context) error {
		return s.repo.DeleteProgram(ctx, id)
	})
	if err == nil {
		s.invalidate()
	}
	return err
}

func (s *Service) ListDocuments(ctx context.Context) ([]catalog.RegulatoryDocument, error) {
	return dbguard.Run(ctx, s.guard, "cmos.list", s.opts.ReadTimeout, s.repo.ListDocuments)
}

// SaveDocument creates the CMO when d.ID is empty and updates it otherwise.
func (s *Service) SaveDocument(ctx context.Context, d *catalog.RegulatoryDocument) (created bool, err error) {
	d.Number = strings.TrimSpace(d.Number)
	d.Title = strings.TrimSpace(d.Title)
	switch {
	case d.Number == "":
		return false, &ValidationError{Field: "number"}
	case d.Title == "":
		return false, &ValidationError{Field: "title"}
	case d.SeriesYear <= 0:
		return false, &ValidationError{Field: "series"}
	}
	d.ProgramIDs = dedupe(d.ProgramIDs)
	if d.ID == "" {
		d.ID = uuid.NewString()
		created = true
		err = s.guard.Exec(ctx, "cmos.create", s.opts.WriteTimeout, func(ctx context.Context) error {
			return s.repo.CreateDocument(ctx, d)
		})
	} else {
		err = s.guard.Exec(ctx, "cmos.update", s.opts.WriteTimeout, func(ctx context.Context) error {
			return s.repo.UpdateDocument(ctx, d)
		})
	}
	if err == nil {
		s.invalidate()
	}
	return created, err
}

func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	err := s.guard.Exec(ctx, "cmos.delete", s.opts.WriteTimeout, func(ctx context.Context) error {
		return s.repo.DeleteDocument(ctx, id)
	})
	if err == nil {
		s.invalidate()
	}
	return err
}

// Import validates rows and upserts the ones that pass. Rejected rows are
// returned, not stored.
func (s *Service) Import(ctx context.Context, rows catalog.Rows) ([]catalog.RowError, error) {
	c, rejected := catalog.Build(rows)
	err := s.guard.Exec(ctx, "catalog.import", s.opts.WriteTimeout, func(ctx context.Context) error {
		return s.repo.Import(ctx, c.Rows())
	})
	if err == nil {
		s.invalidate()
	}
	return rejected, err
}

// Snapshot returns the validated catalog, reloading it once the cache TTL has
// passed or after a local mutation.
func (s *Service) Snapshot(ctx context.Context) (*catalog.Catalog, error) {
	s.mu.Lock()
	if s.snap != nil && s.now().Sub(s.loadedAt) < s.opts.CacheTTL {
		c := s.snap
		s.mu.Unlock()
		return c, nil
	}
	gen := s.gen
	s.mu.Unlock()

	rows, err := dbguard.Run(ctx, s.guard, "catalog.load", s.opts.ReadTimeout, s.loadRows)
	if err != nil {
		return nil, err
	}
	c, rejected := catalog.Build(rows)
	for _, r := range rejected {
		logger.Warnf("catalog: skipping malformed row: %v", r)
	}

	s.mu.Lock()
	if s.gen == gen {
		s.snap = c
		s.loadedAt = s.now()
	}
	s.mu.Unlock()
	return c, nil
}

func (s *Service) loadRows(ctx context.Context) (catalog.Rows, error) {
	var (
		rows catalog.Rows
		err  error
	)
	if rows.Documents, err = s.repo.ListDocuments(ctx); err != nil {
		return rows, err
	}
	if rows.Programs, err = s.repo.ListPrograms(ctx); err != nil {
		return rows, err
	}
	if rows.Sections, err = s.repo.ListSections(ctx); err != nil {
		return rows, err
	}
	rows.Items, err = s.repo.ListItems(ctx)
	return rows, err
}

// ProgramsForDocuments resolves the programs associated with the given CMOs.
func (s *Service) ProgramsForDocuments(ctx context.Context, documentIDs []string) ([]catalog.AcademicProgram, error) {
	c, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := []catalog.AcademicProgram{}
	for _, id := range c.ProgramsForDocuments(documentIDs) {
		if p, ok := c.Program(id); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// DocumentsForPrograms resolves the CMOs associated with the given programs.
func (s *Service) DocumentsForPrograms(ctx context.Context, programIDs []string) ([]catalog.RegulatoryDocument, error) {
	c, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := []catalog.RegulatoryDocument{}
	for _, id := range c.DocumentsForPrograms(programIDs) {
		if d, ok := c.Document(id); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Service) invalidate() {
	s.mu.Lock()
	s.snap = nil
	s.gen++
	s.mu.Unlock()
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
