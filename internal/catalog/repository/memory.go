package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chedeval/progeval/internal/catalog"
)

// MemoryRepo keeps the catalog in process; used by tests and when no
// relational store is configured.
type MemoryRepo struct {
	mu       sync.RWMutex
	programs map[string]catalog.AcademicProgram
	docs     map[string]catalog.RegulatoryDocument
	sections map[string]catalog.Section
	items    map[string]catalog.RequirementItem
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		programs: map[string]catalog.AcademicProgram{},
		docs:     map[string]catalog.RegulatoryDocument{},
		sections: map[string]catalog.Section{},
		items:    map[string]catalog.RequirementItem{},
	}
}

func (m *MemoryRepo) ListPrograms(ctx context.Context) ([]catalog.AcademicProgram, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]catalog.AcademicProgram, 0, len(m.programs))
	for _, p := range m.programs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryRepo) CreateProgram(ctx context.Context, p *catalog.AcademicProgram) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if prev, ok := m.programs[p.ID]; ok {
		p.CreatedAt = prev.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.programs[p.ID] = *p
	return nil
}

func (m *MemoryRepo) UpdateProgram(ctx context.Context, p *catalog.AcademicProgram) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.programs[p.ID]
	if !ok {
		return catalog.ErrNotFound
	}
	p.CreatedAt = prev.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	m.programs[p.ID] = *p
	return nil
}

func (m *MemoryRepo) DeleteProgram(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.programs[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(m.programs, id)
	for did, d := range m.docs {
		if d.HasProgram(id) {
			d.ProgramIDs = without(d.ProgramIDs, id)
			m.docs[did] = d
		}
	}
	return nil
}

func (m *MemoryRepo) ListDocuments(ctx context.Context) ([]catalog.RegulatoryDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]catalog.RegulatoryDocument, 0, len(m.docs))
	for _, d := range m.docs {
		d.ProgramIDs = append([]string{}, d.ProgramIDs...)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SeriesYear != out[j].SeriesYear {
			return out[i].SeriesYear > out[j].SeriesYear
		}
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryRepo) CreateDocument(ctx context.Context, d *catalog.RegulatoryDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if prev, ok := m.docs[d.ID]; ok {
		d.CreatedAt = prev.CreatedAt
	} else {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	m.docs[d.ID] = *d
	return nil
}

func (m *MemoryRepo) UpdateDocument(ctx context.Context, d *catalog.RegulatoryDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.docs[d.ID]
	if !ok {
		return catalog.ErrNotFound
	}
	d.CreatedAt = prev.CreatedAt
	d.UpdatedAt = time.Now().UTC()
	m.docs[d.ID] = *d
	return nil
}

func (m *MemoryRepo) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(m.docs, id)
	for sid, s := range m.sections {
		if s.DocumentID == id {
			delete(m.sections, sid)
		}
	}
	for iid, it := range m.items {
		if it.DocumentID == id {
			delete(m.items, iid)
		}
	}
	return nil
}

func (m *MemoryRepo) ListSections(ctx context.Context) ([]catalog.Section, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]catalog.Section, 0, len(m.sections))
	for _, s := range m.sections {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryRepo) ListItems(ctx context.Context) ([]catalog.RequirementItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]catalog.RequirementItem, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SectionID != out[j].SectionID {
			return out[i].SectionID < out[j].SectionID
		}
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryRepo) Import(ctx context.Context, rows catalog.Rows) error {
	for i := range rows.Programs {
		if err := m.CreateProgram(ctx, &rows.Programs[i]); err != nil {
			return err
		}
	}
	for i := range rows.Documents {
		if err := m.CreateDocument(ctx, &rows.Documents[i]); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range rows.Sections {
		m.sections[s.ID] = s
	}
	for _, it := range rows.Items {
		m.items[it.ID] = it
	}
	return nil
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
