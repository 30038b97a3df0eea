package catalog

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Rows is the raw reference data as read from a store or seed file.
type Rows struct {
	Documents []RegulatoryDocument
	Programs  []AcademicProgram
	Sections  []Section
	Items     []RequirementItem
}

// Catalog is an immutable, validated snapshot of the reference data.
// Documents and Programs keep the order they were supplied in; that order is
// the "catalog order" used for tie-breaks.
type Catalog struct {
	Documents []RegulatoryDocument
	Programs  []AcademicProgram

	docIndex      map[string]int
	programIndex  map[string]int
	sectionsByDoc map[string][]Section
	itemsBySect   map[string][]RequirementItem
}

// Build validates rows and indexes them. Malformed rows, and sections or items
// that point at a missing parent, are dropped and reported.
func Build(rows Rows) (*Catalog, []RowError) {
	var rejected []RowError
	c := &Catalog{
		docIndex:      map[string]int{},
		programIndex:  map[string]int{},
		sectionsByDoc: map[string][]Section{},
		itemsBySect:   map[string][]RequirementItem{},
	}

	for _, d := range rows.Documents {
		if err := validate.Struct(d); err != nil {
			rejected = append(rejected, RowError{Kind: "cmo", ID: d.ID, Err: err})
			continue
		}
		if _, dup := c.docIndex[d.ID]; dup {
			rejected = append(rejected, RowError{Kind: "cmo", ID: d.ID, Err: fmt.Errorf("duplicate id")})
			continue
		}
		if d.ProgramIDs == nil {
			d.ProgramIDs = []string{}
		}
		c.docIndex[d.ID] = len(c.Documents)
		c.Documents = append(c.Documents, d)
	}

	for _, p := range rows.Programs {
		if err := validate.Struct(p); err != nil {
			rejected = append(rejected, RowError{Kind: "program", ID: p.ID, Err: err})
			continue
		}
		if _, dup := c.programIndex[p.ID]; dup {
			rejected = append(rejected, RowError{Kind: "program", ID: p.ID, Err: fmt.Errorf("duplicate id")})
			continue
		}
		c.programIndex[p.ID] = len(c.Programs)
		c.Programs = append(c.Programs, p)
	}

	sectionOwner := map[string]string{}
	for _, s := range rows.Sections {
		if err := validate.Struct(s); err != nil {
			rejected = append(rejected, RowError{Kind: "section", ID: s.ID, Err: err})
			continue
		}
		if _, ok := c.docIndex[s.DocumentID]; !ok {
			rejected = append(rejected, RowError{Kind: "section", ID: s.ID, Err: fmt.Errorf("unknown cmo %q", s.DocumentID)})
			continue
		}
		sectionOwner[s.ID] = s.DocumentID
		c.sectionsByDoc[s.DocumentID] = append(c.sectionsByDoc[s.DocumentID], s)
	}

	for _, it := range rows.Items {
		if err := validate.Struct(it); err != nil {
			rejected = append(rejected, RowError{Kind: "requirement", ID: it.ID, Err: err})
			continue
		}
		owner, ok := sectionOwner[it.SectionID]
		if !ok || owner != it.DocumentID {
			rejected = append(rejected, RowError{Kind: "requirement", ID: it.ID, Err: fmt.Errorf("unknown section %q for cmo %q", it.SectionID, it.DocumentID)})
			continue
		}
		c.itemsBySect[it.SectionID] = append(c.itemsBySect[it.SectionID], it)
	}

	for id := range c.sectionsByDoc {
		ss := c.sectionsByDoc[id]
		sort.SliceStable(ss, func(i, j int) bool { return ss[i].SortOrder < ss[j].SortOrder })
	}
	for id := range c.itemsBySect {
		items := c.itemsBySect[id]
		sort.SliceStable(items, func(i, j int) bool { return items[i].SortOrder < items[j].SortOrder })
	}
	return c, rejected
}

// Document looks up a document by id.
func (c *Catalog) Document(id string) (RegulatoryDocument, bool) {
	i, ok := c.docIndex[id]
	if !ok {
		return RegulatoryDocument{}, false
	}
	return c.Documents[i], true
}

func (c *Catalog) Program(id string) (AcademicProgram, bool) {
	i, ok := c.programIndex[id]
	if !ok {
		return AcademicProgram{}, false
	}
	return c.Programs[i], true
}

// Sections returns a document's sections ordered by sortOrder.
func (c *Catalog) Sections(documentID string) []Section {
	return c.sectionsByDoc[documentID]
}

// Items returns a section's requirement items ordered by sortOrder.
func (c *Catalog) Items(sectionID string) []RequirementItem {
	return c.itemsBySect[sectionID]
}

// Rows flattens the snapshot back into rows, e.g. for export.
func (c *Catalog) Rows() Rows {
	out := Rows{Documents: c.Documents, Programs: c.Programs}
	for _, d := range c.Documents {
		for _, s := range c.sectionsByDoc[d.ID] {
			out.Sections = append(out.Sections, s)
			out.Items = append(out.Items, c.itemsBySect[s.ID]...)
		}
	}
	return out
}
