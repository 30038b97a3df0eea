// Package checklist merges the sections of several CMOs into one ordered
// evaluation checklist.
package checklist

import (
	"sort"

	"github.com/chedeval/progeval/internal/catalog"
)

// Item is a requirement tagged with the CMO it came from.
type Item struct {
	ID                  string `json:"id"`
	SectionID           string `json:"section_id"`
	Description         string `json:"description"`
	RequiredEvidence    string `json:"required_evidence"`
	SortOrder           int    `json:"sort_order"`
	SourceDocumentID    string `json:"cmo_id"`
	SourceDocumentLabel string `json:"cmo_number"`
}

// MergedSection groups every selected CMO's sections that share a title.
type MergedSection struct {
	Title     string `json:"title"`
	SortOrder int    `json:"sort_order"`
	Items     []Item `json:"items"`
}

// Compile merges the sections of documentIDs, taken in the order given.
// Sections are grouped by exact title; a group takes the sort order of the
// first section seen with that title. Items are appended document by document,
// each document's items in their own sort order. Unknown and repeated ids are
// skipped. The result is sorted stably by sort order.
func Compile(c *catalog.Catalog, documentIDs []string) []MergedSection {
	out := []MergedSection{}
	if c == nil {
		return out
	}
	byTitle := map[string]int{}
	seen := map[string]bool{}
	for _, docID := range documentIDs {
		if seen[docID] {
			continue
		}
		seen[docID] = true
		doc, ok := c.Document(docID)
		if !ok {
			continue
		}
		label := doc.Label()
		// one document may carry several sections with the same title
		pending := map[int][]Item{}
		var groups []int
		for _, s := range c.Sections(docID) {
			idx, ok := byTitle[s.Title]
			if !ok {
				idx = len(out)
				byTitle[s.Title] = idx
				out = append(out, MergedSection{Title: s.Title, SortOrder: s.SortOrder, Items: []Item{}})
			}
			if _, ok := pending[idx]; !ok {
				groups = append(groups, idx)
				pending[idx] = []Item{}
			}
			for _, it := range c.Items(s.ID) {
				pending[idx] = append(pending[idx], Item{
					ID:                  it.ID,
					SectionID:           it.SectionID,
					Description:         it.Description,
					RequiredEvidence:    it.RequiredEvidence,
					SortOrder:           it.SortOrder,
					SourceDocumentID:    doc.ID,
					SourceDocumentLabel: label,
				})
			}
		}
		for _, idx := range groups {
			items := pending[idx]
			sort.SliceStable(items, func(i, j int) bool { return items[i].SortOrder < items[j].SortOrder })
			out[idx].Items = append(out[idx].Items, items...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

// ItemIDs lists every item id in checklist order.
func ItemIDs(sections []MergedSection) []string {
	var ids []string
	for _, s := range sections {
		for _, it := range s.Items {
			ids = append(ids, it.ID)
		}
	}
	return ids
}
