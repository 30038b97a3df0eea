package checklist

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/chedeval/progeval/internal/catalog"
)

func build(t *testing.T, rows catalog.Rows) *catalog.Catalog {
	t.Helper()
	c, rejected := catalog.Build(rows)
	require.Empty(t, rejected)
	return c
}

type titled struct {
	Title string
	Items []string
}

func shape(sections []MergedSection) []titled {
	out := []titled{}
	for _, s := range sections {
		ts := titled{Title: s.Title, Items: []string{}}
		for _, it := range s.Items {
			ts.Items = append(ts.Items, it.ID)
		}
		out = append(out, ts)
	}
	return out
}

func twoDocs() catalog.Rows {
	return catalog.Rows{
		Documents: []catalog.RegulatoryDocument{
			{ID: "D1", Number: "CMO No. 17", Title: "BSBA", SeriesYear: 2017},
			{ID: "D2", Number: "CMO No. 105", Title: "BSIT", SeriesYear: 2017},
		},
		Sections: []catalog.Section{
			{ID: "D1-A", DocumentID: "D1", Title: "A", SortOrder: 1},
			{ID: "D1-B", DocumentID: "D1", Title: "B", SortOrder: 2},
			{ID: "D2-B", DocumentID: "D2", Title: "B", SortOrder: 1},
			{ID: "D2-C", DocumentID: "D2", Title: "C", SortOrder: 3},
		},
		Items: []catalog.RequirementItem{
			{ID: "a1", DocumentID: "D1", SectionID: "D1-A", SortOrder: 1},
			{ID: "b2", DocumentID: "D1", SectionID: "D1-B", SortOrder: 2},
			{ID: "b1", DocumentID: "D1", SectionID: "D1-B", SortOrder: 1},
			{ID: "b9", DocumentID: "D2", SectionID: "D2-B", SortOrder: 0},
			{ID: "c1", DocumentID: "D2", SectionID: "D2-C", SortOrder: 1},
		},
	}
}

func TestCompile_MergeOrdering(t *testing.T) {
	c := build(t, twoDocs())
	got := shape(Compile(c, []string{"D1", "D2"}))
	want := []titled{
		{Title: "A", Items: []string{"a1"}},
		{Title: "B", Items: []string{"b1", "b2", "b9"}},
		{Title: "C", Items: []string{"c1"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("compile mismatch (-want +got):\n%s", diff)
	}
}

func TestCompile_InputOrderDrivesGroupSortOrder(t *testing.T) {
	c := build(t, twoDocs())
	sections := Compile(c, []string{"D2", "D1"})
	got := shape(sections)
	// B is first seen in D2 with sort order 1, tying A; the stable sort keeps B first.
	want := []titled{
		{Title: "B", Items: []string{"b9", "b1", "b2"}},
		{Title: "A", Items: []string{"a1"}},
		{Title: "C", Items: []string{"c1"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("compile mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 1, sections[0].SortOrder)
}

func TestCompile_RepeatedTitleWithinDocumentSortsItems(t *testing.T) {
	c := build(t, catalog.Rows{
		Documents: []catalog.RegulatoryDocument{
			{ID: "D1", Number: "CMO No. 17", Title: "BSBA", SeriesYear: 2017},
			{ID: "D2", Number: "CMO No. 105", Title: "BSIT", SeriesYear: 2017},
		},
		Sections: []catalog.Section{
			{ID: "D1-F1", DocumentID: "D1", Title: "Faculty", SortOrder: 1},
			{ID: "D1-F2", DocumentID: "D1", Title: "Faculty", SortOrder: 2},
			{ID: "D2-F", DocumentID: "D2", Title: "Faculty", SortOrder: 1},
		},
		Items: []catalog.RequirementItem{
			{ID: "f3", DocumentID: "D1", SectionID: "D1-F1", SortOrder: 3},
			{ID: "f1", DocumentID: "D1", SectionID: "D1-F2", SortOrder: 1},
			{ID: "f2", DocumentID: "D1", SectionID: "D1-F2", SortOrder: 2},
			{ID: "g1", DocumentID: "D2", SectionID: "D2-F", SortOrder: 1},
		},
	})
	got := shape(Compile(c, []string{"D1", "D2"}))
	want := []titled{{Title: "Faculty", Items: []string{"f1", "f2", "f3", "g1"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("compile mismatch (-want +got):\n%s", diff)
	}
}

func TestCompile_Scenario(t *testing.T) {
	c := build(t, catalog.Rows{
		Documents: []catalog.RegulatoryDocument{
			{ID: "D1", Number: "CMO No. 1", Title: "One", SeriesYear: 2020, ProgramIDs: []string{"P1"}},
			{ID: "D2", Number: "CMO No. 2", Title: "Two", SeriesYear: 2020, ProgramIDs: []string{"P1", "P2"}},
		},
		Sections: []catalog.Section{
			{ID: "S1", DocumentID: "D1", Title: "Legal Basis", SortOrder: 1},
			{ID: "S2", DocumentID: "D2", Title: "Legal Basis", SortOrder: 1},
		},
		Items: []catalog.RequirementItem{
			{ID: "R1", DocumentID: "D1", SectionID: "S1", SortOrder: 1},
			{ID: "R2", DocumentID: "D2", SectionID: "S2", SortOrder: 1},
		},
	})
	require.ElementsMatch(t, []string{"P1", "P2"}, c.ProgramsForDocuments([]string{"D1", "D2"}))

	sections := Compile(c, []string{"D1", "D2"})
	require.Equal(t, []titled{{Title: "Legal Basis", Items: []string{"R1", "R2"}}}, shape(sections))
	require.Equal(t, "D1", sections[0].Items[0].SourceDocumentID)
	require.Equal(t, "CMO No. 1 - One", sections[0].Items[0].SourceDocumentLabel)
	require.Equal(t, "CMO No. 2 - Two", sections[0].Items[1].SourceDocumentLabel)
}

func TestCompile_EdgeCases(t *testing.T) {
	c := build(t, twoDocs())
	require.Empty(t, Compile(c, nil))
	require.Empty(t, Compile(c, []string{"nonexistent-id"}))
	require.Empty(t, Compile(nil, []string{"D1"}))

	// a document without sections contributes nothing
	rows := twoDocs()
	rows.Documents = append(rows.Documents, catalog.RegulatoryDocument{ID: "D3", Number: "CMO No. 9", Title: "Empty", SeriesYear: 2001})
	c = build(t, rows)
	require.Equal(t, shape(Compile(c, []string{"D1"})), shape(Compile(c, []string{"D3", "D1"})))

	// repeated ids do not duplicate items
	require.Equal(t, shape(Compile(c, []string{"D1", "D2"})), shape(Compile(c, []string{"D1", "D2", "D1"})))
}

func TestCompile_Idempotent(t *testing.T) {
	c := build(t, twoDocs())
	first := Compile(c, []string{"D1", "D2"})
	second := Compile(c, []string{"D1", "D2"})
	if diff := cmp.Diff(first, second, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("compile not idempotent:\n%s", diff)
	}
	require.Equal(t, []string{"a1", "b1", "b2", "b9", "c1"}, ItemIDs(first))
}
