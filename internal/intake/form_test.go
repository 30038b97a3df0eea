package intake

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/chedeval/progeval/internal/catalog"
	"github.com/chedeval/progeval/internal/evaluation"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, rejected := catalog.Build(catalog.Rows{
		Documents: []catalog.RegulatoryDocument{
			{ID: "D1", Number: "CMO No. 17", Title: "BSBA", SeriesYear: 2017, ProgramIDs: []string{"P1"}},
			{ID: "D2", Number: "CMO No. 105", Title: "BSIT", SeriesYear: 2017, ProgramIDs: []string{"P1", "P2"}},
			{ID: "D3", Number: "CMO No. 53", Title: "Psychology", SeriesYear: 2007},
		},
		Programs: []catalog.AcademicProgram{
			{ID: "P2", Code: "BSIT", Name: "BS INFORMATION TECHNOLOGY"},
			{ID: "P1", Code: "BSBA", Name: "BS BUSINESS ADMINISTRATION"},
		},
	})
	require.Empty(t, rejected)
	return c
}

var ignoreEmpty = cmpopts.EquateEmpty()

func TestReduce_DocumentsPickFirstProgramInCatalogOrder(t *testing.T) {
	c := testCatalog(t)
	got := Reduce(c, FormState{}, Event{Kind: DocumentsChanged, IDs: []string{"D2"}})
	want := FormState{
		SelectedCMOs:      []string{"D2"},
		SelectedPrograms:  []string{"P2"},
		SuggestedPrograms: []string{"P2", "P1"},
	}
	if diff := cmp.Diff(want, got, ignoreEmpty); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestReduce_KeepsProgramAlreadyAssociated(t *testing.T) {
	c := testCatalog(t)
	s := FormState{SelectedPrograms: []string{"P1"}}
	got := Reduce(c, s, Event{Kind: DocumentsChanged, IDs: []string{"D2"}})
	require.Equal(t, []string{"P1"}, got.SelectedPrograms)
	require.Equal(t, []string{"P2", "P1"}, got.SuggestedPrograms)
}

func TestReduce_DocumentWithoutProgramsLeavesSelection(t *testing.T) {
	c := testCatalog(t)
	s := FormState{SelectedPrograms: []string{"P2"}}
	got := Reduce(c, s, Event{Kind: DocumentsChanged, IDs: []string{"D3"}})
	require.Equal(t, []string{"P2"}, got.SelectedPrograms)
	require.Empty(t, got.SuggestedPrograms)
}

func TestReduce_ClearingDocumentsClearsSuggestions(t *testing.T) {
	c := testCatalog(t)
	s := Reduce(c, FormState{}, Event{Kind: DocumentsChanged, IDs: []string{"D1"}})
	require.Equal(t, []string{"P1"}, s.SelectedPrograms)

	got := Reduce(c, s, Event{Kind: DocumentsChanged})
	require.Empty(t, got.SelectedCMOs)
	require.Empty(t, got.SuggestedPrograms)
	require.Equal(t, []string{"P1"}, got.SelectedPrograms)
}

func TestReduce_ProgramsPickFirstDocument(t *testing.T) {
	c := testCatalog(t)
	got := Reduce(c, FormState{}, Event{Kind: ProgramsChanged, IDs: []string{"P1"}})
	want := FormState{
		SelectedCMOs:      []string{"D1"},
		SelectedPrograms:  []string{"P1"},
		SuggestedPrograms: []string{"P1"},
	}
	if diff := cmp.Diff(want, got, ignoreEmpty); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestReduce_ProgramsKeepAssociatedDocument(t *testing.T) {
	c := testCatalog(t)
	s := FormState{SelectedCMOs: []string{"D2"}}
	got := Reduce(c, s, Event{Kind: ProgramsChanged, IDs: []string{"P1"}})
	require.Equal(t, []string{"D2"}, got.SelectedCMOs)
}

func TestReduce_IsIdempotent(t *testing.T) {
	c := testCatalog(t)
	e := Event{Kind: DocumentsChanged, IDs: []string{"D1", "D2"}}
	once := Reduce(c, FormState{}, e)
	twice := Reduce(c, once, e)
	if diff := cmp.Diff(once, twice, ignoreEmpty); diff != "" {
		t.Fatalf("second application changed state:\n%s", diff)
	}

	p := Event{Kind: ProgramsChanged, IDs: []string{"P2"}}
	once = Reduce(c, FormState{}, p)
	twice = Reduce(c, once, p)
	if diff := cmp.Diff(once, twice, ignoreEmpty); diff != "" {
		t.Fatalf("second application changed state:\n%s", diff)
	}
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	c := testCatalog(t)
	in := FormState{SelectedCMOs: []string{"D3"}, SelectedPrograms: []string{"P9"}}
	_ = Reduce(c, in, Event{Kind: DocumentsChanged, IDs: []string{"D1"}})
	require.Equal(t, []string{"D3"}, in.SelectedCMOs)
	require.Equal(t, []string{"P9"}, in.SelectedPrograms)
}

func TestReduce_ApplySuggested(t *testing.T) {
	c := testCatalog(t)
	s := Reduce(c, FormState{}, Event{Kind: DocumentsChanged, IDs: []string{"D2"}})
	got := Reduce(c, s, Event{Kind: ApplySuggested})
	require.Equal(t, []string{"P2", "P1"}, got.SelectedPrograms)
}

func TestReduce_FieldChanged(t *testing.T) {
	c := testCatalog(t)
	got := Reduce(c, FormState{}, Event{Kind: FieldChanged, Field: "institution", Value: "Sample University"})
	require.Equal(t, "Sample University", got.Institution)

	same := Reduce(c, got, Event{Kind: FieldChanged, Field: "unknown", Value: "x"})
	require.Equal(t, got, same)
}

func complete() FormState {
	return FormState{
		PersonnelName:    "Juan Dela Cruz",
		Position:         "Registrar",
		Email:            "juan@example.edu",
		Institution:      "Sample University",
		AcademicYear:     "2024-2025",
		SelectedCMOs:     []string{"D2"},
		SelectedPrograms: []string{"P2"},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(complete()))

	cases := []struct {
		name  string
		edit  func(*FormState)
		field string
		msg   string
	}{
		{"encoder", func(s *FormState) { s.Email = " " }, "encoder", "Please fill in all required encoder details"},
		{"institution", func(s *FormState) { s.AcademicYear = "" }, "institution", "Please fill in all required institution information"},
		{"cmos", func(s *FormState) { s.SelectedCMOs = nil }, "selectedCMOs", "Please select at least one CMO"},
		{"programs", func(s *FormState) { s.SelectedPrograms = []string{""} }, "selectedPrograms", "Please select at least one program"},
		{"date", func(s *FormState) { s.DateOfEvaluation = "31/12/2024" }, "dateOfEvaluation", "must be a YYYY-MM-DD date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := complete()
			tc.edit(&s)
			var ve *evaluation.ValidationError
			require.True(t, errors.As(Validate(s), &ve))
			require.Equal(t, tc.field, ve.Field)
			require.Equal(t, tc.msg, ve.Msg)
		})
	}
}

func TestValidate_EncoderCheckedFirst(t *testing.T) {
	var ve *evaluation.ValidationError
	require.True(t, errors.As(Validate(FormState{}), &ve))
	require.Equal(t, "encoder", ve.Field)
}

func TestToRecord(t *testing.T) {
	s := complete()
	s.SelectedCMOs = []string{"D2", "D2", "D1"}
	s.DateOfEvaluation = "2024-11-05"
	rec := s.ToRecord("ABC123")
	require.Equal(t, "ABC123", rec.RefNo)
	require.Equal(t, []string{"D2", "D1"}, []string(rec.SelectedCMOs))
	require.Equal(t, "2024-11-05", rec.DateOfEvaluation.Format("2006-01-02"))

	require.True(t, complete().ToRecord("").DateOfEvaluation.IsZero())
}
