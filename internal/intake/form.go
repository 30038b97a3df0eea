// Package intake models the intake wizard: the evaluator's details plus the
// CMO and program selections, kept consistent through the catalog's
// associations.
package intake

import (
	"strings"
	"time"

	"github.com/chedeval/progeval/internal/catalog"
	"github.com/chedeval/progeval/internal/evaluation"
)

// FormState is a snapshot of the intake form. Reduce never mutates its input.
type FormState struct {
	PersonnelName     string   `json:"personnelName"`
	Position          string   `json:"position"`
	Email             string   `json:"email"`
	Institution       string   `json:"institution"`
	AcademicYear      string   `json:"academicYear"`
	ORNumber          string   `json:"orNumber"`
	DateOfEvaluation  string   `json:"dateOfEvaluation"`
	SelectedCMOs      []string `json:"selectedCMOs"`
	SelectedPrograms  []string `json:"selectedPrograms"`
	SuggestedPrograms []string `json:"suggestedPrograms"`
}

type EventKind int

const (
	DocumentsChanged EventKind = iota + 1
	ProgramsChanged
	FieldChanged
	ApplySuggested
)

// Event is one user action on the form. IDs carries the new selection for
// DocumentsChanged and ProgramsChanged; Field and Value the edit for FieldChanged.
type Event struct {
	Kind  EventKind
	IDs   []string
	Field string
	Value string
}

// Reduce applies e to s and returns the next state.
//
// Changing the CMO selection recomputes the suggested programs; when none of
// the selected programs is among them, the first suggestion (catalog order)
// becomes the selection. Changing the program selection does the same for
// CMOs. Each transition runs its derivation once.
func Reduce(c *catalog.Catalog, s FormState, e Event) FormState {
	next := s.clone()
	switch e.Kind {
	case DocumentsChanged:
		next.SelectedCMOs = uniq(e.IDs)
		next.SuggestedPrograms = c.ProgramsForDocuments(next.SelectedCMOs)
		if len(next.SuggestedPrograms) > 0 && !intersects(next.SelectedPrograms, next.SuggestedPrograms) {
			next.SelectedPrograms = []string{next.SuggestedPrograms[0]}
		}
	case ProgramsChanged:
		next.SelectedPrograms = uniq(e.IDs)
		docs := c.DocumentsForPrograms(next.SelectedPrograms)
		if len(docs) > 0 && !intersects(next.SelectedCMOs, docs) {
			next.SelectedCMOs = []string{docs[0]}
		}
		next.SuggestedPrograms = c.ProgramsForDocuments(next.SelectedCMOs)
	case ApplySuggested:
		next.SelectedPrograms = append([]string{}, next.SuggestedPrograms...)
	case FieldChanged:
		if f := next.field(e.Field); f != nil {
			*f = e.Value
		}
	}
	return next
}

// field maps the form's JSON field names to state fields.
func (s *FormState) field(name string) *string {
	switch name {
	case "personnelName":
		return &s.PersonnelName
	case "position":
		return &s.Position
	case "email":
		return &s.Email
	case "institution":
		return &s.Institution
	case "academicYear":
		return &s.AcademicYear
	case "orNumber":
		return &s.ORNumber
	case "dateOfEvaluation":
		return &s.DateOfEvaluation
	}
	return nil
}

func (s FormState) clone() FormState {
	s.SelectedCMOs = append([]string{}, s.SelectedCMOs...)
	s.SelectedPrograms = append([]string{}, s.SelectedPrograms...)
	s.SuggestedPrograms = append([]string{}, s.SuggestedPrograms...)
	return s
}

// Validate checks the form in the order the wizard reports problems.
func Validate(s FormState) error {
	blank := func(v string) bool { return strings.TrimSpace(v) == "" }
	switch {
	case blank(s.PersonnelName) || blank(s.Position) || blank(s.Email):
		return &evaluation.ValidationError{Field: "encoder", Msg: "Please fill in all required encoder details"}
	case blank(s.Institution) || blank(s.AcademicYear):
		return &evaluation.ValidationError{Field: "institution", Msg: "Please fill in all required institution information"}
	case len(uniq(s.SelectedCMOs)) == 0:
		return &evaluation.ValidationError{Field: "selectedCMOs", Msg: "Please select at least one CMO"}
	case len(uniq(s.SelectedPrograms)) == 0:
		return &evaluation.ValidationError{Field: "selectedPrograms", Msg: "Please select at least one program"}
	}
	if _, err := evaluationDate(s.DateOfEvaluation); err != nil {
		return &evaluation.ValidationError{Field: "dateOfEvaluation", Msg: "must be a YYYY-MM-DD date"}
	}
	return nil
}

// evaluationDate accepts a calendar date or an RFC 3339 timestamp. Blank
// yields the zero time, which the save fills with today.
func evaluationDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// ToRecord builds the evaluation record the wizard hands off on proceed.
// A blank refNo is filled in when the record is saved.
func (s FormState) ToRecord(refNo string) *evaluation.Record {
	date, _ := evaluationDate(s.DateOfEvaluation)
	return &evaluation.Record{
		DateOfEvaluation: date,
		RefNo:            refNo,
		PersonnelName:    s.PersonnelName,
		Position:         s.Position,
		Email:            s.Email,
		Institution:      s.Institution,
		AcademicYear:     s.AcademicYear,
		ORNumber:         s.ORNumber,
		SelectedCMOs:     uniq(s.SelectedCMOs),
		SelectedPrograms: uniq(s.SelectedPrograms),
	}
}

func uniq(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func intersects(a, b []string) bool {
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	for _, v := range a {
		if set[v] {
			return true
		}
	}
	return false
}
