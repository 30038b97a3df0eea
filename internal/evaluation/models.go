package evaluation

import (
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Compliance is the HEI or CHED judgment on one checklist item.
type Compliance string

const (
	ComplianceUnset Compliance = ""
	Complied        Compliance = "Complied"
	NotComplied     Compliance = "Not Complied"
)

// Accessibility records whether the evidence link opened for the reviewer.
type Accessibility string

const (
	AccessUnset Accessibility = ""
	AccessYes   Accessibility = "Yes"
	AccessNo    Accessibility = "No"
)

// Record is one evaluation session, addressed externally by RefNo.
type Record struct {
	ID               string                      `json:"id" gorm:"primaryKey;size:36"`
	RefNo            string                      `json:"refNo" gorm:"column:ref_no;size:32;not null;uniqueIndex"`
	PersonnelName    string                      `json:"personnelName" gorm:"column:personnel_name"`
	Position         string                      `json:"position"`
	Email            string                      `json:"email"`
	Institution      string                      `json:"institution"`
	AcademicYear     string                      `json:"academicYear" gorm:"column:academic_year"`
	SelectedCMOs     datatypes.JSONSlice[string] `json:"selectedCMOs" gorm:"column:selected_cmos"`
	SelectedPrograms datatypes.JSONSlice[string] `json:"selectedPrograms" gorm:"column:selected_programs"`
	ORNumber         string                      `json:"orNumber" gorm:"column:or_number"`
	DateOfEvaluation time.Time                   `json:"dateOfEvaluation" gorm:"column:date_of_evaluation"`
	CreatedAt        time.Time                   `json:"createdAt"`
	UpdatedAt        time.Time                   `json:"updatedAt" gorm:"index"`
}

func (Record) TableName() string { return "evaluation_records" }

// Response is the answer to one requirement item within one evaluation.
type Response struct {
	RecordID        string        `json:"-" gorm:"column:evaluation_id;primaryKey;size:36"`
	RequirementID   string        `json:"requirement_id" gorm:"column:requirement_id;primaryKey;size:64"`
	ActualSituation string        `json:"actual_situation" gorm:"column:actual_situation;type:text"`
	GoogleLink      string        `json:"google_link" gorm:"column:google_link"`
	HEICompliance   Compliance    `json:"hei_compliance" gorm:"column:hei_compliance;size:16"`
	CHEDCompliance  Compliance    `json:"ched_compliance" gorm:"column:ched_compliance;size:16"`
	LinkAccessible  Accessibility `json:"link_accessible" gorm:"column:link_accessible;size:8"`
	CHEDRemarks     string        `json:"ched_remarks" gorm:"column:ched_remarks;type:text"`
}

func (Response) TableName() string { return "evaluation_responses" }

// ResponseMap keys responses by requirement item id.
type ResponseMap map[string]Response

// WithReviewerFields copies the CHED-side fields from prev onto r.
func (r Response) WithReviewerFields(prev Response) Response {
	r.CHEDCompliance = prev.CHEDCompliance
	r.LinkAccessible = prev.LinkAccessible
	r.CHEDRemarks = prev.CHEDRemarks
	return r
}

// NormalizeResponses keys every response by its map key and checks the
// enumerated fields. Missing fields stay empty strings.
func NormalizeResponses(in map[string]Response) (ResponseMap, error) {
	out := make(ResponseMap, len(in))
	for id, r := range in {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, &ValidationError{Field: "responses", Msg: "empty requirement id"}
		}
		r.RequirementID = id
		r.RecordID = ""
		var err error
		if r.HEICompliance, err = parseCompliance("hei_compliance", r.HEICompliance); err != nil {
			return nil, err
		}
		if r.CHEDCompliance, err = parseCompliance("ched_compliance", r.CHEDCompliance); err != nil {
			return nil, err
		}
		if r.LinkAccessible, err = parseAccessibility(r.LinkAccessible); err != nil {
			return nil, err
		}
		out[id] = r
	}
	return out, nil
}

func parseCompliance(field string, c Compliance) (Compliance, error) {
	switch strings.ToLower(strings.Join(strings.Fields(string(c)), " ")) {
	case "":
		return ComplianceUnset, nil
	case "complied":
		return Complied, nil
	case "not complied", "notcomplied":
		return NotComplied, nil
	}
	return "", &ValidationError{Field: field, Msg: "must be Complied, Not Complied or empty"}
}

func parseAccessibility(a Accessibility) (Accessibility, error) {
	switch strings.ToLower(strings.TrimSpace(string(a))) {
	case "":
		return AccessUnset, nil
	case "yes":
		return AccessYes, nil
	case "no":
		return AccessNo, nil
	}
	return "", &ValidationError{Field: "link_accessible", Msg: "must be Yes, No or empty"}
}

// Sorted returns the responses ordered by requirement id, each keyed by its map key.
func (m ResponseMap) Sorted() []Response {
	out := make([]Response, 0, len(m))
	for id, r := range m {
		r.RequirementID = id
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequirementID < out[j].RequirementID })
	return out
}

// Answered reports whether any field of the response carries a value.
func (r Response) Answered() bool {
	return r.ActualSituation != "" || r.GoogleLink != "" || r.HEICompliance != "" ||
		r.CHEDCompliance != "" || r.LinkAccessible != "" || r.CHEDRemarks != ""
}
