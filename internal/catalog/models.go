package catalog

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// RegulatoryDocument is a CMO: a memorandum order listing compliance
// requirements for one or more academic programs.
type RegulatoryDocument struct {
	ID         string                      `json:"id" yaml:"id" gorm:"primaryKey;size:64" validate:"required"`
	Number     string                      `json:"number" yaml:"number" gorm:"not null" validate:"required"`
	Title      string                      `json:"title" yaml:"title" gorm:"not null" validate:"required"`
	SeriesYear int                         `json:"series" yaml:"series" gorm:"column:series_year;index" validate:"required,gt=0"`
	ProgramIDs datatypes.JSONSlice[string] `json:"programIds" yaml:"programIds" gorm:"column:program_ids"`
	CreatedAt  time.Time                   `json:"createdAt" yaml:"-"`
	UpdatedAt  time.Time                   `json:"updatedAt" yaml:"-"`
}

func (RegulatoryDocument) TableName() string { return "cmos" }

// Label is the human form shown next to checklist items, e.g. "CMO No. 17 - Policies and Standards".
func (d RegulatoryDocument) Label() string {
	return fmt.Sprintf("%s - %s", d.Number, d.Title)
}

// HasProgram reports whether programID is associated with the document.
func (d RegulatoryDocument) HasProgram(programID string) bool {
	for _, p := range d.ProgramIDs {
		if p == programID {
			return true
		}
	}
	return false
}

type AcademicProgram struct {
	ID        string    `json:"id" yaml:"id" gorm:"primaryKey;size:64" validate:"required"`
	Code      string    `json:"code" yaml:"code" gorm:"not null" validate:"required"`
	Name      string    `json:"name" yaml:"name" gorm:"not null;index" validate:"required"`
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

func (AcademicProgram) TableName() string { return "programs" }

// Section belongs to exactly one document. Sections of different documents
// that share a title are merged when a checklist is compiled.
type Section struct {
	ID         string `json:"id" yaml:"id" gorm:"primaryKey;size:64" validate:"required"`
	DocumentID string `json:"cmoId" yaml:"-" gorm:"column:cmo_id;size:64;index;not null" validate:"required"`
	Number     string `json:"number" yaml:"number"`
	Title      string `json:"title" yaml:"title" gorm:"not null" validate:"required"`
	SortOrder  int    `json:"sortOrder" yaml:"sortOrder" gorm:"column:sort_order"`
}

func (Section) TableName() string { return "cmo_sections" }

type RequirementItem struct {
	ID               string `json:"id" yaml:"id" gorm:"primaryKey;size:64" validate:"required"`
	DocumentID       string `json:"cmoId" yaml:"-" gorm:"column:cmo_id;size:64;index;not null" validate:"required"`
	SectionID        string `json:"sectionId" yaml:"-" gorm:"column:section_id;size:64;index;not null" validate:"required"`
	Description      string `json:"description" yaml:"description" gorm:"type:text"`
	RequiredEvidence string `json:"requiredEvidence" yaml:"requiredEvidence" gorm:"column:required_evidence;type:text"`
	SortOrder        int    `json:"sortOrder" yaml:"sortOrder" gorm:"column:sort_order"`
}

func (RequirementItem) TableName() string { return "cmo_requirements" }
