package catalog

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Programs []AcademicProgram `yaml:"programs"`
	CMOs     []seedDocument    `yaml:"cmos"`
}

type seedDocument struct {
	RegulatoryDocument `yaml:",inline"`
	Sections           []seedSection `yaml:"sections"`
}

type seedSection struct {
	Section      `yaml:",inline"`
	Requirements []RequirementItem `yaml:"requirements"`
}

// ParseSeed reads a YAML catalog seed. Sections and requirements inherit their
// parent ids from nesting; missing ids are derived from the parent id and
// position so that reseeding the same file upserts the same rows.
func ParseSeed(r io.Reader) (Rows, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Rows{}, fmt.Errorf("parse seed: %w", err)
	}

	rows := Rows{Programs: f.Programs}
	for _, d := range f.CMOs {
		doc := d.RegulatoryDocument
		rows.Documents = append(rows.Documents, doc)
		for si, s := range d.Sections {
			sec := s.Section
			sec.DocumentID = doc.ID
			if sec.ID == "" {
				sec.ID = fmt.Sprintf("%s-s%d", doc.ID, si+1)
			}
			if sec.SortOrder == 0 {
				sec.SortOrder = si + 1
			}
			rows.Sections = append(rows.Sections, sec)
			for ii, it := range s.Requirements {
				it.DocumentID = doc.ID
				it.SectionID = sec.ID
				if it.ID == "" {
					it.ID = fmt.Sprintf("%s-r%d", sec.ID, ii+1)
				}
				if it.SortOrder == 0 {
					it.SortOrder = ii + 1
				}
				rows.Items = append(rows.Items, it)
			}
		}
	}
	return rows, nil
}
