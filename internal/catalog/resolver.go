package catalog

// ProgramsForDocuments returns the union of program ids associated with the
// given documents. Known programs come first in catalog order, followed by ids
// the program table does not list, in document order. Unknown document ids
// are ignored.
func (c *Catalog) ProgramsForDocuments(documentIDs []string) []string {
	wanted := map[string]bool{}
	var referenced []string
	for _, id := range documentIDs {
		d, ok := c.Document(id)
		if !ok {
			continue
		}
		for _, p := range d.ProgramIDs {
			if !wanted[p] {
				wanted[p] = true
				referenced = append(referenced, p)
			}
		}
	}
	out := make([]string, 0, len(wanted))
	for _, p := range c.Programs {
		if wanted[p.ID] {
			out = append(out, p.ID)
		}
	}
	for _, p := range referenced {
		if _, known := c.programIndex[p]; !known {
			out = append(out, p)
		}
	}
	return out
}

// DocumentsForPrograms returns, in catalog order, every document whose
// program set intersects programIDs.
func (c *Catalog) DocumentsForPrograms(programIDs []string) []string {
	wanted := make(map[string]bool, len(programIDs))
	for _, p := range programIDs {
		wanted[p] = true
	}
	out := []string{}
	if len(wanted) == 0 {
		return out
	}
	for _, d := range c.Documents {
		for _, p := range d.ProgramIDs {
			if wanted[p] {
				out = append(out, d.ID)
				break
			}
		}
	}
	return out
}
