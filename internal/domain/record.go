package domain

// Record is the persisted per-directory ledger of the rule that last governed
// a directory and the direct children already carrying its tags.
type Record struct {
	RuleOrigin    string
	AppliedTags   TagSet
	MarkerTags    TagSet
	AffectedFiles []string
}

// EmptyRecord is the starting point for a directory with no usable state.
func EmptyRecord() Record {
	return Record{
		AppliedTags:   TagSet{},
		MarkerTags:    TagSet{},
		AffectedFiles: []string{},
	}
}

func (r Record) HasAffected(name string) bool {
	for _, f := range r.AffectedFiles {
		if f == name {
			return true
		}
	}
	return false
}

// AddAffected appends name unless it is already listed.
func (r *Record) AddAffected(name string) {
	if r.HasAffected(name) {
		return
	}
	r.AffectedFiles = append(r.AffectedFiles, name)
}

func (r Record) Clone() Record {
	files := make([]string, len(r.AffectedFiles))
	copy(files, r.AffectedFiles)
	return Record{
		RuleOrigin:    r.RuleOrigin,
		AppliedTags:   r.AppliedTags.Clone(),
		MarkerTags:    r.MarkerTags.Clone(),
		AffectedFiles: files,
	}
}
