package models

// TeachingLevel is a school level a teacher is qualified to teach.
type TeachingLevel string

const (
	LevelPrePrimary      TeachingLevel = "pre_primary"
	LevelLowerPrimary    TeachingLevel = "lower_primary"
	LevelUpperPrimary    TeachingLevel = "upper_primary"
	LevelJuniorSecondary TeachingLevel = "junior_secondary"
	LevelSeniorSecondary TeachingLevel = "senior_secondary"
)

var levelLabels = map[TeachingLevel]string{
	LevelPrePrimary:      "Pre-Primary",
	LevelLowerPrimary:    "Lower Primary",
	LevelUpperPrimary:    "Upper Primary",
	LevelJuniorSecondary: "Junior Secondary",
	LevelSeniorSecondary: "Senior Secondary",
}

// Label returns the human readable level name.
func (l TeachingLevel) Label() string {
	if label, ok := levelLabels[l]; ok {
		return label
	}
	return string(l)
}

// Pathway is a senior-secondary specialisation track.
type Pathway string

const (
	PathwaySTEM           Pathway = "STEM"
	PathwaySocialSciences Pathway = "SOCIAL_SCIENCES"
	PathwayArtsSports     Pathway = "ARTS_SPORTS"
)

var pathwayLabels = map[Pathway]string{
	PathwaySTEM:           "STEM",
	PathwaySocialSciences: "Social Sciences",
	PathwayArtsSports:     "Arts & Sports Science",
}

// Label returns the human readable pathway name.
func (p Pathway) Label() string {
	if label, ok := pathwayLabels[p]; ok {
		return label
	}
	return string(p)
}

// Teacher is the read-only teacher profile borrowed from the school API.
type Teacher struct {
	ID               string          `json:"id"`
	FullName         string          `json:"full_name"`
	Specialization   string          `json:"specialization"`
	TeachingLevels   []TeachingLevel `json:"teaching_levels"`
	TeachingPathways []Pathway       `json:"teaching_pathways"`
}

// HasLevel reports whether the teacher declared the level.
func (t Teacher) HasLevel(level TeachingLevel) bool {
	for _, l := range t.TeachingLevels {
		if l == level {
			return true
		}
	}
	return false
}

// HasPathway reports whether the teacher declared the pathway.
func (t Teacher) HasPathway(pathway Pathway) bool {
	for _, p := range t.TeachingPathways {
		if p == pathway {
			return true
		}
	}
	return false
}
