package models

// Subject is an immutable catalogue entry from the school API.
type Subject struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Code             string   `json:"code"`
	Category         string   `json:"category"`
	IsCore           bool     `json:"is_core"`
	GradeLevel       string   `json:"grade_level"`
	Pathway          *Pathway `json:"pathway,omitempty"`
	MinWeeklyPeriods int      `json:"min_weekly_periods"`
	MaxWeeklyPeriods int      `json:"max_weekly_periods"`
}

// DefaultPeriods is the seed value for a freshly selected row.
func (s Subject) DefaultPeriods() int {
	if s.MinWeeklyPeriods < 1 {
		return 1
	}
	return s.MinWeeklyPeriods
}
