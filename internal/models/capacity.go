package models

// CapacitySnapshot is a teacher's weekly-period budget for one academic year.
type CapacitySnapshot struct {
	CurrentLessons    int `json:"current_lessons"`
	MaxLessons        int `json:"max_lessons"`
	AvailableCapacity int `json:"available_capacity"`
	SubjectCount      int `json:"subject_count"`
	ClassroomCount    int `json:"classroom_count"`
}

// WorkloadVerdict is the cumulative projection over the currently valid rows.
type WorkloadVerdict struct {
	Base           int  `json:"base"`
	Adding         int  `json:"adding"`
	ProjectedTotal int  `json:"projected_total"`
	MaxLessons     int  `json:"max_lessons"`
	Over           bool `json:"over"`
	Near           bool `json:"near"`
	OverflowAmount int  `json:"overflow_amount"`
	Remaining      int  `json:"remaining"`
}
