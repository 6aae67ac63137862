package models

// AssignmentRole is the role a teacher takes on an assignment.
type AssignmentRole string

const (
	RoleMainTeacher      AssignmentRole = "main_teacher"
	RoleAssistantTeacher AssignmentRole = "assistant_teacher"
	RoleSubstitute       AssignmentRole = "substitute"
)

// Valid reports whether the role is one of the known roles.
func (r AssignmentRole) Valid() bool {
	switch r {
	case RoleMainTeacher, RoleAssistantTeacher, RoleSubstitute:
		return true
	}
	return false
}

// RowStatus summarises a candidate row for display.
type RowStatus string

const (
	RowStatusUnvalidated  RowStatus = "unvalidated"
	RowStatusRevalidating RowStatus = "revalidating"
	RowStatusValid        RowStatus = "valid"
	RowStatusWarned       RowStatus = "warned"
	RowStatusInvalid      RowStatus = "invalid"
)

// CandidateRow is one (teacher, subject) pairing under consideration. Every
// field edit discards Validation; Revision increases with each edit so late
// oracle responses for an older revision can be recognised and dropped.
type CandidateRow struct {
	SubjectID     string             `json:"subject_id"`
	Selected      bool               `json:"selected"`
	Location      Location           `json:"location"`
	WeeklyPeriods int                `json:"weekly_periods"`
	Role          AssignmentRole     `json:"role"`
	Validation    *ValidationOutcome `json:"validation"`
	Revalidating  bool               `json:"revalidating"`
	Revision      uint64             `json:"revision"`
}

// NewCandidateRow seeds a row for the subject.
func NewCandidateRow(subject Subject, location Location) *CandidateRow {
	return &CandidateRow{
		SubjectID:     subject.ID,
		Location:      location,
		WeeklyPeriods: subject.DefaultPeriods(),
		Role:          RoleMainTeacher,
	}
}

// SetLocation changes the location and invalidates the row.
func (r *CandidateRow) SetLocation(location Location) {
	r.Location = location
	r.Invalidate()
}

// SetWeeklyPeriods changes the period count and invalidates the row.
func (r *CandidateRow) SetWeeklyPeriods(periods int) {
	r.WeeklyPeriods = periods
	r.Invalidate()
}

// SetRole changes the assignment role and invalidates the row.
func (r *CandidateRow) SetRole(role AssignmentRole) {
	r.Role = role
	r.Invalidate()
}

// Invalidate discards the last outcome.
func (r *CandidateRow) Invalidate() {
	r.Validation = nil
	r.Revalidating = false
	r.Revision++
}

// Record stores an oracle outcome.
func (r *CandidateRow) Record(outcome *ValidationOutcome) {
	r.Validation = outcome
	r.Revalidating = false
}

// IsValid reports whether the row has a current, valid outcome.
func (r *CandidateRow) IsValid() bool {
	return r.Validation != nil && r.Validation.Valid
}

// Committable reports whether the row may be sent to the commit endpoint.
func (r *CandidateRow) Committable() bool {
	return r.Selected && r.IsValid()
}

// MissingFields lists the fields that block validation.
func (r *CandidateRow) MissingFields(kind LocationKind) []string {
	var missing []string
	if r.Location.IsZero() {
		missing = append(missing, kind.FieldLabel())
	}
	if r.WeeklyPeriods < 1 {
		missing = append(missing, "Weekly periods")
	}
	return missing
}

// Status summarises the row.
func (r *CandidateRow) Status() RowStatus {
	switch {
	case r.Revalidating:
		return RowStatusRevalidating
	case r.Validation == nil:
		return RowStatusUnvalidated
	case !r.Validation.Valid:
		return RowStatusInvalid
	case len(r.Validation.Warnings) > 0:
		return RowStatusWarned
	default:
		return RowStatusValid
	}
}
