package models

// AcademicYear scopes capacity and validation queries.
type AcademicYear struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	IsCurrent bool   `json:"is_current"`
}
