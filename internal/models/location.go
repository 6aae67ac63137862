package models

// LocationKind distinguishes the two mutually exclusive assignment locations.
type LocationKind string

const (
	LocationClassroom LocationKind = "classroom"
	LocationStream    LocationKind = "stream"
)

// FieldLabel names the location field in operator-facing messages.
func (k LocationKind) FieldLabel() string {
	if k == LocationStream {
		return "Stream"
	}
	return "Classroom"
}

// Location references a classroom or a stream.
type Location struct {
	Kind LocationKind `json:"kind"`
	ID   string       `json:"id"`
}

// IsZero reports whether no location was chosen.
func (l Location) IsZero() bool {
	return l.ID == ""
}

// LocationOption is a selectable classroom or stream.
type LocationOption struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	GradeLevel string `json:"grade_level,omitempty"`
}

// SchoolSettings carries the school configuration the engine depends on.
type SchoolSettings struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	UsesStreams bool   `json:"uses_streams"`
}

// LocationKind returns the location kind the school assigns against.
func (s SchoolSettings) LocationKind() LocationKind {
	if s.UsesStreams {
		return LocationStream
	}
	return LocationClassroom
}
