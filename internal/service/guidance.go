package service

import (
	"fmt"

	"github.com/noah-isme/sma-assignment-engine/internal/models"
)

// Guidance is the operator-facing rendering of one validation error.
type Guidance struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Hint       string `json:"hint,omitempty"`
	Message    string `json:"message"`
	Repairable bool   `json:"repairable"`
}

type guidanceEntry struct {
	title      string
	hint       string
	repairable bool
}

var guidanceCatalogue = map[string]guidanceEntry{
	models.ErrorTypeWorkloadExceeded: {
		title:      "Teacher workload limit exceeded",
		hint:       "Reduce the weekly periods or assign a teacher with spare capacity.",
		repairable: true,
	},
	models.ErrorTypeSpecializationMismatch: {
		title: "Subject outside teacher's specialization",
		hint:  "Pick a subject within the teacher's specialization or assign another teacher.",
	},
	models.ErrorTypeInsufficientPeriods: {
		title: "Weekly periods below the recommended minimum",
		hint:  "Increase the weekly periods to at least the subject's recommended minimum.",
	},
	models.ErrorTypeLevelMismatch: {
		title: "Teacher not qualified for this level",
		hint:  "Add the level to the teacher's profile or assign a different teacher.",
	},
	models.ErrorTypePathwayMismatch: {
		title: "Teacher not assigned to this pathway",
		hint:  "Add the pathway to the teacher's profile or assign a different teacher.",
	},
	models.ErrorTypeAPI: {
		title: "Could not reach the validation service",
		hint:  "Check the connection and validate again.",
	},
}

// GuidanceFor renders a single error. Unknown types keep the server message
// verbatim under a generic title.
func GuidanceFor(issue models.ValidationIssue) Guidance {
	entry, ok := guidanceCatalogue[issue.Type]
	if !ok {
		return Guidance{Type: issue.Type, Title: "Validation failed", Message: issue.Message}
	}
	return Guidance{
		Type:       issue.Type,
		Title:      entry.title,
		Hint:       entry.hint,
		Message:    issue.Message,
		Repairable: entry.repairable,
	}
}

// GuidanceForOutcome renders every error of an outcome in order.
func GuidanceForOutcome(outcome *models.ValidationOutcome) []Guidance {
	if outcome == nil {
		return nil
	}
	out := make([]Guidance, 0, len(outcome.Errors))
	for _, issue := range outcome.Errors {
		out = append(out, GuidanceFor(issue))
	}
	return out
}

// PlainGuidance renders an outcome for the single-assignment path, where the
// repair is expressed as text instead of a stepper.
func PlainGuidance(outcome *models.ValidationOutcome) []Guidance {
	out := GuidanceForOutcome(outcome)
	for i := range out {
		if out[i].Type != models.ErrorTypeWorkloadExceeded || outcome.WorkloadSummary == nil {
			continue
		}
		summary := outcome.WorkloadSummary
		maxAllowed := summary.MaxLessons - summary.CurrentLessons
		if maxAllowed <= 0 {
			out[i].Hint = fmt.Sprintf("The teacher is fully booked (%d of %d periods).", summary.CurrentLessons, summary.MaxLessons)
			continue
		}
		out[i].Hint = fmt.Sprintf("%s Reduce to at most %d periods.", out[i].Hint, maxAllowed)
	}
	return out
}
