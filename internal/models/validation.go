package models

// Known validation error types returned by the school API. ErrorTypeAPI is
// synthesised locally when the API cannot be reached.
const (
	ErrorTypeWorkloadExceeded       = "workload_exceeded"
	ErrorTypeSpecializationMismatch = "specialization_mismatch"
	ErrorTypeInsufficientPeriods    = "insufficient_periods"
	ErrorTypeLevelMismatch          = "level_mismatch"
	ErrorTypePathwayMismatch        = "pathway_mismatch"
	ErrorTypeAPI                    = "api_error"
)

// ValidationIssue is one error reported for a candidate.
type ValidationIssue struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ValidationWarning is a non-blocking remark reported for a candidate.
type ValidationWarning struct {
	Message string `json:"message"`
}

// WorkloadSummary is the oracle's view of the teacher load for one candidate.
type WorkloadSummary struct {
	CurrentLessons int `json:"current_lessons"`
	MaxLessons     int `json:"max_lessons"`
	NewTotal       int `json:"new_total"`
}

// ValidationOutcome is produced exclusively by the validation gateway.
type ValidationOutcome struct {
	Valid           bool                `json:"valid"`
	Errors          []ValidationIssue   `json:"errors"`
	Warnings        []ValidationWarning `json:"warnings"`
	WorkloadSummary *WorkloadSummary    `json:"workload_summary,omitempty"`
}

// HasErrorType reports whether any error carries the given type.
func (o *ValidationOutcome) HasErrorType(errType string) bool {
	if o == nil {
		return false
	}
	for _, e := range o.Errors {
		if e.Type == errType {
			return true
		}
	}
	return false
}

// CapacityExceeded reports whether the outcome rejects the candidate for
// exceeding the teacher's weekly budget.
func (o *ValidationOutcome) CapacityExceeded() bool {
	return o.HasErrorType(ErrorTypeWorkloadExceeded)
}

// TransportOnly reports whether the outcome failed only because the oracle
// could not be reached, so asking again may succeed.
func (o *ValidationOutcome) TransportOnly() bool {
	if o == nil || o.Valid || len(o.Errors) == 0 {
		return false
	}
	for _, e := range o.Errors {
		if e.Type != ErrorTypeAPI {
			return false
		}
	}
	return true
}

// TransportFailure builds the outcome used when the oracle is unreachable.
func TransportFailure(message string) *ValidationOutcome {
	if message == "" {
		message = "Unable to reach the validation service"
	}
	return &ValidationOutcome{
		Valid:    false,
		Errors:   []ValidationIssue{{Type: ErrorTypeAPI, Message: message}},
		Warnings: []ValidationWarning{},
	}
}
