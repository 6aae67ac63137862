package models

// WizardStep is a state of the bulk assignment wizard.
type WizardStep string

const (
	StepSetup             WizardStep = "setup"
	StepSelectAndValidate WizardStep = "select_and_validate"
	StepReviewAndSave     WizardStep = "review_and_save"
	StepResults           WizardStep = "results"
)

// SubmissionFailure names a row whose commit was rejected.
type SubmissionFailure struct {
	SubjectID string `json:"subject_id"`
	Name      string `json:"name"`
	Reason    string `json:"reason"`
}

// SubmissionSuccess names a row that was committed.
type SubmissionSuccess struct {
	SubjectID    string `json:"subject_id"`
	Name         string `json:"name"`
	AssignmentID string `json:"assignment_id,omitempty"`
}

// SubmissionResult collects the per-item outcomes of a batch commit.
type SubmissionResult struct {
	Succeeded []SubmissionSuccess `json:"succeeded"`
	Failed    []SubmissionFailure `json:"failed"`
}

// SucceededNames lists the subject names committed, in commit order.
func (r SubmissionResult) SucceededNames() []string {
	names := make([]string, 0, len(r.Succeeded))
	for _, s := range r.Succeeded {
		names = append(names, s.Name)
	}
	return names
}

// AnySucceeded reports whether at least one commit went through.
func (r SubmissionResult) AnySucceeded() bool {
	return len(r.Succeeded) > 0
}
