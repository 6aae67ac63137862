package service

import (
	"fmt"

	"github.com/noah-isme/sma-assignment-engine/internal/models"
	appErrors "github.com/noah-isme/sma-assignment-engine/pkg/errors"
)

// RepairKind distinguishes why a row needs its periods reduced.
type RepairKind string

const (
	// RepairIndividual: the oracle rejected the row with workload_exceeded.
	RepairIndividual RepairKind = "individual"
	// RepairCumulative: the row is valid but the batch overflows capacity.
	RepairCumulative RepairKind = "cumulative"
)

// RepairPlan bounds the periods an operator may pick for one row. Plans are
// derived from the current outcome and verdict every time they are shown.
type RepairPlan struct {
	SubjectID      string     `json:"subject_id"`
	Kind           RepairKind `json:"kind"`
	CurrentPeriods int        `json:"current_periods"`
	MaxAllowed     int        `json:"max_allowed"`
	Default        int        `json:"default"`
	Suggested      int        `json:"suggested"`
	Refused        bool       `json:"refused"`
	Message        string     `json:"message,omitempty"`
}

// PlanIndividualRepair bounds a row rejected for exceeding the budget. The
// row's own workload summary is preferred over the session base because it
// reflects the persisted state the oracle checked against.
func PlanIndividualRepair(row *models.CandidateRow, base models.CapacitySnapshot) RepairPlan {
	current, max := base.CurrentLessons, base.MaxLessons
	if row.Validation != nil && row.Validation.WorkloadSummary != nil {
		current = row.Validation.WorkloadSummary.CurrentLessons
		max = row.Validation.WorkloadSummary.MaxLessons
	}
	maxAllowed := max - current
	if maxAllowed < 0 {
		maxAllowed = 0
	}
	plan := RepairPlan{
		SubjectID:      row.SubjectID,
		Kind:           RepairIndividual,
		CurrentPeriods: row.WeeklyPeriods,
		MaxAllowed:     maxAllowed,
		Default:        atLeastOne(maxAllowed),
	}
	if maxAllowed == 0 {
		plan.Refused = true
		plan.Message = fmt.Sprintf("Teacher is fully booked (%d of %d periods)", current, max)
		return plan
	}
	plan.Suggested = plan.Default
	plan.Message = fmt.Sprintf("Reduce to at most %d periods", maxAllowed)
	return plan
}

// PlanCumulativeRepair bounds an individually valid row while the batch
// overflows. The fix must strictly reduce the row.
func PlanCumulativeRepair(row *models.CandidateRow, verdict models.WorkloadVerdict) RepairPlan {
	maxAllowed := row.WeeklyPeriods - 1
	if maxAllowed < 0 {
		maxAllowed = 0
	}
	plan := RepairPlan{
		SubjectID:      row.SubjectID,
		Kind:           RepairCumulative,
		CurrentPeriods: row.WeeklyPeriods,
		MaxAllowed:     maxAllowed,
		Default:        atLeastOne(maxAllowed),
	}
	if maxAllowed == 0 {
		plan.Refused = true
		plan.Message = "Row is already at 1 period; deselect it or reduce another subject"
		return plan
	}
	plan.Suggested = plan.Clamp(row.WeeklyPeriods - verdict.OverflowAmount)
	plan.Message = fmt.Sprintf("Batch exceeds capacity by %d periods", verdict.OverflowAmount)
	return plan
}

// RepairPlansFor lists a plan for every selected row that needs one, in row
// order. Individually rejected rows take precedence over cumulative plans.
func RepairPlansFor(rows []*models.CandidateRow, base models.CapacitySnapshot, verdict models.WorkloadVerdict) []RepairPlan {
	plans := make([]RepairPlan, 0)
	for _, row := range rows {
		if !row.Selected || row.Validation == nil {
			continue
		}
		switch {
		case row.Validation.CapacityExceeded():
			plans = append(plans, PlanIndividualRepair(row, base))
		case verdict.Over && row.IsValid():
			plans = append(plans, PlanCumulativeRepair(row, verdict))
		}
	}
	return plans
}

// Clamp bounds v to [1, MaxAllowed].
func (p RepairPlan) Clamp(v int) int {
	if p.MaxAllowed < 1 {
		return 1
	}
	if v < 1 {
		return 1
	}
	if v > p.MaxAllowed {
		return p.MaxAllowed
	}
	return v
}

// Increment steps v up within bounds.
func (p RepairPlan) Increment(v int) int { return p.Clamp(v + 1) }

// Decrement steps v down within bounds.
func (p RepairPlan) Decrement(v int) int { return p.Clamp(v - 1) }

// Check rejects values the stepper could not produce.
func (p RepairPlan) Check(periods int) error {
	if p.Refused {
		return appErrors.Clone(appErrors.ErrRepairRefused, p.Message)
	}
	if periods < 1 || periods > p.MaxAllowed {
		return appErrors.Clone(appErrors.ErrRepairRefused,
			fmt.Sprintf("weekly periods must be between 1 and %d", p.MaxAllowed))
	}
	return nil
}

func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}
