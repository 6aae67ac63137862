package service

import "github.com/noah-isme/sma-assignment-engine/internal/models"

// DefaultNearCapacityRatio flags a projection at or above 90% of the budget.
const DefaultNearCapacityRatio = 0.9

// AggregateWorkload projects the teacher's load if every selected, valid row
// were committed on top of the base snapshot. Rows that are deselected,
// unvalidated or invalid contribute nothing.
func AggregateWorkload(base models.CapacitySnapshot, rows []*models.CandidateRow, nearRatio float64) models.WorkloadVerdict {
	if nearRatio <= 0 || nearRatio > 1 {
		nearRatio = DefaultNearCapacityRatio
	}
	adding := 0
	for _, row := range rows {
		if row == nil || !row.Committable() {
			continue
		}
		adding += row.WeeklyPeriods
	}

	projected := base.CurrentLessons + adding
	verdict := models.WorkloadVerdict{
		Base:           base.CurrentLessons,
		Adding:         adding,
		ProjectedTotal: projected,
		MaxLessons:     base.MaxLessons,
		Over:           projected > base.MaxLessons,
	}
	if verdict.Over {
		verdict.OverflowAmount = projected - base.MaxLessons
	} else {
		verdict.Remaining = base.MaxLessons - projected
		verdict.Near = float64(projected) >= nearRatio*float64(base.MaxLessons)
	}
	return verdict
}

// CountValid returns the number of selected rows holding a valid outcome.
func CountValid(rows []*models.CandidateRow) int {
	n := 0
	for _, row := range rows {
		if row != nil && row.Committable() {
			n++
		}
	}
	return n
}

// SubmitAllowed reports whether a batch with this verdict may be committed.
func SubmitAllowed(verdict models.WorkloadVerdict, validRows int) bool {
	return !verdict.Over && validRows > 0
}
