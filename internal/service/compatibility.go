package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/sma-assignment-engine/internal/models"
)

// IncompatibleSubject pairs a subject with the reason it was filtered out.
type IncompatibleSubject struct {
	Subject models.Subject `json:"subject"`
	Reason  string         `json:"reason"`
}

// CompatibilityPartition splits a subject pool by teacher qualification.
type CompatibilityPartition struct {
	Compatible   []models.Subject      `json:"compatible"`
	Incompatible []IncompatibleSubject `json:"incompatible"`
}

// IsCompatible reports whether subjectID landed in the compatible set.
func (p CompatibilityPartition) IsCompatible(subjectID string) bool {
	for _, s := range p.Compatible {
		if s.ID == subjectID {
			return true
		}
	}
	return false
}

// ReasonFor returns the incompatibility reason for subjectID, if any.
func (p CompatibilityPartition) ReasonFor(subjectID string) string {
	for _, s := range p.Incompatible {
		if s.Subject.ID == subjectID {
			return s.Reason
		}
	}
	return ""
}

var gradeBands = []struct {
	from, to int
	level    models.TeachingLevel
}{
	{1, 3, models.LevelLowerPrimary},
	{4, 6, models.LevelUpperPrimary},
	{7, 9, models.LevelJuniorSecondary},
	{10, 12, models.LevelSeniorSecondary},
}

// LevelForGrade maps a subject grade-level string ("PP1", "Grade 7", ...) to
// the teaching level it belongs to. Level names are accepted as-is.
func LevelForGrade(grade string) (models.TeachingLevel, bool) {
	normalized := strings.ToLower(strings.Join(strings.Fields(grade), ""))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "":
		return "", false
	case "pp1", "pp2", "preprimary", "pre_primary":
		return models.LevelPrePrimary, true
	case string(models.LevelLowerPrimary), string(models.LevelUpperPrimary),
		string(models.LevelJuniorSecondary), string(models.LevelSeniorSecondary):
		return models.TeachingLevel(normalized), true
	}

	number := strings.TrimPrefix(normalized, "grade")
	n, err := strconv.Atoi(number)
	if err != nil {
		return "", false
	}
	for _, band := range gradeBands {
		if n >= band.from && n <= band.to {
			return band.level, true
		}
	}
	return "", false
}

// FilterCompatibleSubjects partitions subjects by the teacher's declared
// levels and pathways. A teacher with no declared levels is compatible with
// everything. The result is diagnostic only; the school API remains the
// authority on validity.
func FilterCompatibleSubjects(teacher models.Teacher, subjects []models.Subject) CompatibilityPartition {
	partition := CompatibilityPartition{
		Compatible:   make([]models.Subject, 0, len(subjects)),
		Incompatible: []IncompatibleSubject{},
	}
	for _, subject := range subjects {
		if reason := incompatibilityReason(teacher, subject); reason != "" {
			partition.Incompatible = append(partition.Incompatible, IncompatibleSubject{Subject: subject, Reason: reason})
			continue
		}
		partition.Compatible = append(partition.Compatible, subject)
	}
	return partition
}

func incompatibilityReason(teacher models.Teacher, subject models.Subject) string {
	if len(teacher.TeachingLevels) == 0 {
		return ""
	}
	level, ok := LevelForGrade(subject.GradeLevel)
	if !ok {
		return fmt.Sprintf("Grade level %q is not mapped to a teaching level", subject.GradeLevel)
	}
	if !teacher.HasLevel(level) {
		return fmt.Sprintf("Teacher does not teach %s", level.Label())
	}
	if subject.Pathway == nil || *subject.Pathway == "" || len(teacher.TeachingPathways) == 0 {
		return ""
	}
	if !teacher.HasPathway(*subject.Pathway) {
		return fmt.Sprintf("Teacher is not in the %s pathway", subject.Pathway.Label())
	}
	return ""
}
