package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-assignment-engine/internal/models"
)

func pathwayPtr(p models.Pathway) *models.Pathway { return &p }

func TestLevelForGrade(t *testing.T) {
	cases := map[string]models.TeachingLevel{
		"PP1":              models.LevelPrePrimary,
		"pp2":              models.LevelPrePrimary,
		"Grade 1":          models.LevelLowerPrimary,
		"Grade 3":          models.LevelLowerPrimary,
		"Grade 4":          models.LevelUpperPrimary,
		"grade 6":          models.LevelUpperPrimary,
		"Grade 7":          models.LevelJuniorSecondary,
		"Grade 9":          models.LevelJuniorSecondary,
		"Grade 10":         models.LevelSeniorSecondary,
		"GRADE 12":         models.LevelSeniorSecondary,
		"junior_secondary": models.LevelJuniorSecondary,
	}
	for grade, want := range cases {
		got, ok := LevelForGrade(grade)
		require.True(t, ok, grade)
		assert.Equal(t, want, got, grade)
	}

	for _, grade := range []string{"", "Grade 13", "Form 2", "Grade"} {
		_, ok := LevelForGrade(grade)
		assert.False(t, ok, grade)
	}
}

func TestFilterCompatibleSubjectsWithoutLevelsAcceptsEverything(t *testing.T) {
	subjects := []models.Subject{
		{ID: "a", GradeLevel: "Grade 7"},
		{ID: "b", GradeLevel: "Grade 11", Pathway: pathwayPtr(models.PathwaySTEM)},
		{ID: "c", GradeLevel: "unknown"},
	}
	partition := FilterCompatibleSubjects(models.Teacher{ID: "t"}, subjects)
	assert.Len(t, partition.Compatible, 3)
	assert.Empty(t, partition.Incompatible)
}

func TestFilterCompatibleSubjectsReasons(t *testing.T) {
	teacher := models.Teacher{
		ID:               "t",
		TeachingLevels:   []models.TeachingLevel{models.LevelJuniorSecondary, models.LevelSeniorSecondary},
		TeachingPathways: []models.Pathway{models.PathwaySTEM},
	}
	subjects := []models.Subject{
		{ID: "math7", GradeLevel: "Grade 7"},
		{ID: "eng3", GradeLevel: "Grade 3"},
		{ID: "phys11", GradeLevel: "Grade 11", Pathway: pathwayPtr(models.PathwaySTEM)},
		{ID: "music11", GradeLevel: "Grade 11", Pathway: pathwayPtr(models.PathwayArtsSports)},
	}

	partition := FilterCompatibleSubjects(teacher, subjects)

	assert.True(t, partition.IsCompatible("math7"))
	assert.True(t, partition.IsCompatible("phys11"))
	assert.Equal(t, "Teacher does not teach Lower Primary", partition.ReasonFor("eng3"))
	assert.Equal(t, "Teacher is not in the Arts & Sports Science pathway", partition.ReasonFor("music11"))
}

func TestFilterCompatibleSubjectsIgnoresPathwayWhenTeacherHasNone(t *testing.T) {
	teacher := models.Teacher{TeachingLevels: []models.TeachingLevel{models.LevelSeniorSecondary}}
	partition := FilterCompatibleSubjects(teacher, []models.Subject{
		{ID: "music11", GradeLevel: "Grade 11", Pathway: pathwayPtr(models.PathwayArtsSports)},
	})
	assert.True(t, partition.IsCompatible("music11"))
}

func TestFilterCompatibleSubjectsPartitionIsTotal(t *testing.T) {
	teachers := []models.Teacher{
		{},
		{TeachingLevels: []models.TeachingLevel{models.LevelPrePrimary}},
		{TeachingLevels: []models.TeachingLevel{models.LevelSeniorSecondary}, TeachingPathways: []models.Pathway{models.PathwaySocialSciences}},
	}
	grades := []string{"PP1", "Grade 2", "Grade 5", "Grade 8", "Grade 11", "bogus", ""}
	pathways := []*models.Pathway{nil, pathwayPtr(models.PathwaySTEM), pathwayPtr(models.PathwaySocialSciences)}

	var subjects []models.Subject
	for _, g := range grades {
		for _, p := range pathways {
			subjects = append(subjects, models.Subject{ID: g + "-" + pathwayName(p), GradeLevel: g, Pathway: p})
		}
	}

	for _, teacher := range teachers {
		partition := FilterCompatibleSubjects(teacher, subjects)
		require.Equal(t, len(subjects), len(partition.Compatible)+len(partition.Incompatible))
		for _, subject := range subjects {
			inCompatible := partition.IsCompatible(subject.ID)
			inIncompatible := partition.ReasonFor(subject.ID) != ""
			assert.True(t, inCompatible != inIncompatible, "subject %s must be in exactly one set", subject.ID)
		}
	}
}

func pathwayName(p *models.Pathway) string {
	if p == nil {
		return "none"
	}
	return string(*p)
}
