package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-assignment-engine/internal/dto"
	"github.com/noah-isme/sma-assignment-engine/internal/models"
	"github.com/noah-isme/sma-assignment-engine/internal/repository"
	appErrors "github.com/noah-isme/sma-assignment-engine/pkg/errors"
)

const operator = "op-1"

type referenceStub struct {
	mu            sync.Mutex
	teacher       models.Teacher
	subjects      []models.Subject
	settings      models.SchoolSettings
	locations     []models.LocationOption
	capacities    []models.CapacitySnapshot
	capacityCalls int
	teacherErr    error
}

func newReferenceStub() *referenceStub {
	return &referenceStub{
		teacher: models.Teacher{
			ID:             "teacher-1",
			FullName:       "Jane Wanjiku",
			TeachingLevels: []models.TeachingLevel{models.LevelJuniorSecondary},
		},
		subjects: []models.Subject{
			{ID: "math", Name: "Mathematics", GradeLevel: "Grade 7", MinWeeklyPeriods: 4},
			{ID: "bio", Name: "Biology", GradeLevel: "Grade 7", MinWeeklyPeriods: 5},
			{ID: "chem", Name: "Chemistry", GradeLevel: "Grade 8", MinWeeklyPeriods: 3},
			{ID: "art", Name: "Visual Arts", GradeLevel: "Grade 11", MinWeeklyPeriods: 2},
		},
		locations:  []models.LocationOption{{ID: "cls-1", Name: "7 East"}, {ID: "cls-2", Name: "7 West"}},
		capacities: []models.CapacitySnapshot{{CurrentLessons: 20, MaxLessons: 27, AvailableCapacity: 7}},
	}
}

func (r *referenceStub) Teacher(ctx context.Context, teacherID string) (*models.Teacher, error) {
	if r.teacherErr != nil {
		return nil, r.teacherErr
	}
	teacher := r.teacher
	teacher.ID = teacherID
	return &teacher, nil
}

func (r *referenceStub) Subjects(ctx context.Context) ([]models.Subject, error) {
	return append([]models.Subject{}, r.subjects...), nil
}

func (r *referenceStub) SchoolSettings(ctx context.Context) (*models.SchoolSettings, error) {
	settings := r.settings
	return &settings, nil
}

func (r *referenceStub) Locations(ctx context.Context, kind models.LocationKind, academicYearID string) ([]models.LocationOption, error) {
	return append([]models.LocationOption{}, r.locations...), nil
}

func (r *referenceStub) Capacity(ctx context.Context, teacherID, academicYearID string) (*models.CapacitySnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.capacityCalls
	if i >= len(r.capacities) {
		i = len(r.capacities) - 1
	}
	r.capacityCalls++
	snapshot := r.capacities[i]
	return &snapshot, nil
}

type gatewayStub struct {
	mu       sync.Mutex
	outcomes map[string]*models.ValidationOutcome
	queries  []models.ValidationQuery
	hook     func(models.ValidationQuery)
}

func newGatewayStub() *gatewayStub {
	return &gatewayStub{outcomes: map[string]*models.ValidationOutcome{}}
}

func (g *gatewayStub) Validate(ctx context.Context, query models.ValidationQuery) *models.ValidationOutcome {
	g.mu.Lock()
	g.queries = append(g.queries, query)
	hook := g.hook
	outcome, ok := g.outcomes[query.SubjectID]
	g.mu.Unlock()
	if hook != nil {
		hook(query)
	}
	if !ok {
		return &models.ValidationOutcome{Valid: true, Errors: []models.ValidationIssue{}, Warnings: []models.ValidationWarning{}}
	}
	cp := *outcome
	return &cp
}

func (g *gatewayStub) subjectsQueried() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.queries))
	for _, q := range g.queries {
		out = append(out, q.SubjectID)
	}
	return out
}

type wizardFixture struct {
	svc       *WizardService
	reference *referenceStub
	gateway   *gatewayStub
	committer *committerStub
	refresher *refresherStub
}

func newWizardFixture(t *testing.T, cfg WizardConfig) *wizardFixture {
	t.Helper()
	f := &wizardFixture{
		reference: newReferenceStub(),
		gateway:   newGatewayStub(),
		committer: &committerStub{failures: map[string]error{}},
		refresher: &refresherStub{},
	}
	submissions := NewSubmissionService(f.committer, nil, f.refresher, nil, nil)
	f.svc = NewWizardService(f.reference, f.gateway, submissions, nil, nil, cfg, NewMetricsService(), nil)
	return f
}

// openAtSelection opens a session and advances it to select_and_validate.
func (f *wizardFixture) openAtSelection(t *testing.T) string {
	t.Helper()
	view, err := f.svc.Open(context.Background(), operator, dto.OpenWizardRequest{AcademicYearID: "year-1", TeacherID: "teacher-1"})
	require.NoError(t, err)
	require.True(t, view.SetupReady)
	view, err = f.svc.Next(operator, view.ID)
	require.NoError(t, err)
	require.Equal(t, models.StepSelectAndValidate, view.Step)
	return view.ID
}

func (f *wizardFixture) selectRow(t *testing.T, id, subjectID, location string, periods int) {
	t.Helper()
	_, err := f.svc.ToggleRow(operator, id, subjectID, true)
	require.NoError(t, err)
	_, err = f.svc.UpdateRow(operator, id, subjectID, dto.UpdateRowRequest{LocationID: &location, WeeklyPeriods: &periods})
	require.NoError(t, err)
}

func rowOf(view *WizardView, subjectID string) RowView {
	for _, row := range view.Rows {
		if row.SubjectID == subjectID {
			return row
		}
	}
	return RowView{}
}

func TestWizardSetupGatesNext(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	view, err := f.svc.Open(context.Background(), operator, dto.OpenWizardRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.StepSetup, view.Step)

	_, err = f.svc.Next(operator, view.ID)
	assert.ErrorIs(t, err, appErrors.ErrStepGate)

	_, err = f.svc.Setup(context.Background(), operator, view.ID, dto.WizardSetupRequest{AcademicYearID: "year-1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	f.reference.teacherErr = appErrors.Clone(appErrors.ErrUpstream, "failed to load teacher")
	_, err = f.svc.Setup(context.Background(), operator, view.ID, dto.WizardSetupRequest{AcademicYearID: "year-1", TeacherID: "teacher-1"})
	assert.ErrorIs(t, err, appErrors.ErrUpstream)
	_, err = f.svc.Next(operator, view.ID)
	assert.ErrorIs(t, err, appErrors.ErrStepGate)

	f.reference.teacherErr = nil
	view, err = f.svc.Setup(context.Background(), operator, view.ID, dto.WizardSetupRequest{AcademicYearID: "year-1", TeacherID: "teacher-1"})
	require.NoError(t, err)
	assert.True(t, view.SetupReady)
	assert.Equal(t, models.LocationClassroom, view.LocationKind)
	assert.Equal(t, 20, view.Capacity.CurrentLessons)
	require.Len(t, view.Rows, 4)
	assert.Equal(t, "math", view.Rows[0].SubjectID)
	assert.False(t, rowOf(view, "art").Compatible)
	assert.Equal(t, "Teacher does not teach Senior Secondary", rowOf(view, "art").IncompatibleReason)

	view, err = f.svc.Next(operator, view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepSelectAndValidate, view.Step)
}

func TestWizardOpenDropsSessionWhenSetupFails(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	f.reference.teacherErr = appErrors.Clone(appErrors.ErrUpstream, "failed to load teacher")

	view, err := f.svc.Open(context.Background(), operator, dto.OpenWizardRequest{AcademicYearID: "year-1", TeacherID: "teacher-1"})
	assert.ErrorIs(t, err, appErrors.ErrUpstream)
	assert.Nil(t, view)
	assert.Zero(t, f.svc.sessions.Len())

	f.reference.teacherErr = nil
	view, err = f.svc.Open(context.Background(), operator, dto.OpenWizardRequest{AcademicYearID: "year-1", TeacherID: "teacher-1"})
	require.NoError(t, err)
	assert.True(t, view.SetupReady)
	assert.Equal(t, 1, f.svc.sessions.Len())
}

func TestWizardIgnoresDuplicateCatalogueEntries(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	f.reference.subjects = append(f.reference.subjects, models.Subject{ID: "math", Name: "Mathematics", GradeLevel: "Grade 7", MinWeeklyPeriods: 4})
	id := f.openAtSelection(t)
	f.selectRow(t, id, "math", "cls-1", 4)

	view, err := f.svc.ValidateAll(context.Background(), operator, id)
	require.NoError(t, err)
	assert.Len(t, view.Rows, 4)
	assert.Equal(t, []string{"math"}, f.gateway.subjectsQueried())
	assert.Equal(t, 4, view.Verdict.Adding)

	_, err = f.svc.Submit(context.Background(), operator, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"math"}, f.committer.calls)
}

func TestWizardToggleSeedsDefaults(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	id := f.openAtSelection(t)

	view, err := f.svc.ToggleRow(operator, id, "bio", true)
	require.NoError(t, err)
	row := rowOf(view, "bio")
	assert.True(t, row.Selected)
	assert.Equal(t, 5, row.WeeklyPeriods)
	assert.Equal(t, models.RoleMainTeacher, row.Role)
	assert.Nil(t, row.Location, "location is only seeded when a single option exists")
	assert.Equal(t, []string{"Classroom"}, row.MissingFields)

	_, err = f.svc.ToggleRow(operator, id, "unknown", true)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	view, err = f.svc.ToggleRow(operator, id, "bio", false)
	require.NoError(t, err)
	assert.False(t, rowOf(view, "bio").Selected)
	assert.Equal(t, 5, rowOf(view, "bio").WeeklyPeriods, "deselecting keeps entered data")
}

func TestWizardToggleSeedsSingleLocation(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	f.reference.locations = f.reference.locations[:1]
	id := f.openAtSelection(t)

	view, err := f.svc.ToggleRow(operator, id, "math", true)
	require.NoError(t, err)
	require.NotNil(t, rowOf(view, "math").Location)
	assert.Equal(t, "cls-1", rowOf(view, "math").Location.ID)
	assert.Equal(t, "7 East", rowOf(view, "math").LocationName)
}

func TestWizardSelectAllOnlyCompatibleSubjects(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	id := f.openAtSelection(t)

	view, err := f.svc.SelectAll(operator, id)
	require.NoError(t, err)
	for _, subjectID := range []string{"math", "bio", "chem"} {
		row := rowOf(view, subjectID)
		assert.True(t, row.Selected, subjectID)
		require.NotNil(t, row.Location, subjectID)
		assert.Equal(t, "cls-1", row.Location.ID)
	}
	assert.Equal(t, 3, rowOf(view, "chem").WeeklyPeriods)
	assert.False(t, rowOf(view, "art").Selected)
	assert.Equal(t, 3, view.Counts.Selected)
}

func TestWizardValidateAllRequiresCompleteRows(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	id := f.openAtSelection(t)

	_, err := f.svc.ValidateAll(context.Background(), operator, id)
	assert.ErrorIs(t, err, appErrors.ErrStepGate)

	periods := 5
	_, err = f.svc.ToggleRow(operator, id, "chem", true)
	require.NoError(t, err)
	_, err = f.svc.UpdateRow(operator, id, "chem", dto.UpdateRowRequest{WeeklyPeriods: &periods})
	require.NoError(t, err)

	_, err = f.svc.ValidateAll(context.Background(), operator, id)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrIncompleteRows.Code, appErr.Code)
	incomplete, ok := appErr.Details.([]IncompleteRow)
	require.True(t, ok)
	assert.Equal(t, []IncompleteRow{{SubjectID: "chem", SubjectName: "Chemistry", MissingFields: []string{"Classroom"}}}, incomplete)
	assert.Empty(t, f.gateway.subjectsQueried())
}

func TestWizardValidateAllNamesStreamForStreamSchools(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	f.reference.settings.UsesStreams = true
	id := f.openAtSelection(t)
	_, err := f.svc.ToggleRow(operator, id, "math", true)
	require.NoError(t, err)

	_, err = f.svc.ValidateAll(context.Background(), operator, id)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, []string{"Stream"}, appErr.Details.([]IncompleteRow)[0].MissingFields)
}

func TestWizardCumulativeOverflowAndRepair(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	id := f.openAtSelection(t)
	f.selectRow(t, id, "bio", "cls-1", 5)
	f.selectRow(t, id, "math", "cls-2", 4)

	view, err := f.svc.ValidateAll(context.Background(), operator, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepReviewAndSave, view.Step)
	assert.Equal(t, []string{"math", "bio"}, f.gateway.subjectsQueried(), "rows validate in catalogue order")

	require.NotNil(t, view.Verdict)
	assert.Equal(t, 9, view.Verdict.Adding)
	assert.Equal(t, 29, view.Verdict.ProjectedTotal)
	assert.True(t, view.Verdict.Over)
	assert.Equal(t, 2, view.Verdict.OverflowAmount)
	assert.False(t, view.SubmitAllowed)
	assert.Equal(t, 2, view.Counts.Valid)

	_, err = f.svc.Submit(context.Background(), operator, id)
	assert.ErrorIs(t, err, appErrors.ErrSubmitBlocked)
	assert.Empty(t, f.committer.calls)

	require.Len(t, view.RepairPlans, 2)
	bioPlan := view.RepairPlans[1]
	assert.Equal(t, "bio", bioPlan.SubjectID)
	assert.Equal(t, RepairCumulative, bioPlan.Kind)
	assert.Equal(t, 4, bioPlan.MaxAllowed)
	assert.Equal(t, 3, bioPlan.Suggested)

	_, err = f.svc.ApplyRepair(context.Background(), operator, id, "bio", 5)
	assert.ErrorIs(t, err, appErrors.ErrRepairRefused)

	view, err = f.svc.ApplyRepair(context.Background(), operator, id, "bio", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rowOf(view, "bio").WeeklyPeriods)
	assert.Equal(t, models.RowStatusValid, rowOf(view, "bio").Status)
	assert.Equal(t, 27, view.Verdict.ProjectedTotal)
	assert.False(t, view.Verdict.Over)
	assert.Equal(t, 0, view.Verdict.Remaining)
	assert.True(t, view.SubmitAllowed)
	assert.Empty(t, view.RepairPlans)
}

func TestWizardIndividualRepair(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	f.gateway.outcomes["math"] = &models.ValidationOutcome{
		Errors:          []models.ValidationIssue{{Type: models.ErrorTypeWorkloadExceeded, Message: "Workload would be 31/27"}},
		WorkloadSummary: &models.WorkloadSummary{CurrentLessons: 25, MaxLessons: 27, NewTotal: 31},
	}
	id := f.openAtSelection(t)
	f.selectRow(t, id, "math", "cls-1", 6)

	view, err := f.svc.ValidateAll(context.Background(), operator, id)
	require.NoError(t, err)
	require.Len(t, view.RepairPlans, 1)
	plan := view.RepairPlans[0]
	assert.Equal(t, RepairIndividual, plan.Kind)
	assert.Equal(t, 2, plan.MaxAllowed)
	assert.Equal(t, 2, plan.Default)
	assert.Equal(t, "Teacher workload limit exceeded", rowOf(view, "math").Guidance[0].Title)
	assert.False(t, view.SubmitAllowed)

	_, err = f.svc.ApplyRepair(context.Background(), operator, id, "math", 3)
	assert.ErrorIs(t, err, appErrors.ErrRepairRefused)

	delete(f.gateway.outcomes, "math")
	view, err = f.svc.ApplyRepair(context.Background(), operator, id, "math", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, rowOf(view, "math").WeeklyPeriods)
	assert.True(t, view.SubmitAllowed)
	assert.Len(t, f.gateway.subjectsQueried(), 2)
}

func TestWizardFullyBookedRepairIsRefusedLocally(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	f.gateway.outcomes["math"] = &models.ValidationOutcome{
		Errors:          []models.ValidationIssue{{Type: models.ErrorTypeWorkloadExceeded, Message: "Fully booked"}},
		WorkloadSummary: &models.WorkloadSummary{CurrentLessons: 27, MaxLessons: 27, NewTotal: 31},
	}
	id := f.openAtSelection(t)
	f.selectRow(t, id, "math", "cls-1", 4)
	view, err := f.svc.ValidateAll(context.Background(), operator, id)
	require.NoError(t, err)
	require.Len(t, view.RepairPlans, 1)
	assert.True(t, view.RepairPlans[0].Refused)

	_, err = f.svc.ApplyRepair(context.Background(), operator, id, "math", 1)
	assert.ErrorIs(t, err, appErrors.ErrRepairRefused)
	assert.Len(t, f.gateway.subjectsQueried(), 1, "no request is sent for a refused repair")
}

func TestWizardNonCapacityErrorOffersNoRepair(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	f.gateway.outcomes["math"] = &models.ValidationOutcome{
		Errors: []models.ValidationIssue{{Type: models.ErrorTypeLevelMismatch, Message: "Teacher's levels do not include Junior Secondary"}},
	}
	id := f.openAtSelection(t)
	f.selectRow(t, id, "math", "cls-1", 4)

	view, err := f.svc.ValidateAll(context.Background(), operator, id)
	require.NoError(t, err)
	row := rowOf(view, "math")
	assert.Equal(t, models.RowStatusInvalid, row.Status)
	require.Len(t, row.Guidance, 1)
	assert.Equal(t, "Teacher not qualified for this level", row.Guidance[0].Title)
	assert.Equal(t, "Teacher's levels do not include Junior Secondary", row.Guidance[0].Message)
	assert.Empty(t, view.RepairPlans)
	assert.Equal(t, "no selected row is valid", view.SubmitBlockedReason)

	_, err = f.svc.ApplyRepair(context.Background(), operator, id, "math", 2)
	assert.ErrorIs(t, err, appErrors.ErrRepairRefused)
}

func TestWizardPartialCommitAndRetry(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	f.reference.capacities = []models.CapacitySnapshot{{CurrentLessons: 10, MaxLessons: 27}, {CurrentLessons: 17, MaxLessons: 27}}
	f.committer.failures["bio"] = &repository.UpstreamError{Operation: "commit_assignment", Status: 409, Message: "Duplicate assignment"}
	id := f.openAtSelection(t)
	f.selectRow(t, id, "math", "cls-1", 4)
	f.selectRow(t, id, "bio", "cls-1", 5)
	f.selectRow(t, id, "chem", "cls-2", 3)

	_, err := f.svc.ValidateAll(context.Background(), operator, id)
	require.NoError(t, err)
	view, err := f.svc.Submit(context.Background(), operator, id)
	require.NoError(t, err)

	assert.Equal(t, models.StepResults, view.Step)
	assert.Equal(t, []string{"math", "bio", "chem"}, f.committer.calls)
	require.NotNil(t, view.Result)
	assert.Equal(t, []string{"Mathematics", "Chemistry"}, view.Result.SucceededNames())
	assert.Equal(t, []models.SubmissionFailure{{SubjectID: "bio", Name: "Biology", Reason: "Duplicate assignment"}}, view.Result.Failed)
	assert.Equal(t, []string{"teacher-1/year-1"}, f.refresher.calls)
	assert.Equal(t, 17, view.Capacity.CurrentLessons, "capacity is refreshed after a successful commit")

	file, err := f.svc.Export(operator, id, ExportFormatCSV)
	require.NoError(t, err)
	assert.Contains(t, string(file.Body), "Biology,failed,,Duplicate assignment")

	view, err = f.svc.Retry(operator, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepSelectAndValidate, view.Step)
	assert.False(t, rowOf(view, "math").Selected)
	assert.Zero(t, rowOf(view, "math").WeeklyPeriods, "committed rows are dropped")
	bio := rowOf(view, "bio")
	assert.True(t, bio.Selected)
	assert.Nil(t, bio.Validation)
	assert.Equal(t, 5, bio.WeeklyPeriods)
	assert.Nil(t, view.Result)
}

func TestWizardSubmitRefusedWhenCapacityChanged(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{RefreshBaseBeforeCommit: true})
	f.reference.capacities = []models.CapacitySnapshot{{CurrentLessons: 20, MaxLessons: 27}, {CurrentLessons: 25, MaxLessons: 27}}
	id := f.openAtSelection(t)
	f.selectRow(t, id, "math", "cls-1", 4)
	_, err := f.svc.ValidateAll(context.Background(), operator, id)
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), operator, id)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrCapacityChanged)
	assert.Empty(t, f.committer.calls)

	view, err := f.svc.Review(operator, id)
	require.NoError(t, err)
	assert.Equal(t, 25, view.Capacity.CurrentLessons)
	assert.True(t, view.Verdict.Over)
	assert.False(t, view.Submitting)
	assert.False(t, view.SubmitAllowed)
}

func TestWizardSubmitWithUnchangedBaseCommits(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{RefreshBaseBeforeCommit: true})
	id := f.openAtSelection(t)
	f.selectRow(t, id, "math", "cls-1", 4)
	_, err := f.svc.ValidateAll(context.Background(), operator, id)
	require.NoError(t, err)

	view, err := f.svc.Submit(context.Background(), operator, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepResults, view.Step)
	assert.Equal(t, []string{"math"}, f.committer.calls)
}

func TestWizardEditInvalidatesRow(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	id := f.openAtSelection(t)
	f.selectRow(t, id, "math", "cls-1", 4)
	_, err := f.svc.ValidateAll(context.Background(), operator, id)
	require.NoError(t, err)
	view, err := f.svc.Back(operator, id)
	require.NoError(t, err)
	require.NotNil(t, rowOf(view, "math").Validation, "going back keeps outcomes")

	same := 4
	view, err = f.svc.UpdateRow(operator, id, "math", dto.UpdateRowRequest{WeeklyPeriods: &same})
	require.NoError(t, err)
	assert.NotNil(t, rowOf(view, "math").Validation, "unchanged values are not an edit")

	role := string(models.RoleSubstitute)
	view, err = f.svc.UpdateRow(operator, id, "math", dto.UpdateRowRequest{Role: &role})
	require.NoError(t, err)
	assert.Nil(t, rowOf(view, "math").Validation)
	assert.Equal(t, models.RoleSubstitute, rowOf(view, "math").Role)

	unknown := "cls-99"
	_, err = f.svc.UpdateRow(operator, id, "math", dto.UpdateRowRequest{LocationID: &unknown})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.UpdateRow(operator, id, "bio", dto.UpdateRowRequest{LocationID: &unknown})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestWizardChangingTeacherResetsSession(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	id := f.openAtSelection(t)
	f.selectRow(t, id, "math", "cls-1", 4)

	_, err := f.svc.Back(operator, id)
	require.NoError(t, err)

	view, err := f.svc.Setup(context.Background(), operator, id, dto.WizardSetupRequest{AcademicYearID: "year-1", TeacherID: "teacher-1"})
	require.NoError(t, err)
	assert.True(t, rowOf(view, "math").Selected, "same pair keeps rows")
	assert.Equal(t, 1, f.reference.capacityCalls, "same pair does not refetch")

	view, err = f.svc.Setup(context.Background(), operator, id, dto.WizardSetupRequest{AcademicYearID: "year-1", TeacherID: "teacher-2"})
	require.NoError(t, err)
	assert.False(t, rowOf(view, "math").Selected)
	assert.Equal(t, "teacher-2", view.TeacherID)
	assert.Equal(t, 0, view.Counts.Selected)
}

func TestWizardBackTransitions(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	view, err := f.svc.Open(context.Background(), operator, dto.OpenWizardRequest{})
	require.NoError(t, err)
	_, err = f.svc.Back(operator, view.ID)
	assert.ErrorIs(t, err, appErrors.ErrStepGate)

	id := f.openAtSelection(t)
	view, err = f.svc.Back(operator, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepSetup, view.Step)
}

func TestWizardRejectsReentrantActionsWhileValidating(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	id := f.openAtSelection(t)
	f.selectRow(t, id, "math", "cls-1", 4)

	var toggleErr, validateErr error
	f.gateway.hook = func(models.ValidationQuery) {
		_, toggleErr = f.svc.ToggleRow(operator, id, "bio", true)
		_, validateErr = f.svc.ValidateAll(context.Background(), operator, id)
	}
	_, err := f.svc.ValidateAll(context.Background(), operator, id)
	require.NoError(t, err)
	assert.ErrorIs(t, toggleErr, appErrors.ErrBusy)
	assert.ErrorIs(t, validateErr, appErrors.ErrBusy)
}

func TestWizardDropsResponsesAfterClose(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	id := f.openAtSelection(t)
	f.selectRow(t, id, "math", "cls-1", 4)
	f.selectRow(t, id, "bio", "cls-1", 5)
	sess, ok := f.svc.sessions.Get(id)
	require.True(t, ok)

	f.gateway.hook = func(models.ValidationQuery) {
		require.NoError(t, f.svc.Close(operator, id))
	}
	_, err := f.svc.ValidateAll(context.Background(), operator, id)
	assert.ErrorIs(t, err, appErrors.ErrSessionNotFound)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	assert.True(t, sess.closed)
	assert.Nil(t, sess.rows["math"].Validation)
	assert.Nil(t, sess.rows["bio"].Validation)
	assert.Equal(t, []string{"math"}, f.gateway.subjectsQueried())

	_, err = f.svc.Get(operator, id)
	assert.ErrorIs(t, err, appErrors.ErrSessionNotFound)
}

func TestWizardSessionsAreScopedToOperator(t *testing.T) {
	f := newWizardFixture(t, WizardConfig{})
	id := f.openAtSelection(t)

	_, err := f.svc.Get("someone-else", id)
	assert.ErrorIs(t, err, appErrors.ErrSessionNotFound)
	assert.ErrorIs(t, f.svc.Close("someone-else", id), appErrors.ErrSessionNotFound)
}
