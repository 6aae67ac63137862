package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-assignment-engine/internal/dto"
	"github.com/noah-isme/sma-assignment-engine/internal/models"
	appErrors "github.com/noah-isme/sma-assignment-engine/pkg/errors"
)

// WizardSessionKind labels wizard sessions in metrics.
const WizardSessionKind = "wizard"

type referenceSource interface {
	Teacher(ctx context.Context, teacherID string) (*models.Teacher, error)
	Subjects(ctx context.Context) ([]models.Subject, error)
	SchoolSettings(ctx context.Context) (*models.SchoolSettings, error)
	Locations(ctx context.Context, kind models.LocationKind, academicYearID string) ([]models.LocationOption, error)
	Capacity(ctx context.Context, teacherID, academicYearID string) (*models.CapacitySnapshot, error)
}

type candidateValidator interface {
	Validate(ctx context.Context, query models.ValidationQuery) *models.ValidationOutcome
}

type batchCommitter interface {
	Commit(ctx context.Context, batch SubmissionBatch) models.SubmissionResult
}

type resultsRenderer interface {
	Render(format ExportFormat, report ResultsReport) (*ExportFile, error)
}

// WizardConfig tunes wizard behaviour.
type WizardConfig struct {
	SessionTTL              time.Duration
	NearCapacityRatio       float64
	RefreshBaseBeforeCommit bool
}

// WizardService runs the bulk assignment wizard. Sessions live in memory and
// are guarded by their own mutex, which is never held across remote calls.
type WizardService struct {
	reference   referenceSource
	gateway     candidateValidator
	submissions batchCommitter
	exports     resultsRenderer
	sessions    *SessionRegistry[*wizardSession]
	validator   *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         WizardConfig
	now         func() time.Time
}

// NewWizardService constructs the wizard service.
func NewWizardService(
	reference referenceSource,
	gateway candidateValidator,
	submissions batchCommitter,
	exports resultsRenderer,
	validate *validator.Validate,
	cfg WizardConfig,
	metrics *MetricsService,
	logger *zap.Logger,
) *WizardService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if exports == nil {
		exports = NewExportService(nil, nil)
	}
	if cfg.NearCapacityRatio <= 0 || cfg.NearCapacityRatio > 1 {
		cfg.NearCapacityRatio = DefaultNearCapacityRatio
	}
	s := &WizardService{
		reference:   reference,
		gateway:     gateway,
		submissions: submissions,
		exports:     exports,
		validator:   validate,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
	s.sessions = NewSessionRegistry[*wizardSession](WizardSessionKind, cfg.SessionTTL, s.evict, metrics, logger)
	return s
}

// RunJanitor expires idle sessions until ctx is cancelled.
func (s *WizardService) RunJanitor(ctx context.Context, interval time.Duration) {
	s.sessions.Run(ctx, interval)
}

// Open creates a session in the setup step. When both ids are supplied the
// setup data is fetched immediately; if that fetch fails the session is
// dropped so no unreachable session lingers.
func (s *WizardService) Open(ctx context.Context, operatorID string, req dto.OpenWizardRequest) (*WizardView, error) {
	sess := &wizardSession{
		id:         uuid.NewString(),
		operatorID: operatorID,
		step:       models.StepSetup,
		rows:       make(map[string]*models.CandidateRow),
		updatedAt:  s.now().UTC(),
	}
	s.sessions.Put(sess.id, sess)
	s.logger.Info("wizard session opened", zap.String("session_id", sess.id), zap.String("operator_id", operatorID))

	if req.AcademicYearID != "" && req.TeacherID != "" {
		view, err := s.Setup(ctx, operatorID, sess.id, dto.WizardSetupRequest{AcademicYearID: req.AcademicYearID, TeacherID: req.TeacherID})
		if err != nil {
			s.sessions.Delete(sess.id)
			return nil, err
		}
		return view, nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.view(sess), nil
}

// Get returns the current session view.
func (s *WizardService) Get(operatorID, id string) (*WizardView, error) {
	sess, err := s.acquire(operatorID, id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	return s.view(sess), nil
}

// Close discards the session. Responses still in flight are dropped.
func (s *WizardService) Close(operatorID, id string) error {
	sess, ok := s.sessions.Get(id)
	if !ok || sess.operatorID != operatorID {
		return appErrors.ErrSessionNotFound
	}
	s.sessions.Delete(id)
	s.logger.Info("wizard session closed", zap.String("session_id", id))
	return nil
}

// Setup chooses the academic year and teacher. Choosing a different pair
// resets the session; the capacity snapshot, teacher profile, school
// settings, location options and subject catalogue are fetched concurrently.
func (s *WizardService) Setup(ctx context.Context, operatorID, id string, req dto.WizardSetupRequest) (*WizardView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "academic year and teacher are required")
	}
	sess, err := s.acquire(operatorID, id)
	if err != nil {
		return nil, err
	}
	if err := sess.ensureIdle(); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	if sess.step != models.StepSetup {
		sess.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrStepGate, "go back to setup to change the academic year or teacher")
	}
	if sess.academicYearID != req.AcademicYearID || sess.teacherID != req.TeacherID {
		sess.reset(req.AcademicYearID, req.TeacherID)
	} else if sess.setupReady {
		defer sess.mu.Unlock()
		return s.view(sess), nil
	}
	sess.loading = true
	epoch := sess.epoch
	sess.mu.Unlock()

	data, fetchErr := s.fetchSetup(ctx, req.TeacherID, req.AcademicYearID)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.loading = false
	if sess.closed {
		return nil, appErrors.ErrSessionNotFound
	}
	if sess.epoch != epoch {
		return nil, appErrors.Clone(appErrors.ErrConflict, "setup changed while loading")
	}
	if fetchErr != nil {
		s.logger.Warn("wizard setup fetch failed",
			zap.String("session_id", id),
			zap.String("teacher_id", req.TeacherID),
			zap.String("academic_year_id", req.AcademicYearID),
			zap.Error(fetchErr),
		)
		return nil, fetchErr
	}
	sess.applySetup(data)
	sess.touch(s.now())
	return s.view(sess), nil
}

type setupData struct {
	capacity  *models.CapacitySnapshot
	teacher   *models.Teacher
	settings  *models.SchoolSettings
	locations []models.LocationOption
	subjects  []models.Subject
}

func (s *WizardService) fetchSetup(ctx context.Context, teacherID, academicYearID string) (setupData, error) {
	var data setupData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		capacity, err := s.reference.Capacity(gctx, teacherID, academicYearID)
		data.capacity = capacity
		return err
	})
	g.Go(func() error {
		teacher, err := s.reference.Teacher(gctx, teacherID)
		data.teacher = teacher
		return err
	})
	g.Go(func() error {
		subjects, err := s.reference.Subjects(gctx)
		data.subjects = subjects
		return err
	})
	g.Go(func() error {
		settings, err := s.reference.SchoolSettings(gctx)
		if err != nil {
			return err
		}
		locations, err := s.reference.Locations(gctx, settings.LocationKind(), academicYearID)
		data.settings = settings
		data.locations = locations
		return err
	})
	if err := g.Wait(); err != nil {
		return setupData{}, appErrors.FromError(err)
	}
	return data, nil
}

// Next leaves setup once both ids are chosen and the setup fetch succeeded.
func (s *WizardService) Next(operatorID, id string) (*WizardView, error) {
	sess, err := s.acquire(operatorID, id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	if err := sess.ensureIdle(); err != nil {
		return nil, err
	}
	if sess.step != models.StepSetup {
		return nil, appErrors.Clone(appErrors.ErrStepGate, "next is only available in the setup step")
	}
	if sess.academicYearID == "" || sess.teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrStepGate, "select an academic year and a teacher first")
	}
	if !sess.setupReady {
		return nil, appErrors.Clone(appErrors.ErrStepGate, "setup data has not been loaded")
	}
	s.moveTo(sess, models.StepSelectAndValidate)
	return s.view(sess), nil
}

// Back steps one state backwards without discarding entered data.
func (s *WizardService) Back(operatorID, id string) (*WizardView, error) {
	sess, err := s.acquire(operatorID, id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	if err := sess.ensureIdle(); err != nil {
		return nil, err
	}
	switch sess.step {
	case models.StepReviewAndSave:
		s.moveTo(sess, models.StepSelectAndValidate)
	case models.StepSelectAndValidate:
		s.moveTo(sess, models.StepSetup)
	default:
		return nil, appErrors.Clone(appErrors.ErrStepGate, fmt.Sprintf("cannot go back from %s", sess.step))
	}
	return s.view(sess), nil
}

// ToggleRow selects or deselects a subject. Selecting a subject for the first
// time seeds its recommended minimum periods, the main teacher role and the
// location when only one option exists.
func (s *WizardService) ToggleRow(operatorID, id, subjectID string, selected bool) (*WizardView, error) {
	sess, err := s.acquireInStep(operatorID, id, models.StepSelectAndValidate)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	subject, ok := sess.subject(subjectID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}
	row := sess.rows[subjectID]
	if selected {
		if row == nil {
			var location models.Location
			if len(sess.locations) == 1 {
				location = models.Location{Kind: sess.locationKind, ID: sess.locations[0].ID}
			}
			row = models.NewCandidateRow(subject, location)
			sess.rows[subjectID] = row
		}
		row.Selected = true
	} else if row != nil {
		row.Selected = false
	}
	sess.touch(s.now())
	return s.view(sess), nil
}

// UpdateRow edits the fields of a row. Every effective change discards the
// row's validation outcome.
func (s *WizardService) UpdateRow(operatorID, id, subjectID string, req dto.UpdateRowRequest) (*WizardView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid row payload")
	}
	sess, err := s.acquireInStep(operatorID, id, models.StepSelectAndValidate)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	row := sess.rows[subjectID]
	if row == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "subject has not been selected")
	}

	if req.LocationID != nil {
		location, err := sess.resolveLocation(*req.LocationID)
		if err != nil {
			return nil, err
		}
		if location != row.Location {
			row.SetLocation(location)
		}
	}
	if req.WeeklyPeriods != nil && *req.WeeklyPeriods != row.WeeklyPeriods {
		row.SetWeeklyPeriods(*req.WeeklyPeriods)
	}
	if req.Role != nil {
		role := models.AssignmentRole(*req.Role)
		if !role.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown assignment role")
		}
		if role != row.Role {
			row.SetRole(role)
		}
	}
	sess.touch(s.now())
	return s.view(sess), nil
}

// SelectAll selects every compatible subject, seeding the first location
// option where none is set.
func (s *WizardService) SelectAll(operatorID, id string) (*WizardView, error) {
	sess, err := s.acquireInStep(operatorID, id, models.StepSelectAndValidate)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	var first models.Location
	if len(sess.locations) > 0 {
		first = models.Location{Kind: sess.locationKind, ID: sess.locations[0].ID}
	}
	for _, subject := range sess.partition.Compatible {
		row := sess.rows[subject.ID]
		if row == nil {
			row = models.NewCandidateRow(subject, first)
			sess.rows[subject.ID] = row
		} else if row.Location.IsZero() && !first.IsZero() {
			row.SetLocation(first)
		}
		row.Selected = true
	}
	sess.touch(s.now())
	return s.view(sess), nil
}

type pendingValidation struct {
	subjectID string
	revision  uint64
	query     models.ValidationQuery
}

// ValidateAll validates every selected row one after another in catalogue
// order, then moves to review regardless of how many rows failed.
func (s *WizardService) ValidateAll(ctx context.Context, operatorID, id string) (*WizardView, error) {
	sess, err := s.acquireInStep(operatorID, id, models.StepSelectAndValidate)
	if err != nil {
		return nil, err
	}
	selected := sess.selectedRows()
	if len(selected) == 0 {
		sess.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrStepGate, "select at least one subject")
	}
	if incomplete := sess.incompleteRows(selected); len(incomplete) > 0 {
		sess.mu.Unlock()
		return nil, appErrors.WithDetails(appErrors.ErrIncompleteRows, incompleteMessage(incomplete), incomplete)
	}

	pending := make([]pendingValidation, 0, len(selected))
	for _, row := range selected {
		pending = append(pending, pendingValidation{subjectID: row.SubjectID, revision: row.Revision, query: sess.query(row)})
	}
	sess.validating = true
	epoch := sess.epoch
	sess.mu.Unlock()

	s.logger.Info("validating candidate rows", zap.String("session_id", id), zap.Int("rows", len(pending)))
	for _, item := range pending {
		outcome := s.gateway.Validate(ctx, item.query)
		sess.mu.Lock()
		if sess.closed {
			sess.validating = false
			sess.mu.Unlock()
			return nil, appErrors.ErrSessionNotFound
		}
		sess.record(epoch, item.subjectID, item.revision, outcome)
		sess.mu.Unlock()
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.validating = false
	if sess.closed {
		return nil, appErrors.ErrSessionNotFound
	}
	s.moveTo(sess, models.StepReviewAndSave)
	return s.view(sess), nil
}

// Review returns the review summary, verdict and repair plans.
func (s *WizardService) Review(operatorID, id string) (*WizardView, error) {
	sess, err := s.acquire(operatorID, id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	if sess.step != models.StepReviewAndSave {
		return nil, appErrors.Clone(appErrors.ErrStepGate, "review is only available after validation")
	}
	return s.view(sess), nil
}

// ApplyRepair writes the chosen period count onto a row that needs a repair
// and re-validates that row only.
func (s *WizardService) ApplyRepair(ctx context.Context, operatorID, id, subjectID string, periods int) (*WizardView, error) {
	sess, err := s.acquire(operatorID, id)
	if err != nil {
		return nil, err
	}
	if err := sess.ensureIdle(); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	if sess.step != models.StepReviewAndSave {
		sess.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrStepGate, "repairs are applied from the review step")
	}
	row := sess.rows[subjectID]
	if row == nil || !row.Selected {
		sess.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrNotFound, "subject has not been selected")
	}
	if row.Revalidating {
		sess.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrBusy, "row is being re-validated")
	}
	plan, ok := s.planFor(sess, subjectID)
	if !ok {
		sess.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrRepairRefused, "row does not need a repair")
	}
	if err := plan.Check(periods); err != nil {
		sess.mu.Unlock()
		return nil, err
	}

	row.SetWeeklyPeriods(periods)
	row.Revalidating = true
	item := pendingValidation{subjectID: subjectID, revision: row.Revision, query: sess.query(row)}
	epoch := sess.epoch
	sess.touch(s.now())
	sess.mu.Unlock()

	s.metrics.RecordRepair(plan.Kind)
	s.logger.Info("repair applied",
		zap.String("session_id", id),
		zap.String("subject_id", subjectID),
		zap.String("kind", string(plan.Kind)),
		zap.Int("weekly_periods", periods),
	)
	outcome := s.gateway.Validate(ctx, item.query)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil, appErrors.ErrSessionNotFound
	}
	sess.record(epoch, item.subjectID, item.revision, outcome)
	return s.view(sess), nil
}

// Submit commits every selected valid row. It is refused while the batch
// overflows capacity or no row is valid.
func (s *WizardService) Submit(ctx context.Context, operatorID, id string) (*WizardView, error) {
	sess, err := s.acquire(operatorID, id)
	if err != nil {
		return nil, err
	}
	if err := sess.ensureIdle(); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	if sess.step != models.StepReviewAndSave {
		sess.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrStepGate, "submit is only available in the review step")
	}
	if sess.anyRevalidating() {
		sess.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrBusy, "wait for re-validation to finish")
	}
	if reason := s.submitBlockedReason(sess); reason != "" {
		sess.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrSubmitBlocked, reason)
	}

	batch := SubmissionBatch{
		SessionID:      sess.id,
		OperatorID:     sess.operatorID,
		TeacherID:      sess.teacherID,
		AcademicYearID: sess.academicYearID,
	}
	for _, row := range sess.orderedRows() {
		if !row.Committable() {
			continue
		}
		subject, _ := sess.subject(row.SubjectID)
		batch.Items = append(batch.Items, SubmissionItem{
			SubjectName: subject.Name,
			Command: models.AssignmentCommand{
				TeacherID:      sess.teacherID,
				SubjectID:      row.SubjectID,
				AcademicYearID: sess.academicYearID,
				WeeklyPeriods:  row.WeeklyPeriods,
				Role:           row.Role,
				Location:       row.Location,
			},
		})
	}
	sess.submitting = true
	sess.mu.Unlock()

	// Commits continue even if the caller goes away.
	commitCtx := context.WithoutCancel(ctx)

	if s.cfg.RefreshBaseBeforeCommit {
		if err := s.recheckBase(commitCtx, sess, batch); err != nil {
			return nil, err
		}
	}

	result := s.submissions.Commit(commitCtx, batch)

	var refreshed *models.CapacitySnapshot
	if result.AnySucceeded() {
		fresh, err := s.reference.Capacity(commitCtx, batch.TeacherID, batch.AcademicYearID)
		if err != nil {
			s.logger.Warn("failed to refresh capacity after commit", zap.String("session_id", id), zap.Error(err))
		} else {
			refreshed = fresh
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.submitting = false
	if sess.closed {
		s.logger.Info("session closed during submission", zap.String("session_id", id))
		return nil, appErrors.ErrSessionNotFound
	}
	sess.result = &result
	if refreshed != nil {
		sess.capacity = *refreshed
	}
	s.moveTo(sess, models.StepResults)
	return s.view(sess), nil
}

// recheckBase re-fetches the capacity snapshot and refuses the commit when
// the fresh base pushes the batch over capacity. It clears the submitting
// flag on every refusal.
func (s *WizardService) recheckBase(ctx context.Context, sess *wizardSession, batch SubmissionBatch) error {
	fresh, err := s.reference.Capacity(ctx, batch.TeacherID, batch.AcademicYearID)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err != nil {
		sess.submitting = false
		return err
	}
	if sess.closed {
		sess.submitting = false
		return appErrors.ErrSessionNotFound
	}
	sess.capacity = *fresh
	verdict := AggregateWorkload(sess.capacity, sess.orderedRows(), s.cfg.NearCapacityRatio)
	if verdict.Over {
		sess.submitting = false
		s.logger.Warn("capacity changed before commit",
			zap.String("session_id", sess.id),
			zap.String("teacher_id", batch.TeacherID),
			zap.Int("base", verdict.Base),
			zap.Int("overflow", verdict.OverflowAmount),
		)
		return appErrors.WithDetails(appErrors.ErrCapacityChanged,
			fmt.Sprintf("teacher workload changed; the batch now exceeds capacity by %d periods", verdict.OverflowAmount), verdict)
	}
	return nil
}

// Retry leaves the results step: committed rows are dropped, failed rows stay
// selected with their outcome cleared.
func (s *WizardService) Retry(operatorID, id string) (*WizardView, error) {
	sess, err := s.acquire(operatorID, id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	if sess.step != models.StepResults || sess.result == nil {
		return nil, appErrors.Clone(appErrors.ErrStepGate, "retry is only available on the results step")
	}
	for _, committed := range sess.result.Succeeded {
		delete(sess.rows, committed.SubjectID)
	}
	for _, failed := range sess.result.Failed {
		if row := sess.rows[failed.SubjectID]; row != nil {
			row.Selected = true
			row.Invalidate()
		}
	}
	sess.result = nil
	s.moveTo(sess, models.StepSelectAndValidate)
	return s.view(sess), nil
}

// Export renders the results of the last submission.
func (s *WizardService) Export(operatorID, id string, format ExportFormat) (*ExportFile, error) {
	sess, err := s.acquire(operatorID, id)
	if err != nil {
		return nil, err
	}
	if sess.step != models.StepResults || sess.result == nil {
		sess.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrStepGate, "results are not available yet")
	}
	report := ResultsReport{AcademicYearID: sess.academicYearID, Result: *sess.result, GeneratedAt: s.now()}
	if sess.teacher != nil {
		report.TeacherName = sess.teacher.FullName
	}
	sess.mu.Unlock()
	return s.exports.Render(format, report)
}

func (s *WizardService) evict(id string, sess *wizardSession) {
	sess.mu.Lock()
	sess.closed = true
	sess.mu.Unlock()
}

// acquire returns the session locked. Callers must unlock it.
func (s *WizardService) acquire(operatorID, id string) (*wizardSession, error) {
	sess, ok := s.sessions.Get(id)
	if !ok || sess.operatorID != operatorID {
		return nil, appErrors.ErrSessionNotFound
	}
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return nil, appErrors.ErrSessionNotFound
	}
	return sess, nil
}

func (s *WizardService) acquireInStep(operatorID, id string, step models.WizardStep) (*wizardSession, error) {
	sess, err := s.acquire(operatorID, id)
	if err != nil {
		return nil, err
	}
	if err := sess.ensureIdle(); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	if sess.step != step {
		current := sess.step
		sess.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrStepGate, fmt.Sprintf("action requires step %s, session is in %s", step, current))
	}
	return sess, nil
}

func (s *WizardService) moveTo(sess *wizardSession, step models.WizardStep) {
	from := sess.step
	sess.step = step
	sess.touch(s.now())
	s.metrics.RecordTransition(from, step)
	s.logger.Info("wizard step changed",
		zap.String("session_id", sess.id),
		zap.String("from", string(from)),
		zap.String("to", string(step)),
	)
}

func (s *WizardService) submitBlockedReason(sess *wizardSession) string {
	rows := sess.orderedRows()
	valid := CountValid(rows)
	verdict := AggregateWorkload(sess.capacity, rows, s.cfg.NearCapacityRatio)
	switch {
	case valid == 0:
		return "no selected row is valid"
	case verdict.Over:
		return fmt.Sprintf("the batch exceeds the teacher's capacity by %d periods", verdict.OverflowAmount)
	}
	return ""
}

func (s *WizardService) planFor(sess *wizardSession, subjectID string) (RepairPlan, bool) {
	rows := sess.orderedRows()
	verdict := AggregateWorkload(sess.capacity, rows, s.cfg.NearCapacityRatio)
	for _, plan := range RepairPlansFor(rows, sess.capacity, verdict) {
		if plan.SubjectID == subjectID {
			return plan, true
		}
	}
	return RepairPlan{}, false
}

func (s *WizardService) view(sess *wizardSession) *WizardView {
	view := &WizardView{
		ID:              sess.id,
		Step:            sess.step,
		AcademicYearID:  sess.academicYearID,
		TeacherID:       sess.teacherID,
		Teacher:         sess.teacher,
		SetupReady:      sess.setupReady,
		LocationKind:    sess.locationKind,
		LocationOptions: append([]models.LocationOption{}, sess.locations...),
		Rows:            make([]RowView, 0, len(sess.subjects)),
		Result:          sess.result,
		Validating:      sess.validating,
		Submitting:      sess.submitting,
		Loading:         sess.loading,
		UpdatedAt:       sess.updatedAt,
	}
	if !sess.setupReady {
		return view
	}
	capacity := sess.capacity
	view.Capacity = &capacity

	for _, subject := range sess.subjects {
		view.Rows = append(view.Rows, sess.rowView(subject))
	}
	rows := sess.orderedRows()
	verdict := AggregateWorkload(sess.capacity, rows, s.cfg.NearCapacityRatio)
	view.Verdict = &verdict
	view.Counts = countRows(rows)
	if sess.step == models.StepReviewAndSave {
		view.SubmitBlockedReason = s.submitBlockedReason(sess)
		view.SubmitAllowed = view.SubmitBlockedReason == "" && !sess.submitting && !sess.anyRevalidating()
		view.RepairPlans = RepairPlansFor(rows, sess.capacity, verdict)
	}
	return view
}

func incompleteMessage(rows []IncompleteRow) string {
	parts := make([]string, 0, len(rows))
	for _, row := range rows {
		parts = append(parts, fmt.Sprintf("%s: %s", row.SubjectName, strings.Join(row.MissingFields, ", ")))
	}
	return "complete the selected rows before validating (" + strings.Join(parts, "; ") + ")"
}

// wizardSession is the aggregate root of one wizard run. All fields are
// guarded by mu.
type wizardSession struct {
	mu         sync.Mutex
	id         string
	operatorID string
	step       models.WizardStep

	academicYearID string
	teacherID      string
	epoch          uint64
	setupReady     bool

	teacher      *models.Teacher
	capacity     models.CapacitySnapshot
	locationKind models.LocationKind
	locations    []models.LocationOption
	subjects     []models.Subject
	subjectIndex map[string]int
	partition    CompatibilityPartition

	rows   map[string]*models.CandidateRow
	result *models.SubmissionResult

	loading    bool
	validating bool
	submitting bool
	closed     bool
	updatedAt  time.Time
}

func (w *wizardSession) touch(now time.Time) {
	w.updatedAt = now.UTC()
}

func (w *wizardSession) ensureIdle() error {
	switch {
	case w.loading:
		return appErrors.Clone(appErrors.ErrBusy, "setup data is still loading")
	case w.validating:
		return appErrors.Clone(appErrors.ErrBusy, "validation is in progress")
	case w.submitting:
		return appErrors.Clone(appErrors.ErrBusy, "submission is in progress")
	}
	return nil
}

// reset starts a fresh session for a new teacher/year pair. The epoch bump
// makes responses for the previous pair unrecognisable.
func (w *wizardSession) reset(academicYearID, teacherID string) {
	w.epoch++
	w.academicYearID = academicYearID
	w.teacherID = teacherID
	w.setupReady = false
	w.teacher = nil
	w.capacity = models.CapacitySnapshot{}
	w.locationKind = ""
	w.locations = nil
	w.subjects = nil
	w.subjectIndex = nil
	w.partition = CompatibilityPartition{}
	w.rows = make(map[string]*models.CandidateRow)
	w.result = nil
}

func (w *wizardSession) applySetup(data setupData) {
	w.teacher = data.teacher
	w.capacity = *data.capacity
	w.locationKind = data.settings.LocationKind()
	w.locations = data.locations
	w.subjects = make([]models.Subject, 0, len(data.subjects))
	w.subjectIndex = make(map[string]int, len(data.subjects))
	for _, subject := range data.subjects {
		if _, seen := w.subjectIndex[subject.ID]; seen {
			continue
		}
		w.subjectIndex[subject.ID] = len(w.subjects)
		w.subjects = append(w.subjects, subject)
	}
	w.partition = FilterCompatibleSubjects(*data.teacher, w.subjects)
	w.setupReady = true
}

func (w *wizardSession) subject(id string) (models.Subject, bool) {
	i, ok := w.subjectIndex[id]
	if !ok {
		return models.Subject{}, false
	}
	return w.subjects[i], true
}

// orderedRows returns every row in catalogue order.
func (w *wizardSession) orderedRows() []*models.CandidateRow {
	rows := make([]*models.CandidateRow, 0, len(w.rows))
	for _, subject := range w.subjects {
		if row, ok := w.rows[subject.ID]; ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func (w *wizardSession) selectedRows() []*models.CandidateRow {
	rows := make([]*models.CandidateRow, 0, len(w.rows))
	for _, row := range w.orderedRows() {
		if row.Selected {
			rows = append(rows, row)
		}
	}
	return rows
}

func (w *wizardSession) anyRevalidating() bool {
	for _, row := range w.rows {
		if row.Selected && row.Revalidating {
			return true
		}
	}
	return false
}

func (w *wizardSession) incompleteRows(rows []*models.CandidateRow) []IncompleteRow {
	var incomplete []IncompleteRow
	for _, row := range rows {
		missing := row.MissingFields(w.locationKind)
		if len(missing) == 0 {
			continue
		}
		subject, _ := w.subject(row.SubjectID)
		incomplete = append(incomplete, IncompleteRow{SubjectID: row.SubjectID, SubjectName: subject.Name, MissingFields: missing})
	}
	return incomplete
}

func (w *wizardSession) resolveLocation(locationID string) (models.Location, error) {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return models.Location{}, nil
	}
	for _, option := range w.locations {
		if option.ID == locationID {
			return models.Location{Kind: w.locationKind, ID: locationID}, nil
		}
	}
	return models.Location{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown %s", strings.ToLower(w.locationKind.FieldLabel())))
}

func (w *wizardSession) query(row *models.CandidateRow) models.ValidationQuery {
	return models.ValidationQuery{
		TeacherID:      w.teacherID,
		SubjectID:      row.SubjectID,
		AcademicYearID: w.academicYearID,
		WeeklyPeriods:  row.WeeklyPeriods,
		Location:       row.Location,
	}
}

// record stores an outcome only if it still describes the row: same teacher
// and year pair and no edit since the request was issued.
func (w *wizardSession) record(epoch uint64, subjectID string, revision uint64, outcome *models.ValidationOutcome) {
	if w.epoch != epoch {
		return
	}
	row := w.rows[subjectID]
	if row == nil || row.Revision != revision {
		return
	}
	row.Record(outcome)
}

func (w *wizardSession) locationName(id string) string {
	for _, option := range w.locations {
		if option.ID == id {
			return option.Name
		}
	}
	return ""
}

func (w *wizardSession) rowView(subject models.Subject) RowView {
	view := RowView{
		SubjectID:   subject.ID,
		SubjectName: subject.Name,
		SubjectCode: subject.Code,
		GradeLevel:  subject.GradeLevel,
		Compatible:  w.partition.IsCompatible(subject.ID),
	}
	if !view.Compatible {
		view.IncompatibleReason = w.partition.ReasonFor(subject.ID)
	}
	row, ok := w.rows[subject.ID]
	if !ok {
		return view
	}
	view.Selected = row.Selected
	if !row.Location.IsZero() {
		location := row.Location
		view.Location = &location
		view.LocationName = w.locationName(location.ID)
	}
	view.WeeklyPeriods = row.WeeklyPeriods
	view.Role = row.Role
	view.Status = row.Status()
	view.Validation = row.Validation
	view.Guidance = GuidanceForOutcome(row.Validation)
	if row.Selected {
		view.MissingFields = row.MissingFields(w.locationKind)
	}
	return view
}
