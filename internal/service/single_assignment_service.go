package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-assignment-engine/internal/dto"
	"github.com/noah-isme/sma-assignment-engine/internal/models"
	appErrors "github.com/noah-isme/sma-assignment-engine/pkg/errors"
)

// DraftSessionKind labels single-assignment drafts in metrics.
const DraftSessionKind = "draft"

// DraftStatus summarises a draft for display.
type DraftStatus string

const (
	DraftIncomplete DraftStatus = "incomplete"
	DraftValidating DraftStatus = "validating"
	DraftValid      DraftStatus = "valid"
	DraftWarned     DraftStatus = "warned"
	DraftInvalid    DraftStatus = "invalid"
	DraftSubmitted  DraftStatus = "submitted"
)

// DraftView is the state of a single-assignment draft as returned to clients.
type DraftView struct {
	ID             string                    `json:"id"`
	TeacherID      string                    `json:"teacher_id,omitempty"`
	AcademicYearID string                    `json:"academic_year_id,omitempty"`
	SubjectID      string                    `json:"subject_id,omitempty"`
	Location       *models.Location          `json:"location,omitempty"`
	WeeklyPeriods  int                       `json:"weekly_periods"`
	Role           models.AssignmentRole     `json:"assignment_role"`
	Generation     uint64                    `json:"generation"`
	Status         DraftStatus               `json:"status"`
	MissingFields  []string                  `json:"missing_fields,omitempty"`
	Validation     *models.ValidationOutcome `json:"validation,omitempty"`
	Guidance       []Guidance                `json:"guidance,omitempty"`
	SubmitAllowed  bool                      `json:"submit_allowed"`
	AssignmentID   string                    `json:"assignment_id,omitempty"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

type draftReference interface {
	SchoolSettings(ctx context.Context) (*models.SchoolSettings, error)
	Subjects(ctx context.Context) ([]models.Subject, error)
}

// SingleAssignmentService manages drafts for the single-assignment path.
// Every field change discards the outcome and triggers one validation; only
// the response for the latest generation is kept.
type SingleAssignmentService struct {
	reference   draftReference
	gateway     candidateValidator
	submissions batchCommitter
	drafts      *SessionRegistry[*assignmentDraft]
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewSingleAssignmentService constructs the service.
func NewSingleAssignmentService(
	reference draftReference,
	gateway candidateValidator,
	submissions batchCommitter,
	validate *validator.Validate,
	ttl time.Duration,
	metrics *MetricsService,
	logger *zap.Logger,
) *SingleAssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SingleAssignmentService{
		reference:   reference,
		gateway:     gateway,
		submissions: submissions,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
	s.drafts = NewSessionRegistry[*assignmentDraft](DraftSessionKind, ttl, func(_ string, d *assignmentDraft) {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
	}, metrics, logger)
	return s
}

// RunJanitor expires idle drafts until ctx is cancelled.
func (s *SingleAssignmentService) RunJanitor(ctx context.Context, interval time.Duration) {
	s.drafts.Run(ctx, interval)
}

// Create starts a draft, applying any fields supplied with it.
func (s *SingleAssignmentService) Create(ctx context.Context, operatorID string, req dto.DraftRequest) (*DraftView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid draft payload")
	}
	settings, err := s.reference.SchoolSettings(ctx)
	if err != nil {
		return nil, err
	}
	d := &assignmentDraft{
		id:           uuid.NewString(),
		operatorID:   operatorID,
		locationKind: settings.LocationKind(),
		role:         models.RoleMainTeacher,
		updatedAt:    s.now().UTC(),
	}
	s.drafts.Put(d.id, d)
	return s.Edit(ctx, operatorID, d.id, req)
}

// Get returns the draft view.
func (s *SingleAssignmentService) Get(operatorID, id string) (*DraftView, error) {
	d, err := s.acquire(operatorID, id)
	if err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	return d.view(), nil
}

// Discard drops the draft.
func (s *SingleAssignmentService) Discard(operatorID, id string) error {
	d, ok := s.drafts.Get(id)
	if !ok || d.operatorID != operatorID {
		return appErrors.ErrSessionNotFound
	}
	s.drafts.Delete(id)
	return nil
}

// Edit applies field changes and, when the draft is complete, re-validates it.
func (s *SingleAssignmentService) Edit(ctx context.Context, operatorID, id string, req dto.DraftRequest) (*DraftView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid draft payload")
	}
	d, err := s.acquire(operatorID, id)
	if err != nil {
		return nil, err
	}
	if d.submitting {
		d.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrBusy, "submission is in progress")
	}
	if d.submitted {
		d.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrStepGate, "draft has already been submitted")
	}

	changed := d.apply(req)
	if !changed && (d.validating || (d.validation != nil && !d.validation.TransportOnly())) {
		defer d.mu.Unlock()
		return d.view(), nil
	}
	if changed {
		d.generation++
		d.validation = nil
		d.validating = false
		d.updatedAt = s.now().UTC()
	}
	if len(d.missingFields()) > 0 {
		defer d.mu.Unlock()
		return d.view(), nil
	}

	generation := d.generation
	query := d.query()
	d.validating = true
	d.mu.Unlock()

	outcome := s.gateway.Validate(ctx, query)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, appErrors.ErrSessionNotFound
	}
	if d.generation == generation {
		d.validation = outcome
		d.validating = false
	}
	return d.view(), nil
}

// Submit commits the draft once its current outcome is valid.
func (s *SingleAssignmentService) Submit(ctx context.Context, operatorID, id string) (*DraftView, error) {
	d, err := s.acquire(operatorID, id)
	if err != nil {
		return nil, err
	}
	if d.submitting {
		d.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrBusy, "submission is in progress")
	}
	if d.submitted {
		d.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrStepGate, "draft has already been submitted")
	}
	if !d.submitAllowed() {
		d.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrSubmitBlocked, "the assignment has not been validated successfully")
	}
	cmd := models.AssignmentCommand{
		TeacherID:      d.teacherID,
		SubjectID:      d.subjectID,
		AcademicYearID: d.academicYearID,
		WeeklyPeriods:  d.periods,
		Role:           d.role,
		Location:       d.location,
	}
	d.submitting = true
	d.mu.Unlock()

	commitCtx := context.WithoutCancel(ctx)
	result := s.submissions.Commit(commitCtx, SubmissionBatch{
		SessionID:      id,
		OperatorID:     operatorID,
		TeacherID:      cmd.TeacherID,
		AcademicYearID: cmd.AcademicYearID,
		Items:          []SubmissionItem{{SubjectName: s.subjectName(commitCtx, cmd.SubjectID), Command: cmd}},
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitting = false
	if len(result.Failed) > 0 {
		return nil, appErrors.Clone(appErrors.ErrCommitRejected, result.Failed[0].Reason)
	}
	if len(result.Succeeded) > 0 {
		d.submitted = true
		d.assignmentID = result.Succeeded[0].AssignmentID
	}
	d.updatedAt = s.now().UTC()
	return d.view(), nil
}

func (s *SingleAssignmentService) subjectName(ctx context.Context, subjectID string) string {
	subjects, err := s.reference.Subjects(ctx)
	if err != nil {
		return subjectID
	}
	for _, subject := range subjects {
		if subject.ID == subjectID {
			return subject.Name
		}
	}
	return subjectID
}

func (s *SingleAssignmentService) acquire(operatorID, id string) (*assignmentDraft, error) {
	d, ok := s.drafts.Get(id)
	if !ok || d.operatorID != operatorID {
		return nil, appErrors.ErrSessionNotFound
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, appErrors.ErrSessionNotFound
	}
	return d, nil
}

type assignmentDraft struct {
	mu           sync.Mutex
	id           string
	operatorID   string
	locationKind models.LocationKind

	teacherID      string
	academicYearID string
	subjectID      string
	location       models.Location
	periods        int
	role           models.AssignmentRole

	generation   uint64
	validation   *models.ValidationOutcome
	validating   bool
	submitting   bool
	submitted    bool
	assignmentID string
	closed       bool
	updatedAt    time.Time
}

// apply writes the supplied fields and reports whether anything changed.
func (d *assignmentDraft) apply(req dto.DraftRequest) bool {
	changed := false
	setString := func(dst *string, src *string) {
		if src == nil {
			return
		}
		v := strings.TrimSpace(*src)
		if v != *dst {
			*dst = v
			changed = true
		}
	}
	setString(&d.teacherID, req.TeacherID)
	setString(&d.academicYearID, req.AcademicYearID)
	setString(&d.subjectID, req.SubjectID)
	if req.LocationID != nil {
		location := models.Location{}
		if id := strings.TrimSpace(*req.LocationID); id != "" {
			location = models.Location{Kind: d.locationKind, ID: id}
		}
		if location != d.location {
			d.location = location
			changed = true
		}
	}
	if req.WeeklyPeriods != nil && *req.WeeklyPeriods != d.periods {
		d.periods = *req.WeeklyPeriods
		changed = true
	}
	if req.Role != nil && models.AssignmentRole(*req.Role) != d.role {
		d.role = models.AssignmentRole(*req.Role)
		changed = true
	}
	return changed
}

func (d *assignmentDraft) missingFields() []string {
	var missing []string
	if d.teacherID == "" {
		missing = append(missing, "Teacher")
	}
	if d.academicYearID == "" {
		missing = append(missing, "Academic year")
	}
	if d.subjectID == "" {
		missing = append(missing, "Subject")
	}
	if d.location.IsZero() {
		missing = append(missing, d.locationKind.FieldLabel())
	}
	if d.periods < 1 {
		missing = append(missing, "Weekly periods")
	}
	return missing
}

func (d *assignmentDraft) query() models.ValidationQuery {
	return models.ValidationQuery{
		TeacherID:      d.teacherID,
		SubjectID:      d.subjectID,
		AcademicYearID: d.academicYearID,
		WeeklyPeriods:  d.periods,
		Location:       d.location,
	}
}

func (d *assignmentDraft) submitAllowed() bool {
	return !d.validating && d.validation != nil && d.validation.Valid && !d.submitting && !d.submitted
}

func (d *assignmentDraft) status() DraftStatus {
	switch {
	case d.submitted:
		return DraftSubmitted
	case len(d.missingFields()) > 0:
		return DraftIncomplete
	case d.validating || d.validation == nil:
		return DraftValidating
	case !d.validation.Valid:
		return DraftInvalid
	case len(d.validation.Warnings) > 0:
		return DraftWarned
	default:
		return DraftValid
	}
}

func (d *assignmentDraft) view() *DraftView {
	view := &DraftView{
		ID:             d.id,
		TeacherID:      d.teacherID,
		AcademicYearID: d.academicYearID,
		SubjectID:      d.subjectID,
		WeeklyPeriods:  d.periods,
		Role:           d.role,
		Generation:     d.generation,
		Status:         d.status(),
		MissingFields:  d.missingFields(),
		Validation:     d.validation,
		Guidance:       PlainGuidance(d.validation),
		SubmitAllowed:  d.submitAllowed(),
		AssignmentID:   d.assignmentID,
		UpdatedAt:      d.updatedAt,
	}
	if !d.location.IsZero() {
		location := d.location
		view.Location = &location
	}
	return view
}
