package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-assignment-engine/pkg/jobs"
)

// JobTypeTeacherRefresh identifies post-commit refresh jobs.
const JobTypeTeacherRefresh = "teacher_refresh"

// TeacherRefreshPayload names the teacher whose cached data became stale.
type TeacherRefreshPayload struct {
	TeacherID      string
	AcademicYearID string
}

type refreshQueue interface {
	Enqueue(job jobs.Job) error
}

type teacherInvalidator interface {
	InvalidateTeacher(ctx context.Context, teacherID string) error
}

// RefreshService is the post-commit refresh collaborator. Commits enqueue a
// job; the job drops the teacher-scoped reference cache.
type RefreshService struct {
	queue     refreshQueue
	reference teacherInvalidator
	logger    *zap.Logger
}

// NewRefreshService constructs the service. The queue is attached afterwards
// because the queue needs Handle as its handler.
func NewRefreshService(reference teacherInvalidator, logger *zap.Logger) *RefreshService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshService{reference: reference, logger: logger}
}

// AttachQueue sets the queue jobs are dispatched to.
func (s *RefreshService) AttachQueue(queue refreshQueue) {
	s.queue = queue
}

// ScheduleRefresh enqueues a refresh without blocking the caller. Without a
// queue the refresh runs inline.
func (s *RefreshService) ScheduleRefresh(teacherID, academicYearID string) {
	job := jobs.Job{Type: JobTypeTeacherRefresh, Payload: TeacherRefreshPayload{TeacherID: teacherID, AcademicYearID: academicYearID}}
	if s.queue == nil {
		if err := s.Handle(context.Background(), job); err != nil {
			s.logger.Warn("teacher refresh failed", zap.String("teacher_id", teacherID), zap.Error(err))
		}
		return
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue teacher refresh", zap.String("teacher_id", teacherID), zap.Error(err))
	}
}

// Handle processes a refresh job.
func (s *RefreshService) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(TeacherRefreshPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.Type)
	}
	if err := s.reference.InvalidateTeacher(ctx, payload.TeacherID); err != nil {
		return fmt.Errorf("invalidate teacher %s: %w", payload.TeacherID, err)
	}
	s.logger.Debug("teacher reference data refreshed",
		zap.String("teacher_id", payload.TeacherID),
		zap.String("academic_year_id", payload.AcademicYearID),
	)
	return nil
}
