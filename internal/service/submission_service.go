package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-assignment-engine/internal/models"
	"github.com/noah-isme/sma-assignment-engine/internal/repository"
)

// DefaultCommitFailure is reported when the school API gives no reason.
const DefaultCommitFailure = "Failed to assign subject"

type assignmentCommitter interface {
	CommitAssignment(ctx context.Context, cmd models.AssignmentCommand) (*models.TeacherAssignment, error)
}

type auditWriter interface {
	CreateBatch(ctx context.Context, records []models.SubmissionAudit) error
}

type teacherRefresher interface {
	ScheduleRefresh(teacherID, academicYearID string)
}

// SubmissionItem is one validated row ready to commit.
type SubmissionItem struct {
	SubjectName string
	Command     models.AssignmentCommand
}

// SubmissionBatch is an ordered list of commits made on behalf of one
// operator for one teacher and academic year.
type SubmissionBatch struct {
	SessionID      string
	OperatorID     string
	TeacherID      string
	AcademicYearID string
	Items          []SubmissionItem
}

// SubmissionService commits batches item by item. A failed item never stops
// the remaining ones and nothing already committed is rolled back.
type SubmissionService struct {
	committer assignmentCommitter
	audits    auditWriter
	refresher teacherRefresher
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewSubmissionService constructs the service. audits and refresher may be nil.
func NewSubmissionService(committer assignmentCommitter, audits auditWriter, refresher teacherRefresher, metrics *MetricsService, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{committer: committer, audits: audits, refresher: refresher, metrics: metrics, logger: logger}
}

// Commit drains the batch in order.
func (s *SubmissionService) Commit(ctx context.Context, batch SubmissionBatch) models.SubmissionResult {
	result := models.SubmissionResult{
		Succeeded: []models.SubmissionSuccess{},
		Failed:    []models.SubmissionFailure{},
	}
	records := make([]models.SubmissionAudit, 0, len(batch.Items))

	for _, item := range batch.Items {
		record := models.SubmissionAudit{
			SessionID:      batch.SessionID,
			OperatorID:     batch.OperatorID,
			TeacherID:      item.Command.TeacherID,
			AcademicYearID: item.Command.AcademicYearID,
			SubjectID:      item.Command.SubjectID,
			SubjectName:    item.SubjectName,
			WeeklyPeriods:  item.Command.WeeklyPeriods,
			Role:           item.Command.Role,
		}

		assignment, err := s.committer.CommitAssignment(ctx, item.Command)
		if err != nil {
			reason := commitFailureReason(err)
			s.logger.Warn("assignment commit failed",
				zap.String("session_id", batch.SessionID),
				zap.String("teacher_id", item.Command.TeacherID),
				zap.String("subject_id", item.Command.SubjectID),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, models.SubmissionFailure{
				SubjectID: item.Command.SubjectID,
				Name:      item.SubjectName,
				Reason:    reason,
			})
			record.Outcome = models.SubmissionFailed
			record.Reason = &reason
			s.metrics.RecordCommit(models.SubmissionFailed)
			records = append(records, record)
			continue
		}

		success := models.SubmissionSuccess{SubjectID: item.Command.SubjectID, Name: item.SubjectName}
		if assignment != nil {
			success.AssignmentID = assignment.ID
		}
		result.Succeeded = append(result.Succeeded, success)
		record.Outcome = models.SubmissionSucceeded
		s.metrics.RecordCommit(models.SubmissionSucceeded)
		records = append(records, record)
	}

	s.logger.Info("assignment batch committed",
		zap.String("session_id", batch.SessionID),
		zap.String("teacher_id", batch.TeacherID),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
	)

	if s.audits != nil && len(records) > 0 {
		if err := s.audits.CreateBatch(ctx, records); err != nil {
			s.logger.Error("failed to record submission audit", zap.String("session_id", batch.SessionID), zap.Error(err))
		}
	}
	if result.AnySucceeded() && s.refresher != nil {
		s.refresher.ScheduleRefresh(batch.TeacherID, batch.AcademicYearID)
	}
	return result
}

func commitFailureReason(err error) string {
	var upstream *repository.UpstreamError
	if errors.As(err, &upstream) && upstream.Message != "" {
		return upstream.Message
	}
	return DefaultCommitFailure
}
