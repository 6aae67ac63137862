package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-assignment-engine/internal/dto"
	"github.com/noah-isme/sma-assignment-engine/internal/models"
	appErrors "github.com/noah-isme/sma-assignment-engine/pkg/errors"
)

type auditReader interface {
	List(ctx context.Context, filter models.SubmissionAuditFilter) ([]models.SubmissionAudit, error)
}

// HistoryService lists audited commit attempts.
type HistoryService struct {
	audits    auditReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewHistoryService constructs the service. A nil reader means auditing is
// disabled and history requests are refused.
func NewHistoryService(audits auditReader, validate *validator.Validate, logger *zap.Logger) *HistoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{audits: audits, validator: validate, logger: logger}
}

// ListByTeacher returns the newest submission records for the teacher.
func (s *HistoryService) ListByTeacher(ctx context.Context, teacherID string, query dto.SubmissionHistoryQuery) ([]models.SubmissionAudit, error) {
	if s.audits == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "submission audit is disabled")
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid history query")
	}
	records, err := s.audits.List(ctx, models.SubmissionAuditFilter{
		TeacherID:      teacherID,
		AcademicYearID: query.AcademicYearID,
		Limit:          query.Limit,
	})
	if err != nil {
		s.logger.Error("failed to list submission history", zap.String("teacher_id", teacherID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submission history")
	}
	return records, nil
}
