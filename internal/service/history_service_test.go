package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-assignment-engine/internal/dto"
	"github.com/noah-isme/sma-assignment-engine/internal/models"
	appErrors "github.com/noah-isme/sma-assignment-engine/pkg/errors"
)

type auditReaderStub struct {
	filter models.SubmissionAuditFilter
	items  []models.SubmissionAudit
	err    error
}

func (s *auditReaderStub) List(ctx context.Context, filter models.SubmissionAuditFilter) ([]models.SubmissionAudit, error) {
	s.filter = filter
	return s.items, s.err
}

func TestHistoryServiceListByTeacher(t *testing.T) {
	reader := &auditReaderStub{items: []models.SubmissionAudit{{ID: "a1", TeacherID: "t-1"}}}
	svc := NewHistoryService(reader, nil, nil)

	items, err := svc.ListByTeacher(context.Background(), "t-1", dto.SubmissionHistoryQuery{AcademicYearID: "y-1", Limit: 20})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, models.SubmissionAuditFilter{TeacherID: "t-1", AcademicYearID: "y-1", Limit: 20}, reader.filter)
}

func TestHistoryServiceErrors(t *testing.T) {
	_, err := NewHistoryService(nil, nil, nil).ListByTeacher(context.Background(), "t-1", dto.SubmissionHistoryQuery{})
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	svc := NewHistoryService(&auditReaderStub{}, nil, nil)
	_, err = svc.ListByTeacher(context.Background(), "t-1", dto.SubmissionHistoryQuery{Limit: 1000})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	svc = NewHistoryService(&auditReaderStub{err: errors.New("boom")}, nil, nil)
	_, err = svc.ListByTeacher(context.Background(), "t-1", dto.SubmissionHistoryQuery{})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
