package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-assignment-engine/internal/models"
	"github.com/noah-isme/sma-assignment-engine/internal/repository"
)

type oracleStub struct {
	outcome *models.ValidationOutcome
	err     error
	queries []models.ValidationQuery
}

func (o *oracleStub) ValidateAssignment(ctx context.Context, query models.ValidationQuery) (*models.ValidationOutcome, error) {
	o.queries = append(o.queries, query)
	return o.outcome, o.err
}

func TestValidationGatewayPassesOutcomeThrough(t *testing.T) {
	oracle := &oracleStub{outcome: &models.ValidationOutcome{Valid: true}}
	metrics := NewMetricsService()
	gateway := NewValidationGateway(oracle, metrics, nil)

	outcome := gateway.Validate(context.Background(), models.ValidationQuery{TeacherID: "t", SubjectID: "s", WeeklyPeriods: 4})

	assert.True(t, outcome.Valid)
	assert.NotNil(t, outcome.Errors)
	assert.NotNil(t, outcome.Warnings)
	require.Len(t, oracle.queries, 1)
	assert.Equal(t, 1.0, counterValue(t, metrics, "assignment_validations_total", map[string]string{"result": "valid"}))
}

func TestValidationGatewayConvertsTransportFailure(t *testing.T) {
	oracle := &oracleStub{err: errors.New("dial tcp: connection refused")}
	metrics := NewMetricsService()
	gateway := NewValidationGateway(oracle, metrics, nil)

	outcome := gateway.Validate(context.Background(), models.ValidationQuery{TeacherID: "t", SubjectID: "s"})

	assert.False(t, outcome.Valid)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, models.ErrorTypeAPI, outcome.Errors[0].Type)
	assert.Equal(t, "Unable to reach the validation service", outcome.Errors[0].Message)
	assert.Equal(t, 1.0, counterValue(t, metrics, "assignment_validations_total", map[string]string{"result": "api_error"}))
}

func TestValidationGatewayUsesUpstreamMessage(t *testing.T) {
	oracle := &oracleStub{err: &repository.UpstreamError{Operation: "validate_assignment", Status: 503, Message: "Maintenance window"}}
	outcome := NewValidationGateway(oracle, nil, nil).Validate(context.Background(), models.ValidationQuery{})
	assert.Equal(t, "Maintenance window", outcome.Errors[0].Message)

	oracle = &oracleStub{err: context.DeadlineExceeded}
	outcome = NewValidationGateway(oracle, nil, nil).Validate(context.Background(), models.ValidationQuery{})
	assert.Equal(t, "The validation service timed out", outcome.Errors[0].Message)
}

func TestValidationGatewayTreatsMissingOutcomeAsTransportFailure(t *testing.T) {
	gateway := NewValidationGateway(&oracleStub{}, NewMetricsService(), nil)

	outcome := gateway.Validate(context.Background(), models.ValidationQuery{TeacherID: "t", SubjectID: "s"})

	require.NotNil(t, outcome)
	assert.False(t, outcome.Valid)
	assert.True(t, outcome.TransportOnly())
	assert.NotNil(t, outcome.Warnings)
}
