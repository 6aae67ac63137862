package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-assignment-engine/internal/models"
	"github.com/noah-isme/sma-assignment-engine/internal/repository"
)

type validationOracle interface {
	ValidateAssignment(ctx context.Context, query models.ValidationQuery) (*models.ValidationOutcome, error)
}

// ValidationGateway performs one remote validation per call. It never caches
// and never returns an error: transport failures become api_error outcomes.
type ValidationGateway struct {
	oracle  validationOracle
	metrics *MetricsService
	logger  *zap.Logger
}

// NewValidationGateway constructs the gateway.
func NewValidationGateway(oracle validationOracle, metrics *MetricsService, logger *zap.Logger) *ValidationGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationGateway{oracle: oracle, metrics: metrics, logger: logger}
}

// Validate asks the oracle about a single candidate.
func (g *ValidationGateway) Validate(ctx context.Context, query models.ValidationQuery) *models.ValidationOutcome {
	outcome, err := g.oracle.ValidateAssignment(ctx, query)
	if err != nil {
		g.logger.Warn("validation request failed",
			zap.String("teacher_id", query.TeacherID),
			zap.String("subject_id", query.SubjectID),
			zap.Error(err),
		)
		outcome = models.TransportFailure(transportMessage(err))
	}
	if outcome == nil {
		g.logger.Warn("validation request returned no outcome",
			zap.String("teacher_id", query.TeacherID),
			zap.String("subject_id", query.SubjectID),
		)
		outcome = models.TransportFailure("")
	}
	if outcome.Errors == nil {
		outcome.Errors = []models.ValidationIssue{}
	}
	if outcome.Warnings == nil {
		outcome.Warnings = []models.ValidationWarning{}
	}
	g.metrics.RecordValidation(outcome)
	return outcome
}

func transportMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "The validation service timed out"
	}
	var upstream *repository.UpstreamError
	if errors.As(err, &upstream) && upstream.Message != "" {
		return upstream.Message
	}
	return ""
}
