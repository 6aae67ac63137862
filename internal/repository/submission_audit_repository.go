package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-assignment-engine/internal/models"
)

// SubmissionAuditRepository persists commit attempts for later review.
type SubmissionAuditRepository struct {
	db *sqlx.DB
}

// NewSubmissionAuditRepository constructs the repository.
func NewSubmissionAuditRepository(db *sqlx.DB) *SubmissionAuditRepository {
	return &SubmissionAuditRepository{db: db}
}

// CreateBatch inserts all records of one submission inside a transaction.
func (r *SubmissionAuditRepository) CreateBatch(ctx context.Context, records []models.SubmissionAudit) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].CreatedAt.IsZero() {
			records[i].CreatedAt = now
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submission audit tx: %w", err)
	}
	const query = `INSERT INTO assignment_submission_audits (id, session_id, operator_id, teacher_id, academic_year_id, subject_id, subject_name, weekly_periods, assignment_role, outcome, reason, created_at)
		VALUES (:id, :session_id, :operator_id, :teacher_id, :academic_year_id, :subject_id, :subject_name, :weekly_periods, :assignment_role, :outcome, :reason, :created_at)`
	for _, record := range records {
		if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert submission audit: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submission audit tx: %w", err)
	}
	return nil
}

// List returns the most recent audit records for a teacher.
func (r *SubmissionAuditRepository) List(ctx context.Context, filter models.SubmissionAuditFilter) ([]models.SubmissionAudit, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, session_id, operator_id, teacher_id, academic_year_id, subject_id, subject_name, weekly_periods, assignment_role, outcome, reason, created_at
FROM assignment_submission_audits
WHERE teacher_id = $1`
	args := []interface{}{filter.TeacherID}
	if filter.AcademicYearID != "" {
		args = append(args, filter.AcademicYearID)
		query += fmt.Sprintf(" AND academic_year_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	var records []models.SubmissionAudit
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list submission audits: %w", err)
	}
	return records, nil
}
