package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-assignment-engine/internal/models"
	"github.com/noah-isme/sma-assignment-engine/pkg/config"
	"github.com/noah-isme/sma-assignment-engine/pkg/middleware/requestid"
)

const maxBodyBytes = 1 << 20

// UpstreamObserver receives timing for every school API call.
type UpstreamObserver interface {
	ObserveUpstream(operation string, status int, duration time.Duration)
}

// UpstreamError is returned when the school API answers with a non-2xx status.
// Message holds the human-readable reason extracted from the body, if any.
type UpstreamError struct {
	Operation string
	Status    int
	Message   string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Operation, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Operation, e.Status)
}

// NotFound reports whether the upstream resource does not exist.
func (e *UpstreamError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

type bearerKey struct{}

// WithBearerToken attaches the operator's access token to ctx so calls made on
// their behalf are authorised by the school API as that operator.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

func bearerToken(ctx context.Context) string {
	if token, ok := ctx.Value(bearerKey{}).(string); ok {
		return token
	}
	return ""
}

// SchoolAPIRepository talks to the remote school administration API.
type SchoolAPIRepository struct {
	baseURL      string
	serviceToken string
	client       *http.Client
	observer     UpstreamObserver
	logger       *zap.Logger
}

// NewSchoolAPIRepository constructs the client.
func NewSchoolAPIRepository(cfg config.SchoolAPIConfig, observer UpstreamObserver, logger *zap.Logger) *SchoolAPIRepository {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchoolAPIRepository{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		serviceToken: cfg.ServiceToken,
		client:       &http.Client{Timeout: timeout},
		observer:     observer,
		logger:       logger,
	}
}

// GetCapacity returns the teacher's weekly-period budget for the academic year.
func (r *SchoolAPIRepository) GetCapacity(ctx context.Context, teacherID, academicYearID string) (*models.CapacitySnapshot, error) {
	path := fmt.Sprintf("/teachers/%s/workload?%s", url.PathEscape(teacherID), url.Values{"academic_year_id": {academicYearID}}.Encode())
	var snapshot models.CapacitySnapshot
	if err := r.getJSON(ctx, "get_capacity", path, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// GetTeacher returns the teacher profile including levels and pathways.
func (r *SchoolAPIRepository) GetTeacher(ctx context.Context, teacherID string) (*models.Teacher, error) {
	var teacher models.Teacher
	if err := r.getJSON(ctx, "get_teacher", "/teachers/"+url.PathEscape(teacherID), &teacher); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ListSubjects returns the subject catalogue in canonical order.
func (r *SchoolAPIRepository) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	var subjects []models.Subject
	if err := r.getJSON(ctx, "list_subjects", "/subjects", &subjects); err != nil {
		return nil, err
	}
	return subjects, nil
}

// ListAcademicYears returns the selectable academic years.
func (r *SchoolAPIRepository) ListAcademicYears(ctx context.Context) ([]models.AcademicYear, error) {
	var years []models.AcademicYear
	if err := r.getJSON(ctx, "list_academic_years", "/academic-years", &years); err != nil {
		return nil, err
	}
	return years, nil
}

// GetSchoolSettings returns the school configuration (stream usage).
func (r *SchoolAPIRepository) GetSchoolSettings(ctx context.Context) (*models.SchoolSettings, error) {
	var settings models.SchoolSettings
	if err := r.getJSON(ctx, "get_school_settings", "/school/settings", &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// ListLocations returns the classrooms or streams of the academic year.
func (r *SchoolAPIRepository) ListLocations(ctx context.Context, kind models.LocationKind, academicYearID string) ([]models.LocationOption, error) {
	resource := "/classrooms"
	if kind == models.LocationStream {
		resource = "/streams"
	}
	path := resource + "?" + url.Values{"academic_year_id": {academicYearID}}.Encode()
	var options []models.LocationOption
	if err := r.getJSON(ctx, "list_"+string(kind)+"s", path, &options); err != nil {
		return nil, err
	}
	return options, nil
}

type validationEnvelope struct {
	Valid *bool `json:"valid"`
	Data  struct {
		Errors          []models.ValidationIssue   `json:"errors"`
		Warnings        []models.ValidationWarning `json:"warnings"`
		WorkloadSummary *models.WorkloadSummary    `json:"workload_summary"`
	} `json:"data"`
}

// ValidateAssignment asks the oracle whether one candidate is acceptable. The
// oracle may answer 4xx together with a well-formed verdict; that is a
// result, not a failure.
func (r *SchoolAPIRepository) ValidateAssignment(ctx context.Context, query models.ValidationQuery) (*models.ValidationOutcome, error) {
	payload := map[string]interface{}{
		"teacher_id":       query.TeacherID,
		"subject_id":       query.SubjectID,
		"academic_year_id": query.AcademicYearID,
		"weekly_periods":   query.WeeklyPeriods,
	}
	setLocation(payload, query.Location)

	status, body, err := r.do(ctx, "validate_assignment", http.MethodPost, "/teacher-subjects/validate-assignment", payload)
	if err != nil {
		return nil, err
	}

	var envelope validationEnvelope
	if jsonErr := json.Unmarshal(body, &envelope); jsonErr != nil || envelope.Valid == nil {
		if status >= http.StatusBadRequest {
			return nil, &UpstreamError{Operation: "validate_assignment", Status: status, Message: extractMessage(body)}
		}
		return nil, fmt.Errorf("decode validation response: unexpected body")
	}
	if status >= http.StatusInternalServerError {
		return nil, &UpstreamError{Operation: "validate_assignment", Status: status, Message: extractMessage(body)}
	}

	outcome := &models.ValidationOutcome{
		Valid:           *envelope.Valid,
		Errors:          envelope.Data.Errors,
		Warnings:        envelope.Data.Warnings,
		WorkloadSummary: envelope.Data.WorkloadSummary,
	}
	if outcome.Errors == nil {
		outcome.Errors = []models.ValidationIssue{}
	}
	if outcome.Warnings == nil {
		outcome.Warnings = []models.ValidationWarning{}
	}
	return outcome, nil
}

// CommitAssignment creates the assignment. Rejections are returned as
// *UpstreamError carrying the server message.
func (r *SchoolAPIRepository) CommitAssignment(ctx context.Context, cmd models.AssignmentCommand) (*models.TeacherAssignment, error) {
	payload := map[string]interface{}{
		"teacher_id":       cmd.TeacherID,
		"subject_id":       cmd.SubjectID,
		"academic_year_id": cmd.AcademicYearID,
		"weekly_periods":   cmd.WeeklyPeriods,
		"assignment_role":  cmd.Role,
	}
	setLocation(payload, cmd.Location)

	status, body, err := r.do(ctx, "commit_assignment", http.MethodPost, "/teacher-subjects", payload)
	if err != nil {
		return nil, err
	}
	if status >= http.StatusBadRequest {
		return nil, &UpstreamError{Operation: "commit_assignment", Status: status, Message: extractMessage(body)}
	}

	var created models.TeacherAssignment
	if len(bytes.TrimSpace(body)) > 0 {
		if err := decodeData(body, &created); err != nil {
			r.logger.Warn("commit response not decodable", zap.String("subject_id", cmd.SubjectID), zap.Error(err))
		}
	}
	return &created, nil
}

func setLocation(payload map[string]interface{}, location models.Location) {
	if location.IsZero() {
		return
	}
	if location.Kind == models.LocationStream {
		payload["stream_id"] = location.ID
		return
	}
	payload["classroom_id"] = location.ID
}

func (r *SchoolAPIRepository) getJSON(ctx context.Context, operation, path string, dest interface{}) error {
	status, body, err := r.do(ctx, operation, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return &UpstreamError{Operation: operation, Status: status, Message: extractMessage(body)}
	}
	if err := decodeData(body, dest); err != nil {
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	return nil
}

func (r *SchoolAPIRepository) do(ctx context.Context, operation, method, path string, payload interface{}) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: encode request: %w", operation, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: build request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := bearerToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if r.serviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.serviceToken)
	}
	if reqID := requestid.FromContext(ctx); reqID != "" {
		req.Header.Set(requestid.Header, reqID)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		r.observe(operation, http.StatusServiceUnavailable, duration)
		r.logger.Warn("school api request failed", zap.String("operation", operation), zap.Duration("latency", duration), zap.Error(err))
		return 0, nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()
	r.observe(operation, resp.StatusCode, duration)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%s: read response: %w", operation, err)
	}
	return resp.StatusCode, body, nil
}

func (r *SchoolAPIRepository) observe(operation string, status int, duration time.Duration) {
	if r.observer != nil {
		r.observer.ObserveUpstream(operation, status, duration)
	}
}

// decodeData accepts both enveloped ({"data": ...}) and bare payloads.
func decodeData(body []byte, dest interface{}) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		return json.Unmarshal(envelope.Data, dest)
	}
	return json.Unmarshal(body, dest)
}

// extractMessage pulls a human-readable reason out of an error body. The
// school API is not consistent about where it puts it.
func extractMessage(body []byte) string {
	var shape struct {
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
		Error   json.RawMessage `json:"error"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return ""
	}
	if shape.Message != "" {
		return shape.Message
	}
	if shape.Detail != "" {
		return shape.Detail
	}
	if msg := messageFromRaw(shape.Error); msg != "" {
		return msg
	}
	return messageFromRaw(shape.Errors)
}

func messageFromRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if msg := messageFromRaw(item); msg != "" {
				return msg
			}
		}
	}
	var fields map[string][]string
	if err := json.Unmarshal(raw, &fields); err == nil {
		for _, msgs := range fields {
			if len(msgs) > 0 {
				return msgs[0]
			}
		}
	}
	return ""
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream) && upstream.NotFound()
}
