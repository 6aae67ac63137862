package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-assignment-engine/internal/dto"
	"github.com/noah-isme/sma-assignment-engine/internal/middleware"
	"github.com/noah-isme/sma-assignment-engine/internal/models"
	"github.com/noah-isme/sma-assignment-engine/internal/service"
	appErrors "github.com/noah-isme/sma-assignment-engine/pkg/errors"
)

type wizardServiceMock struct {
	wizardService

	lastOperator string
	lastSubject  string
	lastSelected bool
	lastPeriods  int
	lastFormat   service.ExportFormat
	openReq      dto.OpenWizardRequest
	err          error
}

func (m *wizardServiceMock) view(id string) (*service.WizardView, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.WizardView{ID: id, Step: models.StepSelectAndValidate}, nil
}

func (m *wizardServiceMock) Open(ctx context.Context, operatorID string, req dto.OpenWizardRequest) (*service.WizardView, error) {
	m.lastOperator = operatorID
	m.openReq = req
	return m.view("w-1")
}

func (m *wizardServiceMock) ToggleRow(operatorID, id, subjectID string, selected bool) (*service.WizardView, error) {
	m.lastOperator, m.lastSubject, m.lastSelected = operatorID, subjectID, selected
	return m.view(id)
}

func (m *wizardServiceMock) ValidateAll(ctx context.Context, operatorID, id string) (*service.WizardView, error) {
	return m.view(id)
}

func (m *wizardServiceMock) ApplyRepair(ctx context.Context, operatorID, id, subjectID string, periods int) (*service.WizardView, error) {
	m.lastSubject, m.lastPeriods = subjectID, periods
	return m.view(id)
}

func (m *wizardServiceMock) Export(operatorID, id string, format service.ExportFormat) (*service.ExportFile, error) {
	m.lastFormat = format
	if m.err != nil {
		return nil, m.err
	}
	return &service.ExportFile{Filename: "assignment_results.csv", ContentType: "text/csv", Body: []byte("Subject\n")}, nil
}

func newTestContext(method, target string, body []byte, withOperator bool) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req, _ := http.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if withOperator {
		c.Set(middleware.ContextOperatorKey, &models.Operator{Claims: &models.JWTClaims{UserID: "op-1"}, Token: "token"})
	}
	return c, w
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestWizardHandlerOpenWithoutBody(t *testing.T) {
	mock := &wizardServiceMock{}
	c, w := newTestContext(http.MethodPost, "/assignment-wizards", nil, true)

	NewWizardHandler(mock).Open(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "op-1", mock.lastOperator)
	assert.Equal(t, dto.OpenWizardRequest{}, mock.openReq)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestWizardHandlerRequiresOperator(t *testing.T) {
	c, w := newTestContext(http.MethodPost, "/assignment-wizards", nil, false)
	NewWizardHandler(&wizardServiceMock{}).Open(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWizardHandlerToggleRow(t *testing.T) {
	mock := &wizardServiceMock{}
	c, w := newTestContext(http.MethodPut, "/assignment-wizards/w-1/rows/math/selection", []byte(`{"selected":true}`), true)
	c.Params = gin.Params{{Key: "id", Value: "w-1"}, {Key: "subjectId", Value: "math"}}

	NewWizardHandler(mock).ToggleRow(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "math", mock.lastSubject)
	assert.True(t, mock.lastSelected)

	c, w = newTestContext(http.MethodPut, "/assignment-wizards/w-1/rows/math/selection", []byte(`{}`), true)
	NewWizardHandler(mock).ToggleRow(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWizardHandlerValidateReportsIncompleteRows(t *testing.T) {
	incomplete := []service.IncompleteRow{{SubjectID: "chem", SubjectName: "Chemistry", MissingFields: []string{"Classroom"}}}
	mock := &wizardServiceMock{err: appErrors.WithDetails(appErrors.ErrIncompleteRows, "complete the selected rows", incomplete)}
	c, w := newTestContext(http.MethodPost, "/assignment-wizards/w-1/validate", nil, true)
	c.Params = gin.Params{{Key: "id", Value: "w-1"}}

	NewWizardHandler(mock).ValidateAll(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INCOMPLETE_ROWS", env.Error.Code)
	var details []service.IncompleteRow
	require.NoError(t, json.Unmarshal(env.Error.Details, &details))
	assert.Equal(t, incomplete, details)
}

func TestWizardHandlerApplyRepair(t *testing.T) {
	mock := &wizardServiceMock{}
	c, w := newTestContext(http.MethodPost, "/assignment-wizards/w-1/rows/bio/repair", []byte(`{"weekly_periods":3}`), true)
	c.Params = gin.Params{{Key: "id", Value: "w-1"}, {Key: "subjectId", Value: "bio"}}

	NewWizardHandler(mock).ApplyRepair(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bio", mock.lastSubject)
	assert.Equal(t, 3, mock.lastPeriods)
}

func TestWizardHandlerMapsConflictErrors(t *testing.T) {
	mock := &wizardServiceMock{err: appErrors.Clone(appErrors.ErrSubmitBlocked, "the batch exceeds the teacher's capacity by 2 periods")}
	c, w := newTestContext(http.MethodPost, "/assignment-wizards/w-1/validate", nil, true)
	c.Params = gin.Params{{Key: "id", Value: "w-1"}}

	NewWizardHandler(mock).ValidateAll(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SUBMIT_BLOCKED", decodeEnvelope(t, w).Error.Code)
}

func TestWizardHandlerExport(t *testing.T) {
	mock := &wizardServiceMock{}
	c, w := newTestContext(http.MethodGet, "/assignment-wizards/w-1/results/export?format=csv", nil, true)
	c.Params = gin.Params{{Key: "id", Value: "w-1"}}

	NewWizardHandler(mock).Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportFormatCSV, mock.lastFormat)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "assignment_results.csv")
}
