package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/sma-assignment-engine/internal/models"
	appErrors "github.com/noah-isme/sma-assignment-engine/pkg/errors"
	"github.com/noah-isme/sma-assignment-engine/pkg/export"
)

// ExportFormat selects the rendering of a results report.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportFile is a rendered report ready to be sent to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ResultsReport describes a finished submission for export.
type ResultsReport struct {
	TeacherName    string
	AcademicYearID string
	Result         models.SubmissionResult
	GeneratedAt    time.Time
}

// ExportService renders submission results as CSV or PDF.
type ExportService struct {
	renderers map[ExportFormat]datasetRenderer
	now       func() time.Time
}

// NewExportService constructs an ExportService; nil renderers use defaults.
func NewExportService(csv, pdf datasetRenderer) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		renderers: map[ExportFormat]datasetRenderer{ExportFormatCSV: csv, ExportFormatPDF: pdf},
		now:       time.Now,
	}
}

// Render builds the report in the requested format.
func (s *ExportService) Render(format ExportFormat, report ResultsReport) (*ExportFile, error) {
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = s.now()
	}
	body, err := renderer.Render(buildResultsDataset(report))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render results report")
	}
	return &ExportFile{
		Filename:    buildFilename(report, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

func buildResultsDataset(report ResultsReport) export.Dataset {
	rows := make([]map[string]string, 0, len(report.Result.Succeeded)+len(report.Result.Failed))
	for _, item := range report.Result.Succeeded {
		rows = append(rows, map[string]string{
			"Subject":       item.Name,
			"Outcome":       string(models.SubmissionSucceeded),
			"Assignment ID": item.AssignmentID,
			"Reason":        "",
		})
	}
	for _, item := range report.Result.Failed {
		rows = append(rows, map[string]string{
			"Subject":       item.Name,
			"Outcome":       string(models.SubmissionFailed),
			"Assignment ID": "",
			"Reason":        item.Reason,
		})
	}
	return export.Dataset{
		Title: fmt.Sprintf("Assignment Results %s", report.TeacherName),
		Summary: []string{
			fmt.Sprintf("Academic year: %s", report.AcademicYearID),
			fmt.Sprintf("Succeeded: %d  Failed: %d", len(report.Result.Succeeded), len(report.Result.Failed)),
			fmt.Sprintf("Generated: %s", report.GeneratedAt.UTC().Format(time.RFC3339)),
		},
		Headers: []string{"Subject", "Outcome", "Assignment ID", "Reason"},
		Rows:    rows,
	}
}

func buildFilename(report ResultsReport, ext string) string {
	timestamp := report.GeneratedAt.UTC().Format("20060102_150405")
	return fmt.Sprintf("assignment_results_%s_%s.%s", sanitizeFilename(report.TeacherName), timestamp, ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
