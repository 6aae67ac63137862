package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-assignment-engine/internal/models"
	"github.com/noah-isme/sma-assignment-engine/internal/repository"
	appErrors "github.com/noah-isme/sma-assignment-engine/pkg/errors"
)

type schoolReader interface {
	GetTeacher(ctx context.Context, teacherID string) (*models.Teacher, error)
	ListSubjects(ctx context.Context) ([]models.Subject, error)
	ListAcademicYears(ctx context.Context) ([]models.AcademicYear, error)
	GetSchoolSettings(ctx context.Context) (*models.SchoolSettings, error)
	ListLocations(ctx context.Context, kind models.LocationKind, academicYearID string) ([]models.LocationOption, error)
}

type capacityReader interface {
	GetCapacity(ctx context.Context, teacherID, academicYearID string) (*models.CapacitySnapshot, error)
}

// ReferenceService serves read-only reference data, cached when enabled.
// Capacity snapshots bypass the cache: they change with every commit.
type ReferenceService struct {
	school   schoolReader
	capacity capacityReader
	cache    *CacheService
	logger   *zap.Logger
}

// NewReferenceService constructs the service.
func NewReferenceService(school schoolReader, capacity capacityReader, cache *CacheService, logger *zap.Logger) *ReferenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceService{school: school, capacity: capacity, cache: cache, logger: logger}
}

func teacherCacheKey(teacherID string) string { return "teacher:" + teacherID }

// Teacher returns the teacher profile.
func (s *ReferenceService) Teacher(ctx context.Context, teacherID string) (*models.Teacher, error) {
	var cached models.Teacher
	if s.cache.Get(ctx, teacherCacheKey(teacherID), &cached) {
		return &cached, nil
	}
	teacher, err := s.school.GetTeacher(ctx, teacherID)
	if err != nil {
		return nil, upstreamError(err, "teacher")
	}
	s.cache.Set(ctx, teacherCacheKey(teacherID), teacher)
	return teacher, nil
}

// Subjects returns the catalogue in the order the school API lists it. That
// order is the canonical row order of the wizard.
func (s *ReferenceService) Subjects(ctx context.Context) ([]models.Subject, error) {
	var subjects []models.Subject
	if !s.cache.Get(ctx, "subjects", &subjects) {
		fetched, err := s.school.ListSubjects(ctx)
		if err != nil {
			return nil, upstreamError(err, "subjects")
		}
		subjects = fetched
		s.cache.Set(ctx, "subjects", subjects)
	}
	out := make([]models.Subject, len(subjects))
	copy(out, subjects)
	return out, nil
}

// AcademicYears returns the selectable academic years, current year first.
func (s *ReferenceService) AcademicYears(ctx context.Context) ([]models.AcademicYear, error) {
	var years []models.AcademicYear
	if !s.cache.Get(ctx, "academic-years", &years) {
		fetched, err := s.school.ListAcademicYears(ctx)
		if err != nil {
			return nil, upstreamError(err, "academic years")
		}
		years = fetched
		s.cache.Set(ctx, "academic-years", years)
	}
	sort.SliceStable(years, func(i, j int) bool { return years[i].IsCurrent && !years[j].IsCurrent })
	return years, nil
}

// SchoolSettings returns the school configuration.
func (s *ReferenceService) SchoolSettings(ctx context.Context) (*models.SchoolSettings, error) {
	var cached models.SchoolSettings
	if s.cache.Get(ctx, "school-settings", &cached) {
		return &cached, nil
	}
	settings, err := s.school.GetSchoolSettings(ctx)
	if err != nil {
		return nil, upstreamError(err, "school settings")
	}
	s.cache.Set(ctx, "school-settings", settings)
	return settings, nil
}

// Locations returns the classrooms or streams for the academic year.
func (s *ReferenceService) Locations(ctx context.Context, kind models.LocationKind, academicYearID string) ([]models.LocationOption, error) {
	key := fmt.Sprintf("locations:%s:%s", kind, academicYearID)
	var options []models.LocationOption
	if s.cache.Get(ctx, key, &options) {
		return options, nil
	}
	options, err := s.school.ListLocations(ctx, kind, academicYearID)
	if err != nil {
		return nil, upstreamError(err, string(kind)+"s")
	}
	s.cache.Set(ctx, key, options)
	return options, nil
}

// Capacity fetches a fresh capacity snapshot.
func (s *ReferenceService) Capacity(ctx context.Context, teacherID, academicYearID string) (*models.CapacitySnapshot, error) {
	snapshot, err := s.capacity.GetCapacity(ctx, teacherID, academicYearID)
	if err != nil {
		return nil, upstreamError(err, "teacher workload")
	}
	return snapshot, nil
}

// InvalidateTeacher drops cached data scoped to the teacher.
func (s *ReferenceService) InvalidateTeacher(ctx context.Context, teacherID string) error {
	return s.cache.Invalidate(ctx, teacherCacheKey(teacherID)+"*")
}

func upstreamError(err error, what string) error {
	if repository.IsNotFound(err) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load "+what)
}
