package catalog

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

const defaultRelatedLimit = 3

var (
	// errors
	ErrNotFound           = errors.New("course not found")
	ErrInstructorNotFound = errors.New("instructor not found")
	ErrCourseExists       = errors.New("a course with this code already exists")
)

type (
	Repository interface {
		CreateInstructor(ctx context.Context, ins Instructor) (Instructor, error)
		GetInstructor(ctx context.Context, id string) (Instructor, error)
		// CreateCourse stores the course and its prerequisites (declared order preserved).
		// It returns ErrCourseExists when the code is taken.
		CreateCourse(ctx context.Context, course Course) (Course, error)
		UpdateCourse(ctx context.Context, course Course) (Course, error)
		GetCourse(ctx context.Context, code string) (Course, error)
		// GetPrerequisites returns the codes of the course's direct prerequisites in declared order.
		GetPrerequisites(ctx context.Context, code string) ([]string, error)
		// QueryCourses returns the courses matching the filter ordered by code.
		QueryCourses(ctx context.Context, filter *QueryFilter) ([]Course, error)
		// FeaturedCourses returns up to limit active courses ordered by their number of enrollments (most first).
		FeaturedCourses(ctx context.Context, limit int) ([]Course, error)
	}

	Service struct {
		repo       Repository
		validate   *validator.Validate
		translator ut.Translator
	}
)

func NewService(repo Repository, validate *validator.Validate, translator ut.Translator) *Service {
	InitValidators(validate, translator)
	return &Service{repo: repo, validate: validate, translator: translator}
}

func (svc *Service) CreateInstructor(ctx context.Context, ni NewInstructor) (Instructor, error) {
	ni.Name = core.CleanString(ni.Name)
	ni.UserID = core.CleanString(ni.UserID)
	if err := svc.validate.Struct(ni); err != nil {
		return Instructor{}, core.TranslateValidationErrors(err, svc.translator)
	}
	ins := Instructor{
		ID:          uuid.New().String(),
		UserID:      ni.UserID,
		Name:        ni.Name,
		Bio:         core.CleanString(ni.Bio),
		Expertise:   core.CleanString(ni.Expertise),
		OfficeHours: core.CleanString(ni.OfficeHours),
	}
	return svc.repo.CreateInstructor(ctx, ins)
}

func (svc *Service) GetInstructor(ctx context.Context, id string) (Instructor, error) {
	return svc.repo.GetInstructor(ctx, core.CleanString(id))
}

// CreateCourse validates and stores a new course.
// Prerequisites must already exist and a course cannot require itself; longer cycles are not detected.
func (svc *Service) CreateCourse(ctx context.Context, nc NewCourse) (Course, error) {
	nc.clean()
	if err := svc.validate.Struct(nc); err != nil {
		return Course{}, core.TranslateValidationErrors(err, svc.translator)
	}

	if nc.InstructorID != "" {
		if _, err := svc.repo.GetInstructor(ctx, nc.InstructorID); err != nil {
			if errors.Is(err, ErrInstructorNotFound) {
				return Course{}, core.NewValidationError(err, core.FieldError{Field: "instructor_id", Error: err.Error()})
			}
			return Course{}, errors.Wrap(err, "finding instructor")
		}
	}

	seen := make(map[string]bool, len(nc.Prerequisites))
	prereqs := make([]string, 0, len(nc.Prerequisites))
	for _, code := range nc.Prerequisites {
		if code == nc.Code {
			return Course{}, core.NewValidationError(nil, core.FieldError{
				Field: "prerequisites",
				Error: "a course cannot be its own prerequisite",
			})
		}
		if seen[code] {
			continue
		}
		if _, err := svc.repo.GetCourse(ctx, code); err != nil {
			if errors.Is(err, ErrNotFound) {
				return Course{}, core.NewValidationError(err, core.FieldError{
					Field: "prerequisites",
					Error: "unknown prerequisite " + code,
				})
			}
			return Course{}, errors.Wrap(err, "finding prerequisite")
		}
		seen[code] = true
		prereqs = append(prereqs, code)
	}

	now := time.Now().UTC()
	course := Course{
		Code:          nc.Code,
		Title:         nc.Title,
		Description:   nc.Description,
		Credits:       nc.Credits,
		Level:         nc.Level,
		InstructorID:  nc.InstructorID,
		Capacity:      nc.Capacity,
		StartDate:     nc.StartDate.UTC(),
		EndDate:       nc.EndDate.UTC(),
		IsActive:      !nc.Inactive,
		Prerequisites: prereqs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := svc.repo.CreateCourse(ctx, course)
	if errors.Is(err, ErrCourseExists) {
		return Course{}, core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
	}
	return created, err
}

// SetActive opens or closes a course for admissions.
func (svc *Service) SetActive(ctx context.Context, code string, active bool) (Course, error) {
	course, err := svc.repo.GetCourse(ctx, core.CleanCode(code))
	if err != nil {
		return Course{}, err
	}
	course.IsActive = active
	course.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, course)
}

func (svc *Service) GetCourse(ctx context.Context, code string) (Course, error) {
	code = core.CleanCode(code)
	if code == "" {
		return Course{}, ErrNotFound
	}
	return svc.repo.GetCourse(ctx, code)
}

func (svc *Service) GetPrerequisites(ctx context.Context, code string) ([]string, error) {
	return svc.repo.GetPrerequisites(ctx, core.CleanCode(code))
}

// Search lists courses matching the filter; a nil filter lists every active course.
func (svc *Service) Search(ctx context.Context, filter *QueryFilter) ([]Course, error) {
	if filter == nil {
		filter = &QueryFilter{ActiveOnly: true}
	}
	filter.Clean()
	return svc.repo.QueryCourses(ctx, filter)
}

func (svc *Service) Featured(ctx context.Context, limit int) ([]Course, error) {
	if limit <= 0 {
		limit = 5
	}
	return svc.repo.FeaturedCourses(ctx, limit)
}

// Related returns courses sharing the instructor or the level of the given course, excluding the course itself.
func (svc *Service) Related(ctx context.Context, code string, limit int) ([]Course, error) {
	if limit <= 0 {
		limit = defaultRelatedLimit
	}
	course, err := svc.GetCourse(ctx, code)
	if err != nil {
		return nil, err
	}
	all, err := svc.repo.QueryCourses(ctx, &QueryFilter{})
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}

	related := make([]Course, 0, limit)
	for _, c := range all {
		if len(related) == limit {
			break
		}
		if c.Code == course.Code {
			continue
		}
		sameInstructor := course.InstructorID != "" && c.InstructorID == course.InstructorID
		if sameInstructor || c.Level == course.Level {
			related = append(related, c)
		}
	}
	return related, nil
}

// InstructorCourses returns the active courses taught by the instructor.
func (svc *Service) InstructorCourses(ctx context.Context, instructorID string) (Instructor, []Course, error) {
	ins, err := svc.GetInstructor(ctx, instructorID)
	if err != nil {
		return Instructor{}, nil, err
	}
	courses, err := svc.repo.QueryCourses(ctx, &QueryFilter{InstructorID: ins.ID, ActiveOnly: true})
	if err != nil {
		return Instructor{}, nil, errors.Wrap(err, "querying instructor courses")
	}
	return ins, courses, nil
}
