package enrollment

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/catalog"
	"github.com/trezcool/registrar/core/user"
)

type (
	Repository interface {
		// FindEnrollment returns ErrNotFound when the student has no enrollment in the course.
		FindEnrollment(ctx context.Context, studentID, courseCode string) (Enrollment, error)
		CountEnrolled(ctx context.Context, courseCode string) (int, error)
		// CreateEnrollment inserts e only while the course holds fewer than capacity Enrolled records.
		// It returns ErrCourseFull when no seat is left and ErrExists when the (student, course) pair is taken.
		CreateEnrollment(ctx context.Context, e Enrollment, capacity int) (Enrollment, error)
		// UpdateEnrollment saves the status, grade and last activity of e if its stored status is still `from`.
		// It returns ErrNotFound otherwise.
		UpdateEnrollment(ctx context.Context, e Enrollment, from Status) (Enrollment, error)
		QueryEnrollments(ctx context.Context, filter QueryFilter) ([]Enrollment, error)
	}

	// Catalog is the read-only view of the course catalog the engine relies on.
	Catalog interface {
		GetCourse(ctx context.Context, code string) (catalog.Course, error)
		GetPrerequisites(ctx context.Context, code string) ([]string, error)
	}

	// Students resolves opaque student identifiers.
	Students interface {
		ResolveStudent(ctx context.Context, id string) (user.User, error)
	}

	Deps struct {
		Repo     Repository
		Catalog  Catalog
		Students Students
		Locker   Locker           // defaults to an in-process LockArena
		Logger   core.Logger      // defaults to core.NopLogger
		Now      func() time.Time // defaults to time.Now
	}

	// Engine admits students into courses and moves their enrollments through the status lifecycle.
	// Admissions, drops and completions on the same course run under that course's lock.
	Engine struct {
		repo     Repository
		catalog  Catalog
		students Students
		locker   Locker
		logger   core.Logger
		now      func() time.Time
	}
)

func NewEngine(deps Deps) *Engine {
	eng := &Engine{
		repo:     deps.Repo,
		catalog:  deps.Catalog,
		students: deps.Students,
		locker:   deps.Locker,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	if eng.locker == nil {
		eng.locker = NewLockArena()
	}
	if eng.logger == nil {
		eng.logger = core.NopLogger{}
	}
	if eng.now == nil {
		eng.now = time.Now
	}
	return eng
}

func (eng *Engine) infra(op string, err error) error {
	eng.logger.Error("enrollment: "+op, err)
	return infraErr(op, err)
}

func (eng *Engine) resolveStudent(ctx context.Context, id string) (user.User, error) {
	stu, err := eng.students.ResolveStudent(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) || errors.Is(err, user.ErrNotStudent) {
			return user.User{}, ErrStudentNotFound
		}
		return user.User{}, eng.infra("resolving student", err)
	}
	return stu, nil
}

// resolveCourse returns the course, which must exist and, if activeOnly, be open.
func (eng *Engine) resolveCourse(ctx context.Context, code string, activeOnly bool) (catalog.Course, error) {
	code = core.CleanCode(code)
	if code == "" {
		return catalog.Course{}, ErrCourseNotFound
	}
	course, err := eng.catalog.GetCourse(ctx, code)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Course{}, ErrCourseNotFound
		}
		return catalog.Course{}, eng.infra("finding course", err)
	}
	if activeOnly && !course.IsActive {
		return catalog.Course{}, ErrCourseNotFound
	}
	return course, nil
}

func (eng *Engine) lock(ctx context.Context, code string) (func(), error) {
	unlock, err := eng.locker.Lock(ctx, code)
	if err != nil {
		return nil, eng.infra("locking course", err)
	}
	return unlock, nil
}

// Admit enrolls the student into the course.
// Checks run in order and stop at the first failure: existing enrollment, capacity, then direct prerequisites.
func (eng *Engine) Admit(ctx context.Context, studentID, courseCode string) (Enrollment, error) {
	stu, err := eng.resolveStudent(ctx, studentID)
	if err != nil {
		return Enrollment{}, err
	}
	course, err := eng.resolveCourse(ctx, courseCode, true)
	if err != nil {
		return Enrollment{}, err
	}

	unlock, err := eng.lock(ctx, course.Code)
	if err != nil {
		return Enrollment{}, err
	}
	defer unlock()

	existing, err := eng.repo.FindEnrollment(ctx, stu.ID, course.Code)
	switch {
	case err == nil:
		return Enrollment{}, &AlreadyEnrolledError{Status: existing.Status}
	case !errors.Is(err, ErrNotFound):
		return Enrollment{}, eng.infra("finding enrollment", err)
	}

	enrolled, err := eng.repo.CountEnrolled(ctx, course.Code)
	if err != nil {
		return Enrollment{}, eng.infra("counting enrolled students", err)
	}
	if enrolled >= course.Capacity {
		return Enrollment{}, ErrCourseFull
	}

	missing, err := eng.missingPrerequisites(ctx, stu.ID, course.Code)
	if err != nil {
		return Enrollment{}, err
	}
	if len(missing) > 0 {
		return Enrollment{}, &PrerequisitesError{Missing: missing}
	}

	now := eng.now().UTC()
	e := Enrollment{
		ID:           uuid.New().String(),
		StudentID:    stu.ID,
		CourseCode:   course.Code,
		Status:       StatusEnrolled,
		EnrolledAt:   now,
		LastActivity: now,
	}
	created, err := eng.repo.CreateEnrollment(ctx, e, course.Capacity)
	if err != nil {
		switch {
		case errors.Is(err, ErrCourseFull):
			return Enrollment{}, ErrCourseFull
		case errors.Is(err, ErrExists):
			// another process won the race for this pair
			if existing, ferr := eng.repo.FindEnrollment(ctx, stu.ID, course.Code); ferr == nil {
				return Enrollment{}, &AlreadyEnrolledError{Status: existing.Status}
			}
			return Enrollment{}, &AlreadyEnrolledError{Status: StatusEnrolled}
		default:
			return Enrollment{}, eng.infra("creating enrollment", err)
		}
	}
	eng.logger.Info("enrollment: admitted", map[string]interface{}{"student": stu.ID, "course": course.Code}, stu)
	return created, nil
}

// missingPrerequisites returns the direct prerequisites the student has not completed, in declared order.
func (eng *Engine) missingPrerequisites(ctx context.Context, studentID, courseCode string) ([]string, error) {
	prereqs, err := eng.catalog.GetPrerequisites(ctx, courseCode)
	if err != nil {
		return nil, eng.infra("listing prerequisites", err)
	}

	var missing []string
	for _, code := range prereqs {
		e, err := eng.repo.FindEnrollment(ctx, studentID, code)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, eng.infra("finding prerequisite enrollment", err)
		}
		if err != nil || e.Status != StatusCompleted {
			missing = append(missing, code)
		}
	}
	return missing, nil
}

// transition moves the student's enrollment in the course to the `to` status.
func (eng *Engine) transition(ctx context.Context, studentID, courseCode string, to Status, grade Grade) (Enrollment, error) {
	stu, err := eng.resolveStudent(ctx, studentID)
	if err != nil {
		return Enrollment{}, err
	}
	code := core.CleanCode(courseCode)

	unlock, err := eng.lock(ctx, code)
	if err != nil {
		return Enrollment{}, err
	}
	defer unlock()

	e, err := eng.repo.FindEnrollment(ctx, stu.ID, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Enrollment{}, ErrNotEnrolled
		}
		return Enrollment{}, eng.infra("finding enrollment", err)
	}
	if err := Transition(e.Status, to); err != nil {
		return Enrollment{}, err
	}

	from := e.Status
	e.Status = to
	if to == StatusCompleted {
		e.Grade = grade
	}
	e.LastActivity = eng.now().UTC()

	updated, err := eng.repo.UpdateEnrollment(ctx, e, from)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Enrollment{}, ErrNotEnrolled
		}
		return Enrollment{}, eng.infra("updating enrollment", err)
	}
	return updated, nil
}

// Drop moves an Enrolled enrollment to Dropped. Any other case fails with ErrNotEnrolled.
func (eng *Engine) Drop(ctx context.Context, studentID, courseCode string) error {
	_, err := eng.transition(ctx, studentID, courseCode, StatusDropped, "")
	var tErr *TransitionError
	if errors.As(err, &tErr) {
		return ErrNotEnrolled
	}
	return err
}

// Complete moves an Enrolled enrollment to Completed and records the grade.
// Completing a dropped or completed enrollment fails with a *TransitionError.
func (eng *Engine) Complete(ctx context.Context, studentID, courseCode string, grade Grade) error {
	if !grade.Valid() {
		return &GradeError{Value: string(grade)}
	}
	_, err := eng.transition(ctx, studentID, courseCode, StatusCompleted, grade)
	return err
}

// ListEnrollments returns all the student's enrollments grouped by status, most recent first.
func (eng *Engine) ListEnrollments(ctx context.Context, studentID string) (Listing, error) {
	stu, err := eng.resolveStudent(ctx, studentID)
	if err != nil {
		return Listing{}, err
	}
	enrollments, err := eng.repo.QueryEnrollments(ctx, QueryFilter{StudentID: stu.ID})
	if err != nil {
		return Listing{}, eng.infra("querying enrollments", err)
	}
	sort.SliceStable(enrollments, func(i, j int) bool {
		ei, ej := enrollments[i], enrollments[j]
		if !ei.EnrolledAt.Equal(ej.EnrolledAt) {
			return ei.EnrolledAt.After(ej.EnrolledAt)
		}
		return ei.CourseCode < ej.CourseCode
	})

	summaries := make(map[string]CourseSummary, len(enrollments))
	listing := Listing{Enrolled: []Record{}, Completed: []Record{}, Dropped: []Record{}}
	for _, e := range enrollments {
		summary, ok := summaries[e.CourseCode]
		if !ok {
			summary = CourseSummary{Code: e.CourseCode}
			course, err := eng.catalog.GetCourse(ctx, e.CourseCode)
			switch {
			case err == nil:
				summary.Title = course.Title
			case !errors.Is(err, catalog.ErrNotFound):
				return Listing{}, eng.infra("finding course", err)
			}
			summaries[e.CourseCode] = summary
		}

		rec := Record{Enrollment: e, Course: summary}
		switch e.Status {
		case StatusEnrolled:
			listing.Enrolled = append(listing.Enrolled, rec)
		case StatusCompleted:
			listing.Completed = append(listing.Completed, rec)
		case StatusDropped:
			listing.Dropped = append(listing.Dropped, rec)
		}
	}
	return listing, nil
}

// Lookup returns the student's enrollment in the course, if any.
func (eng *Engine) Lookup(ctx context.Context, studentID, courseCode string) (Enrollment, bool, error) {
	stu, err := eng.resolveStudent(ctx, studentID)
	if err != nil {
		return Enrollment{}, false, err
	}
	e, err := eng.repo.FindEnrollment(ctx, stu.ID, core.CleanCode(courseCode))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Enrollment{}, false, nil
		}
		return Enrollment{}, false, eng.infra("finding enrollment", err)
	}
	return e, true, nil
}

// Roster returns the Enrolled records of a course, oldest admission first.
func (eng *Engine) Roster(ctx context.Context, courseCode string) ([]Enrollment, error) {
	course, err := eng.resolveCourse(ctx, courseCode, false)
	if err != nil {
		return nil, err
	}
	enrollments, err := eng.repo.QueryEnrollments(ctx, QueryFilter{
		CourseCode: course.Code,
		Statuses:   []Status{StatusEnrolled},
	})
	if err != nil {
		return nil, eng.infra("querying roster", err)
	}
	sort.SliceStable(enrollments, func(i, j int) bool {
		return enrollments[i].EnrolledAt.Before(enrollments[j].EnrolledAt)
	})
	return enrollments, nil
}

func (eng *Engine) Seats(ctx context.Context, courseCode string) (Seats, error) {
	course, err := eng.resolveCourse(ctx, courseCode, false)
	if err != nil {
		return Seats{}, err
	}
	enrolled, err := eng.repo.CountEnrolled(ctx, course.Code)
	if err != nil {
		return Seats{}, eng.infra("counting enrolled students", err)
	}
	available := course.Capacity - enrolled
	if available < 0 {
		available = 0
	}
	return Seats{Capacity: course.Capacity, Enrolled: enrolled, Available: available}, nil
}
