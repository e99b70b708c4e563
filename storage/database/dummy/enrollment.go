package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/registrar/core/enrollment"
)

type enrollmentRepository struct {
	db *enrollmentTable
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db.enrollment}
}

func (repo *enrollmentRepository) countEnrolled(courseCode string) int {
	n := 0
	for _, e := range repo.db.table {
		if e.CourseCode == courseCode && e.Status == enrollment.StatusEnrolled {
			n++
		}
	}
	return n
}

func (repo *enrollmentRepository) FindEnrollment(
	_ context.Context,
	studentID, courseCode string,
) (enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.table[enrollmentKey(studentID, courseCode)]; ok {
		return *e, nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) CountEnrolled(_ context.Context, courseCode string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.countEnrolled(courseCode), nil
}

// CreateEnrollment checks the seat count and inserts under the same write lock.
func (repo *enrollmentRepository) CreateEnrollment(
	_ context.Context,
	e enrollment.Enrollment,
	capacity int,
) (enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := enrollmentKey(e.StudentID, e.CourseCode)
	if _, ok := repo.db.table[key]; ok {
		return enrollment.Enrollment{}, enrollment.ErrExists
	}
	if repo.countEnrolled(e.CourseCode) >= capacity {
		return enrollment.Enrollment{}, enrollment.ErrCourseFull
	}
	repo.db.table[key] = &e
	return e, nil
}

func (repo *enrollmentRepository) UpdateEnrollment(
	_ context.Context,
	e enrollment.Enrollment,
	from enrollment.Status,
) (enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[enrollmentKey(e.StudentID, e.CourseCode)]
	if !ok || orig.Status != from {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	orig.Status = e.Status
	orig.Grade = e.Grade
	orig.LastActivity = e.LastActivity
	return *orig, nil
}

func (repo *enrollmentRepository) QueryEnrollments(
	_ context.Context,
	filter enrollment.QueryFilter,
) ([]enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	statuses := make(map[enrollment.Status]bool, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses[s] = true
	}

	enrollments := make([]enrollment.Enrollment, 0)
	for _, e := range repo.db.table {
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseCode != "" && e.CourseCode != filter.CourseCode {
			continue
		}
		if len(statuses) > 0 && !statuses[e.Status] {
			continue
		}
		enrollments = append(enrollments, *e)
	}
	sort.Slice(enrollments, func(i, j int) bool {
		if !enrollments[i].EnrolledAt.Equal(enrollments[j].EnrolledAt) {
			return enrollments[i].EnrolledAt.After(enrollments[j].EnrolledAt)
		}
		return enrollments[i].ID < enrollments[j].ID
	})
	return enrollments, nil
}
