package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/registrar/core/catalog"
)

type catalogRepository struct {
	db          *catalogTables
	enrollments *enrollmentTable
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db *DB) catalog.Repository {
	return &catalogRepository{db: db.catalog, enrollments: db.enrollment}
}

func copyCourse(c *catalog.Course) catalog.Course {
	course := *c
	course.Prerequisites = append([]string{}, c.Prerequisites...)
	return course
}

func (repo *catalogRepository) query() []catalog.Course {
	courses := make([]catalog.Course, 0, len(repo.db.courses))
	for _, c := range repo.db.courses {
		courses = append(courses, copyCourse(c))
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].Code < courses[j].Code })
	return courses
}

func (repo *catalogRepository) CreateInstructor(_ context.Context, ins catalog.Instructor) (catalog.Instructor, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.instructors[ins.ID] = &ins
	return ins, nil
}

func (repo *catalogRepository) GetInstructor(_ context.Context, id string) (catalog.Instructor, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ins, ok := repo.db.instructors[id]; ok {
		return *ins, nil
	}
	return catalog.Instructor{}, catalog.ErrInstructorNotFound
}

func (repo *catalogRepository) CreateCourse(_ context.Context, course catalog.Course) (catalog.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[course.Code]; ok {
		return catalog.Course{}, catalog.ErrCourseExists
	}
	stored := copyCourse(&course)
	repo.db.courses[course.Code] = &stored
	return copyCourse(&stored), nil
}

func (repo *catalogRepository) UpdateCourse(_ context.Context, course catalog.Course) (catalog.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.courses[course.Code]
	if !ok {
		return catalog.Course{}, catalog.ErrNotFound
	}
	// prerequisites are fixed at creation
	course.Prerequisites = orig.Prerequisites
	course.CreatedAt = orig.CreatedAt
	*orig = course
	return copyCourse(orig), nil
}

func (repo *catalogRepository) GetCourse(_ context.Context, code string) (catalog.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.courses[code]; ok {
		return copyCourse(c), nil
	}
	return catalog.Course{}, catalog.ErrNotFound
}

func (repo *catalogRepository) GetPrerequisites(_ context.Context, code string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	c, ok := repo.db.courses[code]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return append([]string{}, c.Prerequisites...), nil
}

func (repo *catalogRepository) QueryCourses(_ context.Context, filter *catalog.QueryFilter) ([]catalog.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := repo.query()
	if filter == nil {
		return courses, nil
	}

	search := strings.ToLower(filter.Search)
	filtered := make([]catalog.Course, 0, len(courses))
	for _, c := range courses {
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Code), search) &&
			!strings.Contains(strings.ToLower(c.Title), search) &&
			!strings.Contains(strings.ToLower(c.Description), search) {
			continue
		}
		if filter.Level != "" && c.Level != filter.Level {
			continue
		}
		if filter.InstructorID != "" && c.InstructorID != filter.InstructorID {
			continue
		}
		if filter.ActiveOnly && !c.IsActive {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered, nil
}

func (repo *catalogRepository) FeaturedCourses(_ context.Context, limit int) ([]catalog.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.enrollments.RLock()
	defer repo.enrollments.RUnlock()

	counts := make(map[string]int)
	for _, e := range repo.enrollments.table {
		counts[e.CourseCode]++
	}

	courses := make([]catalog.Course, 0, len(repo.db.courses))
	for _, c := range repo.query() {
		if c.IsActive {
			courses = append(courses, c)
		}
	}
	sort.SliceStable(courses, func(i, j int) bool {
		return counts[courses[i].Code] > counts[courses[j].Code]
	})
	if len(courses) > limit {
		courses = courses[:limit]
	}
	return courses, nil
}
