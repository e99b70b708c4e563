package sqlxrepos_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/catalog"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/user"
	"github.com/trezcool/registrar/storage/database/sqlx"
	"github.com/trezcool/registrar/tests"
)

type repos struct {
	usr user.Repository
	cat catalog.Repository
	enr enrollment.Repository
}

func setup(t *testing.T) repos {
	t.Helper()
	db := testutil.PrepareDB(t)
	return repos{
		usr: sqlxrepos.NewUserRepository(db),
		cat: sqlxrepos.NewCatalogRepository(db),
		enr: sqlxrepos.NewEnrollmentRepository(db),
	}
}

func Test_userRepository(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	created := time.Date(2024, 9, 1, 8, 30, 0, 0, time.UTC)
	awe := testutil.CreateUser(t, r.usr, "Awe Some", "awe", "awe@test.cd", "Awe$0meP@ss", []string{user.RoleStudent}, true, created)
	admin := testutil.CreateUser(t, r.usr, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdminOwner, user.RoleTeacher}, true)
	noEmail := testutil.CreateUser(t, r.usr, "No Email", "noemail", "", "", nil, false)

	t.Run("get", func(t *testing.T) {
		got, err := r.usr.GetUser(ctx, user.GetFilter{ID: awe.ID})
		require.NoError(t, err)
		assert.Equal(t, awe.Username, got.Username)
		assert.Equal(t, []string{user.RoleStudent}, got.Roles)
		assert.True(t, got.CreatedAt.Equal(created))
		assert.NoError(t, got.CheckPassword("Awe$0meP@ss"))

		got, err = r.usr.GetUser(ctx, user.GetFilter{UsernameOrEmail: "admin@test.cd"})
		require.NoError(t, err)
		assert.Equal(t, admin.ID, got.ID)

		got, err = r.usr.GetUser(ctx, user.GetFilter{Username: "noemail"})
		require.NoError(t, err)
		assert.Empty(t, got.Email)
		assert.Nil(t, got.Roles)

		_, err = r.usr.GetUser(ctx, user.GetFilter{Email: "lol@test.cd"})
		assert.Equal(t, user.ErrNotFound, err)
		_, err = r.usr.GetUser(ctx, user.GetFilter{})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("uniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrUserExists, r.usr.CheckUsernameUniqueness(ctx, "awe", "", nil))
		assert.Equal(t, user.ErrUserExists, r.usr.CheckUsernameUniqueness(ctx, "lol", "awe@test.cd", nil))
		assert.NoError(t, r.usr.CheckUsernameUniqueness(ctx, "awe", "awe@test.cd", []user.User{awe}))
		assert.NoError(t, r.usr.CheckUsernameUniqueness(ctx, "lol", "lol@test.cd", nil))

		// empty emails are stored as NULL and never collide
		other := testutil.CreateUser(t, r.usr, "Other", "other", "", "", nil, true)
		assert.NotEqual(t, noEmail.ID, other.ID)

		dup := awe
		dup.ID = uuid.New().String()
		_, err := r.usr.CreateUser(ctx, dup)
		assert.Equal(t, user.ErrUserExists, err)
	})

	t.Run("query", func(t *testing.T) {
		bPtr := func(b bool) *bool { return &b }
		usernames := func(users []user.User) []string {
			res := make([]string, 0, len(users))
			for _, u := range users {
				res = append(res, u.Username)
			}
			return res
		}
		tests := []struct {
			name   string
			filter *user.QueryFilter
			want   []string
		}{
			{name: "all", want: []string{"admin", "awe", "noemail", "other"}},
			{name: "search", filter: &user.QueryFilter{Search: "AWE"}, want: []string{"awe"}},
			{name: "admin roles", filter: &user.QueryFilter{Roles: []string{user.RoleAdmin}}, want: []string{"admin"}},
			{name: "teacher or student", filter: &user.QueryFilter{Roles: []string{user.RoleTeacher, user.RoleStudent}}, want: []string{"admin", "awe"}},
			{name: "inactive", filter: &user.QueryFilter{IsActive: bPtr(false)}, want: []string{"noemail"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := r.usr.QueryUsers(ctx, tt.filter)
				require.NoError(t, err)
				assert.Equal(t, tt.want, usernames(got))
			})
		}
	})

	t.Run("update", func(t *testing.T) {
		usr := noEmail
		usr.IsActive = true
		usr.Email = "found@test.cd"
		usr.Roles = []string{user.RoleStudent}
		_, err := r.usr.UpdateUser(ctx, usr)
		require.NoError(t, err)

		got, err := r.usr.GetUser(ctx, user.GetFilter{Email: "found@test.cd"})
		require.NoError(t, err)
		assert.True(t, got.IsActive)
		assert.True(t, got.IsStudent())

		usr.ID = "lol"
		_, err = r.usr.UpdateUser(ctx, usr)
		assert.Equal(t, user.ErrNotFound, err)
	})
}

func Test_catalogRepository(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	ins, err := r.cat.CreateInstructor(ctx, catalog.Instructor{ID: uuid.New().String(), Name: "Ada"})
	require.NoError(t, err)

	testutil.CreateCourse(t, r.cat, "MATH1", 10)
	testutil.CreateCourse(t, r.cat, "CS101", 10)
	start := time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	_, err = r.cat.CreateCourse(ctx, catalog.Course{
		Code:          "CS201",
		Title:         "Data Structures",
		Level:         catalog.LevelIntermediate,
		InstructorID:  ins.ID,
		Capacity:      20,
		StartDate:     start,
		IsActive:      true,
		Prerequisites: []string{"MATH1", "CS101"},
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	require.NoError(t, err)

	t.Run("get", func(t *testing.T) {
		got, err := r.cat.GetInstructor(ctx, ins.ID)
		require.NoError(t, err)
		assert.Equal(t, ins, got)
		_, err = r.cat.GetInstructor(ctx, "lol")
		assert.Equal(t, catalog.ErrInstructorNotFound, err)

		course, err := r.cat.GetCourse(ctx, "CS201")
		require.NoError(t, err)
		assert.Equal(t, ins.ID, course.InstructorID)
		assert.True(t, course.StartDate.Equal(start))
		assert.True(t, course.EndDate.IsZero())
		assert.Equal(t, []string{"MATH1", "CS101"}, course.Prerequisites)

		prereqs, err := r.cat.GetPrerequisites(ctx, "CS201")
		require.NoError(t, err)
		assert.Equal(t, []string{"MATH1", "CS101"}, prereqs)

		prereqs, err = r.cat.GetPrerequisites(ctx, "CS101")
		require.NoError(t, err)
		assert.Empty(t, prereqs)

		_, err = r.cat.GetCourse(ctx, "LOL404")
		assert.Equal(t, catalog.ErrNotFound, err)
		_, err = r.cat.GetPrerequisites(ctx, "LOL404")
		assert.Equal(t, catalog.ErrNotFound, err)
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := r.cat.CreateCourse(ctx, catalog.Course{Code: "CS101", Title: "Again", Capacity: 1})
		assert.Equal(t, catalog.ErrCourseExists, err)
	})

	t.Run("update & query", func(t *testing.T) {
		course, err := r.cat.GetCourse(ctx, "MATH1")
		require.NoError(t, err)
		course.IsActive = false
		_, err = r.cat.UpdateCourse(ctx, course)
		require.NoError(t, err)

		active, err := r.cat.QueryCourses(ctx, &catalog.QueryFilter{ActiveOnly: true})
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "CS101", active[0].Code)
		assert.Equal(t, "CS201", active[1].Code)
		assert.Equal(t, []string{"MATH1", "CS101"}, active[1].Prerequisites)

		found, err := r.cat.QueryCourses(ctx, &catalog.QueryFilter{Search: "structures", InstructorID: ins.ID})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "CS201", found[0].Code)

		missing := course
		missing.Code = "LOL404"
		_, err = r.cat.UpdateCourse(ctx, missing)
		assert.Equal(t, catalog.ErrNotFound, err)
	})
}

func Test_enrollmentRepository(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	awe := testutil.CreateStudent(t, r.usr, "awe")
	king := testutil.CreateStudent(t, r.usr, "king")
	testutil.CreateCourse(t, r.cat, "SOLO", 1)

	at := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	e := enrollment.Enrollment{
		ID:           uuid.New().String(),
		StudentID:    awe.ID,
		CourseCode:   "SOLO",
		Status:       enrollment.StatusEnrolled,
		EnrolledAt:   at,
		LastActivity: at,
	}
	created, err := r.enr.CreateEnrollment(ctx, e, 1)
	require.NoError(t, err)
	assert.Equal(t, e, created)

	t.Run("exists", func(t *testing.T) {
		dup := e
		dup.ID = uuid.New().String()
		_, err := r.enr.CreateEnrollment(ctx, dup, 10)
		assert.Equal(t, enrollment.ErrExists, err)
	})

	t.Run("full", func(t *testing.T) {
		other := e
		other.ID = uuid.New().String()
		other.StudentID = king.ID
		_, err := r.enr.CreateEnrollment(ctx, other, 1)
		assert.Equal(t, enrollment.ErrCourseFull, err)

		count, err := r.enr.CountEnrolled(ctx, "SOLO")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("find", func(t *testing.T) {
		got, err := r.enr.FindEnrollment(ctx, awe.ID, "SOLO")
		require.NoError(t, err)
		assert.Equal(t, e, got)

		_, err = r.enr.FindEnrollment(ctx, king.ID, "SOLO")
		assert.Equal(t, enrollment.ErrNotFound, err)
	})

	t.Run("update", func(t *testing.T) {
		done := e
		done.Status = enrollment.StatusCompleted
		done.Grade = enrollment.GradeB
		done.LastActivity = at.Add(time.Hour)

		got, err := r.enr.UpdateEnrollment(ctx, done, enrollment.StatusEnrolled)
		require.NoError(t, err)
		assert.Equal(t, done, got)

		// the stored status is no longer Enrolled
		_, err = r.enr.UpdateEnrollment(ctx, done, enrollment.StatusEnrolled)
		assert.Equal(t, enrollment.ErrNotFound, err)

		count, err := r.enr.CountEnrolled(ctx, "SOLO")
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("query", func(t *testing.T) {
		other := e
		other.ID = uuid.New().String()
		other.StudentID = king.ID
		other.EnrolledAt = at.Add(time.Minute)
		other.LastActivity = other.EnrolledAt
		_, err := r.enr.CreateEnrollment(ctx, other, 1)
		require.NoError(t, err)

		all, err := r.enr.QueryEnrollments(ctx, enrollment.QueryFilter{CourseCode: "SOLO"})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, king.ID, all[0].StudentID, "most recent first")

		enrolled, err := r.enr.QueryEnrollments(ctx, enrollment.QueryFilter{
			CourseCode: "SOLO",
			Statuses:   []enrollment.Status{enrollment.StatusEnrolled},
		})
		require.NoError(t, err)
		require.Len(t, enrolled, 1)
		assert.Equal(t, king.ID, enrolled[0].StudentID)

		mine, err := r.enr.QueryEnrollments(ctx, enrollment.QueryFilter{StudentID: awe.ID})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, enrollment.GradeB, mine[0].Grade)
	})
}

func TestEngine_sqlite(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	validate, translator := core.NewValidator()
	students := user.NewService(r.usr, validate, translator)
	courses := catalog.NewService(r.cat, validate, translator)
	eng := enrollment.NewEngine(enrollment.Deps{Repo: r.enr, Catalog: courses, Students: students})

	testutil.CreateCourse(t, r.cat, "CS101", 30)
	testutil.CreateCourse(t, r.cat, "CS201", 30, "CS101")
	testutil.CreateCourse(t, r.cat, "HOT", 3)

	t.Run("prerequisites", func(t *testing.T) {
		testutil.CreateStudent(t, r.usr, "s1")

		_, err := eng.Admit(ctx, "s1", "CS201")
		assert.True(t, errors.Is(err, enrollment.ErrPrerequisitesNotMet), "got %v", err)

		_, err = eng.Admit(ctx, "s1", "CS101")
		require.NoError(t, err)
		require.NoError(t, eng.Complete(ctx, "s1", "CS101", enrollment.GradeA))
		_, err = eng.Admit(ctx, "s1", "CS201")
		require.NoError(t, err)

		listing, err := eng.ListEnrollments(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, listing.Enrolled, 1)
		require.Len(t, listing.Completed, 1)
		assert.Equal(t, "CS201", listing.Enrolled[0].CourseCode)
		assert.Equal(t, enrollment.GradeA, listing.Completed[0].Grade)
	})

	t.Run("concurrent admissions", func(t *testing.T) {
		const students = 12
		ids := make([]string, students)
		for i := range ids {
			ids[i] = testutil.CreateStudent(t, r.usr, fmt.Sprintf("hot%02d", i)).ID
		}

		var admitted, full int32
		var g errgroup.Group
		for _, id := range ids {
			id := id
			g.Go(func() error {
				_, err := eng.Admit(ctx, id, "HOT")
				switch {
				case err == nil:
					atomic.AddInt32(&admitted, 1)
				case errors.Is(err, enrollment.ErrCourseFull):
					atomic.AddInt32(&full, 1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.EqualValues(t, 3, admitted)
		assert.EqualValues(t, students-3, full)

		seats, err := eng.Seats(ctx, "HOT")
		require.NoError(t, err)
		assert.Equal(t, enrollment.Seats{Capacity: 3, Enrolled: 3, Available: 0}, seats)
	})

	t.Run("featured", func(t *testing.T) {
		featured, err := courses.Featured(ctx, 1)
		require.NoError(t, err)
		require.Len(t, featured, 1)
		assert.Equal(t, "HOT", featured[0].Code)
	})
}
