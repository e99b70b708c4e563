package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/catalog"
)

const (
	instructorColumns = "id, user_id, name, bio, expertise, office_hours"
	courseColumns     = "code, title, description, credits, level, instructor_id, capacity, " +
		"start_date, end_date, is_active, created_at, updated_at"
)

type instructorRow struct {
	ID          string      `db:"id"`
	UserID      null.String `db:"user_id"`
	Name        string      `db:"name"`
	Bio         string      `db:"bio"`
	Expertise   string      `db:"expertise"`
	OfficeHours string      `db:"office_hours"`
}

func (row instructorRow) toInstructor() catalog.Instructor {
	return catalog.Instructor{
		ID:          row.ID,
		UserID:      row.UserID.String,
		Name:        row.Name,
		Bio:         row.Bio,
		Expertise:   row.Expertise,
		OfficeHours: row.OfficeHours,
	}
}

type courseRow struct {
	Code         string      `db:"code"`
	Title        string      `db:"title"`
	Description  string      `db:"description"`
	Credits      int         `db:"credits"`
	Level        string      `db:"level"`
	InstructorID null.String `db:"instructor_id"`
	Capacity     int         `db:"capacity"`
	StartDate    null.Int64  `db:"start_date"`
	EndDate      null.Int64  `db:"end_date"`
	IsActive     bool        `db:"is_active"`
	CreatedAt    int64       `db:"created_at"`
	UpdatedAt    int64       `db:"updated_at"`
}

func newCourseRow(c catalog.Course) courseRow {
	return courseRow{
		Code:         c.Code,
		Title:        c.Title,
		Description:  c.Description,
		Credits:      c.Credits,
		Level:        c.Level,
		InstructorID: nullString(c.InstructorID),
		Capacity:     c.Capacity,
		StartDate:    nullMillis(c.StartDate),
		EndDate:      nullMillis(c.EndDate),
		IsActive:     c.IsActive,
		CreatedAt:    toMillis(c.CreatedAt),
		UpdatedAt:    toMillis(c.UpdatedAt),
	}
}

func (row courseRow) toCourse(prereqs []string) catalog.Course {
	if prereqs == nil {
		prereqs = []string{}
	}
	return catalog.Course{
		Code:          row.Code,
		Title:         row.Title,
		Description:   row.Description,
		Credits:       row.Credits,
		Level:         row.Level,
		InstructorID:  row.InstructorID.String,
		Capacity:      row.Capacity,
		StartDate:     fromNullMillis(row.StartDate),
		EndDate:       fromNullMillis(row.EndDate),
		IsActive:      row.IsActive,
		Prerequisites: prereqs,
		CreatedAt:     fromMillis(row.CreatedAt),
		UpdatedAt:     fromMillis(row.UpdatedAt),
	}
}

type catalogRepository struct {
	db core.DB
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db core.DB) catalog.Repository {
	return &catalogRepository{db: db}
}

func (repo *catalogRepository) CreateInstructor(ctx context.Context, ins catalog.Instructor) (catalog.Instructor, error) {
	q := repo.db.Rebind(`INSERT INTO instructor (` + instructorColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := repo.db.ExecContext(
		ctx, q,
		ins.ID, nullString(ins.UserID), ins.Name, ins.Bio, ins.Expertise, ins.OfficeHours,
	)
	if err != nil {
		return catalog.Instructor{}, errors.Wrap(err, "inserting instructor")
	}
	return ins, nil
}

func (repo *catalogRepository) GetInstructor(ctx context.Context, id string) (catalog.Instructor, error) {
	var row instructorRow
	q := repo.db.Rebind(`SELECT ` + instructorColumns + ` FROM instructor WHERE id = ?`)
	if err := sqlx.GetContext(ctx, repo.db, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Instructor{}, catalog.ErrInstructorNotFound
		}
		return catalog.Instructor{}, errors.Wrap(err, "finding instructor")
	}
	return row.toInstructor(), nil
}

func (repo *catalogRepository) CreateCourse(ctx context.Context, course catalog.Course) (catalog.Course, error) {
	row := newCourseRow(course)
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`INSERT INTO course (` + courseColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err := tx.ExecContext(
			ctx, q,
			row.Code, row.Title, row.Description, row.Credits, row.Level, row.InstructorID, row.Capacity,
			row.StartDate, row.EndDate, row.IsActive, row.CreatedAt, row.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return catalog.ErrCourseExists
			}
			return errors.Wrap(err, "inserting course")
		}

		q = tx.Rebind(`INSERT INTO course_prerequisite (course_code, prerequisite_code, position) VALUES (?, ?, ?)`)
		for pos, code := range course.Prerequisites {
			if _, err := tx.ExecContext(ctx, q, course.Code, code, pos); err != nil {
				return errors.Wrap(err, "inserting prerequisite")
			}
		}
		return nil
	})
	if err != nil {
		return catalog.Course{}, err
	}
	return row.toCourse(append([]string{}, course.Prerequisites...)), nil
}

func (repo *catalogRepository) UpdateCourse(ctx context.Context, course catalog.Course) (catalog.Course, error) {
	row := newCourseRow(course)
	q := repo.db.Rebind(`
		UPDATE course
		SET title = ?, description = ?, credits = ?, level = ?, instructor_id = ?, capacity = ?,
			start_date = ?, end_date = ?, is_active = ?, updated_at = ?
		WHERE code = ?`)
	res, err := repo.db.ExecContext(
		ctx, q,
		row.Title, row.Description, row.Credits, row.Level, row.InstructorID, row.Capacity,
		row.StartDate, row.EndDate, row.IsActive, row.UpdatedAt,
		row.Code,
	)
	if err != nil {
		return catalog.Course{}, errors.Wrap(err, "updating course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return catalog.Course{}, catalog.ErrNotFound
	}
	return repo.GetCourse(ctx, course.Code)
}

func (repo *catalogRepository) GetCourse(ctx context.Context, code string) (catalog.Course, error) {
	var row courseRow
	q := repo.db.Rebind(`SELECT ` + courseColumns + ` FROM course WHERE code = ?`)
	if err := sqlx.GetContext(ctx, repo.db, &row, q, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Course{}, catalog.ErrNotFound
		}
		return catalog.Course{}, errors.Wrap(err, "finding course")
	}
	prereqs, err := repo.prerequisites(ctx, code)
	if err != nil {
		return catalog.Course{}, err
	}
	return row.toCourse(prereqs[code]), nil
}

// prerequisites returns the prerequisite codes of the courses, keyed by course code, in declared order.
func (repo *catalogRepository) prerequisites(ctx context.Context, codes ...string) (map[string][]string, error) {
	prereqs := make(map[string][]string, len(codes))
	if len(codes) == 0 {
		return prereqs, nil
	}
	q, args, err := in(repo.db, `
		SELECT course_code, prerequisite_code
		FROM course_prerequisite
		WHERE course_code IN (?)
		ORDER BY course_code, position`, codes)
	if err != nil {
		return nil, errors.Wrap(err, "building prerequisites query")
	}

	rows, err := repo.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying prerequisites")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var course, prereq string
		if err := rows.Scan(&course, &prereq); err != nil {
			return nil, errors.Wrap(err, "scanning prerequisite")
		}
		prereqs[course] = append(prereqs[course], prereq)
	}
	return prereqs, errors.Wrap(rows.Err(), "querying prerequisites")
}

func (repo *catalogRepository) GetPrerequisites(ctx context.Context, code string) ([]string, error) {
	if _, err := repo.GetCourse(ctx, code); err != nil {
		return nil, err
	}
	prereqs, err := repo.prerequisites(ctx, code)
	if err != nil {
		return nil, err
	}
	if prereqs[code] == nil {
		return []string{}, nil
	}
	return prereqs[code], nil
}

func (repo *catalogRepository) withPrerequisites(ctx context.Context, rows []courseRow) ([]catalog.Course, error) {
	codes := make([]string, 0, len(rows))
	for _, row := range rows {
		codes = append(codes, row.Code)
	}
	prereqs, err := repo.prerequisites(ctx, codes...)
	if err != nil {
		return nil, err
	}
	courses := make([]catalog.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.toCourse(prereqs[row.Code]))
	}
	return courses, nil
}

func (repo *catalogRepository) QueryCourses(ctx context.Context, filter *catalog.QueryFilter) ([]catalog.Course, error) {
	var conds []string
	var args []interface{}
	if filter != nil {
		if filter.Search != "" {
			conds = append(conds, "(LOWER(code) LIKE ? OR LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
			search := "%" + strings.ToLower(filter.Search) + "%"
			args = append(args, search, search, search)
		}
		if filter.Level != "" {
			conds = append(conds, "level = ?")
			args = append(args, filter.Level)
		}
		if filter.InstructorID != "" {
			conds = append(conds, "instructor_id = ?")
			args = append(args, filter.InstructorID)
		}
		if filter.ActiveOnly {
			conds = append(conds, "is_active = ?")
			args = append(args, true)
		}
	}

	q := "SELECT " + courseColumns + " FROM course"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY " + core.DBOrdering{Field: "code", Ascending: true}.String()

	var rows []courseRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	return repo.withPrerequisites(ctx, rows)
}

func (repo *catalogRepository) FeaturedCourses(ctx context.Context, limit int) ([]catalog.Course, error) {
	q := repo.db.Rebind(`
		SELECT ` + courseColumns + `
		FROM course
		WHERE is_active = ?
		ORDER BY (SELECT COUNT(*) FROM enrollment e WHERE e.course_code = course.code) DESC, code ASC
		LIMIT ?`)

	var rows []courseRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, true, limit); err != nil {
		return nil, errors.Wrap(err, "querying featured courses")
	}
	return repo.withPrerequisites(ctx, rows)
}
