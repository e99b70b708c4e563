package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
)

const enrollmentColumns = "id, student_id, course_code, status, grade, enrolled_at, last_activity"

type enrollmentRow struct {
	ID           string      `db:"id"`
	StudentID    string      `db:"student_id"`
	CourseCode   string      `db:"course_code"`
	Status       string      `db:"status"`
	Grade        null.String `db:"grade"`
	EnrolledAt   int64       `db:"enrolled_at"`
	LastActivity int64       `db:"last_activity"`
}

func newEnrollmentRow(e enrollment.Enrollment) enrollmentRow {
	return enrollmentRow{
		ID:           e.ID,
		StudentID:    e.StudentID,
		CourseCode:   e.CourseCode,
		Status:       string(e.Status),
		Grade:        nullString(string(e.Grade)),
		EnrolledAt:   toMillis(e.EnrolledAt),
		LastActivity: toMillis(e.LastActivity),
	}
}

func (row enrollmentRow) toEnrollment() enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:           row.ID,
		StudentID:    row.StudentID,
		CourseCode:   row.CourseCode,
		Status:       enrollment.Status(row.Status),
		Grade:        enrollment.Grade(row.Grade.String),
		EnrolledAt:   fromMillis(row.EnrolledAt),
		LastActivity: fromMillis(row.LastActivity),
	}
}

type enrollmentRepository struct {
	db core.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db core.DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func findEnrollment(ctx context.Context, db core.DBExecutor, studentID, courseCode string) (enrollment.Enrollment, error) {
	var row enrollmentRow
	q := db.Rebind(`SELECT ` + enrollmentColumns + ` FROM enrollment WHERE student_id = ? AND course_code = ?`)
	if err := sqlx.GetContext(ctx, db, &row, q, studentID, courseCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return enrollment.Enrollment{}, enrollment.ErrNotFound
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "finding enrollment")
	}
	return row.toEnrollment(), nil
}

func (repo *enrollmentRepository) FindEnrollment(
	ctx context.Context,
	studentID, courseCode string,
) (enrollment.Enrollment, error) {
	return findEnrollment(ctx, repo.db, studentID, courseCode)
}

func (repo *enrollmentRepository) CountEnrolled(ctx context.Context, courseCode string) (int, error) {
	var count int
	q := repo.db.Rebind(`SELECT COUNT(*) FROM enrollment WHERE course_code = ? AND status = ?`)
	if err := repo.db.QueryRowxContext(ctx, q, courseCode, string(enrollment.StatusEnrolled)).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "counting enrolled students")
	}
	return count, nil
}

// CreateEnrollment inserts e with a single conditional statement so the seat count and the insert cannot interleave
// with another writer. On postgres the course row is locked for the rest of the transaction; SQLite transactions take
// the database write lock upfront.
func (repo *enrollmentRepository) CreateEnrollment(
	ctx context.Context,
	e enrollment.Enrollment,
	capacity int,
) (enrollment.Enrollment, error) {
	row := newEnrollmentRow(e)
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if isPostgres(tx) {
			var code string
			q := tx.Rebind(`SELECT code FROM course WHERE code = ? FOR UPDATE`)
			if err := tx.QueryRowxContext(ctx, q, row.CourseCode).Scan(&code); err != nil {
				return errors.Wrap(err, "locking course")
			}
		}

		if _, err := findEnrollment(ctx, tx, row.StudentID, row.CourseCode); err == nil {
			return enrollment.ErrExists
		} else if !errors.Is(err, enrollment.ErrNotFound) {
			return err
		}

		q := tx.Rebind(`
			INSERT INTO enrollment (` + enrollmentColumns + `)
			SELECT ?, ?, ?, ?, CAST(? AS TEXT), CAST(? AS BIGINT), CAST(? AS BIGINT)
			WHERE (SELECT COUNT(*) FROM enrollment WHERE course_code = ? AND status = ?) < ?`)
		res, err := tx.ExecContext(
			ctx, q,
			row.ID, row.StudentID, row.CourseCode, row.Status, row.Grade, row.EnrolledAt, row.LastActivity,
			row.CourseCode, string(enrollment.StatusEnrolled), capacity,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return enrollment.ErrExists
			}
			return errors.Wrap(err, "inserting enrollment")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "inserting enrollment")
		}
		if n == 0 {
			return enrollment.ErrCourseFull
		}
		return nil
	})
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	return row.toEnrollment(), nil
}

func (repo *enrollmentRepository) UpdateEnrollment(
	ctx context.Context,
	e enrollment.Enrollment,
	from enrollment.Status,
) (enrollment.Enrollment, error) {
	row := newEnrollmentRow(e)
	q := repo.db.Rebind(`
		UPDATE enrollment
		SET status = ?, grade = ?, last_activity = ?
		WHERE student_id = ? AND course_code = ? AND status = ?`)
	res, err := repo.db.ExecContext(
		ctx, q,
		row.Status, row.Grade, row.LastActivity,
		row.StudentID, row.CourseCode, string(from),
	)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n == 0 {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	return findEnrollment(ctx, repo.db, row.StudentID, row.CourseCode)
}

func (repo *enrollmentRepository) QueryEnrollments(
	ctx context.Context,
	filter enrollment.QueryFilter,
) ([]enrollment.Enrollment, error) {
	var conds []string
	var args []interface{}
	if filter.StudentID != "" {
		conds = append(conds, "student_id = ?")
		args = append(args, filter.StudentID)
	}
	if filter.CourseCode != "" {
		conds = append(conds, "course_code = ?")
		args = append(args, filter.CourseCode)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		conds = append(conds, "status IN (?)")
		args = append(args, statuses)
	}

	q := "SELECT " + enrollmentColumns + " FROM enrollment"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY " + core.DBOrdering{Field: "enrolled_at"}.String() + ", id ASC"
	q, args, err := in(repo.db, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building enrollments query")
	}

	var rows []enrollmentRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrollments := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrollments = append(enrollments, row.toEnrollment())
	}
	return enrollments, nil
}
