package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/trezcool/registrar/core/catalog"
	"github.com/trezcool/registrar/core/enrollment"
)

const timeLayout = "2006-01-02 15:04"

// engineError shows the human readable message of an engine error while keeping it matchable with errors.Is.
type engineError struct {
	err error
}

func (e engineError) Error() string { return enrollment.Message(e.err) }

func (e engineError) Unwrap() error { return e.err }

func wrapEngineErr(err error) error {
	if err == nil {
		return nil
	}
	return engineError{err: err}
}

func (cli *commandLine) table() *tabwriter.Writer {
	return tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
}

func (cli *commandLine) listCourses(search, level string, all bool) error {
	ctx := context.Background()
	courses, err := cli.catSvc.Search(ctx, &catalog.QueryFilter{
		Search:     search,
		Level:      strings.ToUpper(level),
		ActiveOnly: !all,
	})
	if err != nil {
		return err
	}

	w := cli.table()
	fmt.Fprintln(w, "CODE\tTITLE\tLEVEL\tSEATS\tPREREQUISITES")
	for _, c := range courses {
		seats, err := cli.enrEng.Seats(ctx, c.Code)
		if err != nil {
			return wrapEngineErr(err)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
			c.Code, c.Title, c.Level, seats.Enrolled, seats.Capacity, strings.Join(c.Prerequisites, ","))
	}
	return w.Flush()
}

func (cli *commandLine) admit(student, course string) error {
	e, err := cli.enrEng.Admit(context.Background(), student, course)
	if err != nil {
		return wrapEngineErr(err)
	}
	fmt.Fprintf(cli.out, "Enrolled in %s on %s.\n", e.CourseCode, e.EnrolledAt.Format(timeLayout))
	return nil
}

func (cli *commandLine) drop(student, course string) error {
	if err := cli.enrEng.Drop(context.Background(), student, course); err != nil {
		return wrapEngineErr(err)
	}
	fmt.Fprintln(cli.out, "Enrollment dropped.")
	return nil
}

func (cli *commandLine) complete(student, course, grade string) error {
	g, err := enrollment.ParseGrade(grade)
	if err != nil {
		return wrapEngineErr(err)
	}
	if err := cli.enrEng.Complete(context.Background(), student, course, g); err != nil {
		return wrapEngineErr(err)
	}
	fmt.Fprintf(cli.out, "Enrollment completed with grade %s.\n", g)
	return nil
}

func (cli *commandLine) listEnrollments(student string) error {
	listing, err := cli.enrEng.ListEnrollments(context.Background(), student)
	if err != nil {
		return wrapEngineErr(err)
	}
	if listing.Len() == 0 {
		fmt.Fprintln(cli.out, "No enrollments.")
		return nil
	}

	w := cli.table()
	fmt.Fprintln(w, "STATUS\tCODE\tTITLE\tGRADE\tENROLLED AT")
	groups := []struct {
		status  enrollment.Status
		records []enrollment.Record
	}{
		{enrollment.StatusEnrolled, listing.Enrolled},
		{enrollment.StatusCompleted, listing.Completed},
		{enrollment.StatusDropped, listing.Dropped},
	}
	for _, g := range groups {
		for _, r := range g.records {
			grade := "-"
			if r.Grade != "" {
				grade = r.Grade.String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				g.status, r.Course.Code, r.Course.Title, grade, r.EnrolledAt.Format(timeLayout))
		}
	}
	return w.Flush()
}

func (cli *commandLine) roster(course string) error {
	ctx := context.Background()
	enrollments, err := cli.enrEng.Roster(ctx, course)
	if err != nil {
		return wrapEngineErr(err)
	}
	seats, err := cli.enrEng.Seats(ctx, course)
	if err != nil {
		return wrapEngineErr(err)
	}

	w := cli.table()
	fmt.Fprintln(w, "STUDENT\tUSERNAME\tENROLLED AT")
	for _, e := range enrollments {
		uname := "-"
		if usr, err := cli.usrSvc.GetByID(ctx, e.StudentID); err == nil {
			uname = usr.Username
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.StudentID, uname, e.EnrolledAt.Format(timeLayout))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d/%d seats taken, %d available.\n", seats.Enrolled, seats.Capacity, seats.Available)
	return nil
}
