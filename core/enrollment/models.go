package enrollment

import (
	"strings"
	"time"
)

// Grade is a final mark recorded when an enrollment is completed.
type Grade string

const (
	GradeA          Grade = "A"
	GradeB          Grade = "B"
	GradeC          Grade = "C"
	GradeD          Grade = "D"
	GradeF          Grade = "F"
	GradeIncomplete Grade = "I"
	GradeWithdrawn  Grade = "W"
	GradeInProgress Grade = "IP"
)

var gradeNames = map[Grade]string{
	GradeA:          "A",
	GradeB:          "B",
	GradeC:          "C",
	GradeD:          "D",
	GradeF:          "F",
	GradeIncomplete: "Incomplete",
	GradeWithdrawn:  "Withdrawn",
	GradeInProgress: "In Progress",
}

// Grades lists the recognized grades in display order.
var Grades = []Grade{GradeA, GradeB, GradeC, GradeD, GradeF, GradeIncomplete, GradeWithdrawn, GradeInProgress}

func (g Grade) Valid() bool {
	_, ok := gradeNames[g]
	return ok
}

func (g Grade) String() string {
	if name, ok := gradeNames[g]; ok {
		return name
	}
	return string(g)
}

// ParseGrade accepts a grade value ("A", "ip") or its name ("Incomplete", "in progress").
func ParseGrade(s string) (Grade, error) {
	s = strings.TrimSpace(s)
	if g := Grade(strings.ToUpper(s)); g.Valid() {
		return g, nil
	}
	for g, name := range gradeNames {
		if strings.EqualFold(name, s) || strings.EqualFold(strings.ReplaceAll(name, " ", "-"), s) {
			return g, nil
		}
	}
	return "", &GradeError{Value: s}
}

type Enrollment struct {
	ID         string `json:"id"`
	StudentID  string `json:"student_id"`
	CourseCode string `json:"course_code"`
	Status     Status `json:"status"`
	// Grade is only set once the enrollment is Completed.
	Grade        Grade     `json:"grade,omitempty"`
	EnrolledAt   time.Time `json:"enrolled_at"`   // UTC, set once
	LastActivity time.Time `json:"last_activity"` // UTC, updated on every mutation
}

// CourseSummary is the slice of catalog data shown next to an enrollment.
type CourseSummary struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

type Record struct {
	Enrollment
	Course CourseSummary `json:"course"`
}

// Listing groups a student's enrollments by status.
type Listing struct {
	Enrolled  []Record `json:"enrolled"`
	Completed []Record `json:"completed"`
	Dropped   []Record `json:"dropped"`
}

func (l Listing) Len() int {
	return len(l.Enrolled) + len(l.Completed) + len(l.Dropped)
}

// Seats summarizes a course's occupancy.
type Seats struct {
	Capacity  int `json:"capacity"`
	Enrolled  int `json:"enrolled"`
	Available int `json:"available"`
}

type QueryFilter struct {
	StudentID  string
	CourseCode string
	Statuses   []Status
}
