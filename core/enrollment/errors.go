package enrollment

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// workflow errors
	ErrAlreadyEnrolled     = errors.New("already enrolled")
	ErrCourseFull          = errors.New("course is full")
	ErrPrerequisitesNotMet = errors.New("prerequisites not met")
	ErrNotEnrolled         = errors.New("not enrolled")
	ErrTerminalState       = errors.New("enrollment is in a terminal state")
	ErrCourseNotFound      = errors.New("course not found")
	ErrStudentNotFound     = errors.New("student not found")
	ErrInvalidGrade        = errors.New("invalid grade")
	ErrInfrastructure      = errors.New("infrastructure error")

	// repository errors
	ErrNotFound = errors.New("enrollment not found")
	ErrExists   = errors.New("an enrollment for this student and course already exists")
)

// AlreadyEnrolledError names the status of the existing enrollment.
type AlreadyEnrolledError struct {
	Status Status
}

func (err *AlreadyEnrolledError) Error() string {
	return fmt.Sprintf("%s (status: %s)", ErrAlreadyEnrolled, err.Status)
}

func (err *AlreadyEnrolledError) Is(target error) bool { return target == ErrAlreadyEnrolled }

// PrerequisitesError carries the missing prerequisite codes in the course's declared order.
type PrerequisitesError struct {
	Missing []string
}

func (err *PrerequisitesError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrPrerequisitesNotMet, strings.Join(err.Missing, ", "))
}

func (err *PrerequisitesError) Is(target error) bool { return target == ErrPrerequisitesNotMet }

// TransitionError rejects a status change the state machine does not allow.
// Leaving Enrolled is the only defined move, so it also matches ErrNotEnrolled.
type TransitionError struct {
	From Status
	To   Status
}

func (err *TransitionError) Error() string {
	if err.From.IsTerminal() {
		return fmt.Sprintf("%s: cannot move a %s enrollment to %s", ErrTerminalState, err.From, err.To)
	}
	return fmt.Sprintf("invalid status transition from %s to %s", err.From, err.To)
}

func (err *TransitionError) Is(target error) bool {
	return target == ErrNotEnrolled || (target == ErrTerminalState && err.From.IsTerminal())
}

type GradeError struct {
	Value string
}

func (err *GradeError) Error() string {
	return fmt.Sprintf("%s %q", ErrInvalidGrade, err.Value)
}

func (err *GradeError) Is(target error) bool { return target == ErrInvalidGrade }

// InfrastructureError wraps a persistence or collaborator failure. It is never retried by the engine.
type InfrastructureError struct {
	Op  string
	Err error
}

func (err *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrInfrastructure, err.Op, err.Err)
}

func (err *InfrastructureError) Unwrap() error { return err.Err }

func (err *InfrastructureError) Is(target error) bool { return target == ErrInfrastructure }

func infraErr(op string, err error) error {
	return &InfrastructureError{Op: op, Err: err}
}

// Message maps an engine error to a distinct human readable message.
func Message(err error) string {
	var (
		alreadyErr *AlreadyEnrolledError
		prereqErr  *PrerequisitesError
		gradeErr   *GradeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &alreadyErr):
		return fmt.Sprintf("You already have an enrollment in this course (%s).", alreadyErr.Status)
	case errors.Is(err, ErrAlreadyEnrolled):
		return "You are already enrolled in this course."
	case errors.Is(err, ErrCourseFull):
		return "Sorry, this course is already full."
	case errors.As(err, &prereqErr):
		return "You need to complete these prerequisites first: " + strings.Join(prereqErr.Missing, ", ")
	case errors.Is(err, ErrTerminalState):
		return "This enrollment has already been dropped or completed and cannot change anymore."
	case errors.Is(err, ErrNotEnrolled):
		return "You are not enrolled in this course."
	case errors.Is(err, ErrCourseNotFound):
		return "This course does not exist or is not open for enrollment."
	case errors.Is(err, ErrStudentNotFound):
		return "No student matches this identifier."
	case errors.As(err, &gradeErr):
		return fmt.Sprintf("%q is not a recognized grade.", gradeErr.Value)
	case errors.Is(err, ErrInvalidGrade):
		return "This is not a recognized grade."
	case errors.Is(err, ErrInfrastructure):
		return "Something went wrong on our side, please try again later."
	default:
		return err.Error()
	}
}
