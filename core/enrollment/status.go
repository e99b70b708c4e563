package enrollment

// Status of an Enrollment.
type Status string

const (
	StatusEnrolled  Status = "ENR"
	StatusDropped   Status = "DRP"
	StatusCompleted Status = "CMP"
)

var statusNames = map[Status]string{
	StatusEnrolled:  "Enrolled",
	StatusDropped:   "Dropped",
	StatusCompleted: "Completed",
}

// transitions lists the statuses reachable from each status.
// Dropped and Completed are terminal.
var transitions = map[Status][]Status{
	StatusEnrolled:  {StatusDropped, StatusCompleted},
	StatusDropped:   {},
	StatusCompleted: {},
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return string(s)
}

func (s Status) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether an enrollment may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition returns a *TransitionError when moving from `from` to `to` is not allowed.
func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
