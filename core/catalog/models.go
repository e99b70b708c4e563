package catalog

import (
	"time"

	"github.com/trezcool/registrar/core"
)

// Levels
const (
	LevelBeginner     = "BEG"
	LevelIntermediate = "INT"
	LevelAdvanced     = "ADV"
)

var Levels = []Level{
	{Name: "Beginner", Value: LevelBeginner},
	{Name: "Intermediate", Value: LevelIntermediate},
	{Name: "Advanced", Value: LevelAdvanced},
}

type Level struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func IsLevel(val string) bool {
	for _, lvl := range Levels {
		if lvl.Value == val {
			return true
		}
	}
	return false
}

type Instructor struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"` // optional
	Name        string `json:"name"`
	Bio         string `json:"bio"`
	Expertise   string `json:"expertise"`
	OfficeHours string `json:"office_hours"`
}

type Course struct {
	Code         string    `json:"code"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Credits      int       `json:"credits"`
	Level        string    `json:"level"`
	InstructorID string    `json:"instructor_id"` // empty when the course has no instructor
	Capacity     int       `json:"capacity"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	IsActive     bool      `json:"is_active"`
	// Prerequisites holds the prerequisite course codes in their declared order.
	Prerequisites []string  `json:"prerequisites"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

func (c Course) String() string {
	return c.Code + ": " + c.Title
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Code          string    `json:"code" yaml:"code" validate:"required,coursecode"`
	Title         string    `json:"title" yaml:"title" validate:"required,max=200"`
	Description   string    `json:"description" yaml:"description"`
	Credits       int       `json:"credits" yaml:"credits" validate:"gte=0,lte=30"`
	Level         string    `json:"level" yaml:"level" validate:"required,level"`
	InstructorID  string    `json:"instructor_id" yaml:"instructor_id"`
	Capacity      int       `json:"capacity" yaml:"capacity" validate:"gt=0"`
	StartDate     time.Time `json:"start_date" yaml:"start_date"`
	EndDate       time.Time `json:"end_date" yaml:"end_date"`
	Inactive      bool      `json:"inactive" yaml:"inactive"`
	Prerequisites []string  `json:"prerequisites" yaml:"prerequisites" validate:"dive,coursecode"`
}

func (nc *NewCourse) clean() {
	nc.Code = core.CleanCode(nc.Code)
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Level = core.CleanCode(nc.Level)
	nc.InstructorID = core.CleanString(nc.InstructorID)
	if nc.Level == "" {
		nc.Level = LevelBeginner
	}
	for i, code := range nc.Prerequisites {
		nc.Prerequisites[i] = core.CleanCode(code)
	}
}

// NewInstructor contains information needed to create a new Instructor.
type NewInstructor struct {
	UserID      string `json:"user_id" yaml:"user_id"`
	Name        string `json:"name" yaml:"name" validate:"required"`
	Bio         string `json:"bio" yaml:"bio"`
	Expertise   string `json:"expertise" yaml:"expertise" validate:"max=100"`
	OfficeHours string `json:"office_hours" yaml:"office_hours" validate:"max=100"`
}

type QueryFilter struct {
	// Search does a case-insensitive match on one of Course.Code, Course.Title or Course.Description.
	Search       string
	Level        string
	InstructorID string
	ActiveOnly   bool
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Level = core.CleanCode(qf.Level)
	if !IsLevel(qf.Level) {
		qf.Level = "" // unknown levels are ignored
	}
	qf.InstructorID = core.CleanString(qf.InstructorID)
}
