package dummydb

import (
	"sync"

	"github.com/trezcool/registrar/core/catalog"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/user"
)

type (
	// DB is an in-memory database used by tests and local experiments.
	DB struct {
		user       *userTable
		catalog    *catalogTables
		enrollment *enrollmentTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	catalogTables struct {
		sync.RWMutex
		instructors map[string]*catalog.Instructor
		courses     map[string]*catalog.Course
	}

	enrollmentTable struct {
		sync.RWMutex
		table map[string]*enrollment.Enrollment // keyed by enrollmentKey
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		catalog: &catalogTables{
			instructors: make(map[string]*catalog.Instructor),
			courses:     make(map[string]*catalog.Course),
		},
		enrollment: &enrollmentTable{table: make(map[string]*enrollment.Enrollment)},
	}
	return db, nil
}

func enrollmentKey(studentID, courseCode string) string {
	return studentID + "|" + courseCode
}
