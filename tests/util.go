package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/catalog"
	"github.com/trezcool/registrar/core/user"
	"github.com/trezcool/registrar/storage/database"
)

// PrepareDB opens a migrated SQLite database living in the test's temp dir.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := &core.Config{
		Env:      "TEST",
		TestMode: true,
		Database: core.DatabaseConfig{
			Engine: database.EngineSQLite,
			Path:   filepath.Join(t.TempDir(), "registrar_test.db"),
		},
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("database.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.Ping(context.Background(), db); err != nil {
		t.Fatalf("database.Ping() failed: %v", err)
	}
	if err := database.Migrate(db, conf.Database.Engine); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateStudent creates an active student named after its username.
func CreateStudent(t *testing.T, repo user.Repository, uname string) user.User {
	t.Helper()
	return CreateUser(t, repo, uname, uname, uname+"@test.cd", "", []string{user.RoleStudent}, true)
}

// CreateCourse stores an active course straight through the repository.
func CreateCourse(t *testing.T, repo catalog.Repository, code string, capacity int, prereqs ...string) catalog.Course {
	t.Helper()

	now := time.Now().UTC()
	if prereqs == nil {
		prereqs = []string{}
	}
	course, err := repo.CreateCourse(context.Background(), catalog.Course{
		Code:          code,
		Title:         "Course " + code,
		Level:         catalog.LevelBeginner,
		Capacity:      capacity,
		IsActive:      true,
		Prerequisites: prereqs,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return course
}
