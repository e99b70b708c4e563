package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/user"
	"github.com/trezcool/registrar/storage/database"
	sqlxrepos "github.com/trezcool/registrar/storage/database/sqlx"
	"github.com/trezcool/registrar/tests"
)

var usrRepo user.Repository

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo = sqlxrepos.NewUserRepository(db)

	// start CLI
	conf := &core.Config{Env: "TEST", TestMode: true, Database: core.DatabaseConfig{Engine: database.EngineSQLite}}
	cli := newCommandLine(conf, db, enrollment.NewLockArena(), core.NopLogger{})
	out := new(bytes.Buffer)
	cli.out = out
	return cli, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	gooseRunFunc = func(db *sql.DB, engine, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}
	t.Cleanup(func() { gooseRunFunc = database.RunMigration })

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_migrate_embedded(t *testing.T) {
	cli, _ := setup(t)

	// PrepareDB already applied everything
	assert.NoError(t, cli.run([]string{"admin", "migrate", "status"}))
	assert.NoError(t, cli.run([]string{"admin", "migrate", "redo"}))
	assert.NoError(t, cli.run([]string{"admin", "migrate", "up"}))
}

func Test_commandLine_createdb(t *testing.T) {
	cli, _ := setup(t)

	// sqlite databases are created on open
	assert.NoError(t, cli.run([]string{"admin", "createdb"}))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUser() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if !errors.Is(err, tt.wantErr) {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, _ := setup(t)
	readPasswordFunc = func(int) ([]byte, error) { return []byte("Xq7#vLp2!zR"), nil }

	require.NoError(t, cli.run([]string{"admin", "adduser", "-username", "kim", "-email", "kim@test.cd", "-student"}))
	usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Username: "kim"})
	require.NoError(t, err)
	assert.Equal(t, "kim", usr.Name)
	assert.True(t, usr.IsActive)
	assert.True(t, usr.IsStudent())
	assert.False(t, usr.IsAdmin())
	assert.NoError(t, usr.CheckPassword("Xq7#vLp2!zR"))

	// existing user: promoted & password changed
	readPasswordFunc = func(int) ([]byte, error) { return []byte("Wn4$tKe9@pQ"), nil }
	require.NoError(t, cli.run([]string{"admin", "adduser", "-email", "KIM@test.cd", "-admin"}))
	usr, err = usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.True(t, usr.IsAdmin())
	assert.NoError(t, usr.CheckPassword("Wn4$tKe9@pQ"))

	assert.Equal(t, errHelp, cli.run([]string{"admin", "adduser"}))

	// new users go through the password policy
	readPasswordFunc = func(int) ([]byte, error) { return []byte("s3cr3t"), nil }
	err = cli.run([]string{"admin", "adduser", "-username", "lou", "-email", "lou@test.cd"})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "password", vErr.Fields[0].Field)
}

const seedYAML = `
instructors:
  - ref: ada
    name: Ada Lovelace
    expertise: Computing
students:
  - name: Kim
    username: kim
    email: kim@test.cd
    password: "Xq7#vLp2!zR"
  - name: Lou
    username: lou
    email: lou@test.cd
    password: "Xq7#vLp2!zR"
courses:
  - code: CS101
    title: Intro to Programming
    level: BEG
    capacity: 2
    instructor: ada
  - code: CS201
    title: Data Structures
    level: INT
    capacity: 1
    prerequisites: [CS101]
`

func seedFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	return path
}

func Test_commandLine_seed(t *testing.T) {
	cli, out := setup(t)
	path := seedFile(t)

	require.NoError(t, cli.run([]string{"admin", "seed", "-file", path}))
	assert.Contains(t, out.String(), "2 student(s) and 2 course(s)")

	course, err := cli.catSvc.GetCourse(context.Background(), "CS201")
	require.NoError(t, err)
	assert.Equal(t, []string{"CS101"}, course.Prerequisites)
	course, err = cli.catSvc.GetCourse(context.Background(), "CS101")
	require.NoError(t, err)
	assert.NotEmpty(t, course.InstructorID)

	// seeding twice skips existing students & courses
	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "seed", "-file", path}))
	assert.Contains(t, out.String(), "0 student(s) and 0 course(s)")

	assert.Equal(t, errHelp, cli.run([]string{"admin", "seed"}))
	assert.Error(t, cli.run([]string{"admin", "seed", "-file", filepath.Join(t.TempDir(), "nope.yaml")}))

	// weak student passwords abort the seed
	weak := filepath.Join(t.TempDir(), "weak.yaml")
	require.NoError(t, os.WriteFile(weak, []byte(`
students:
  - name: Zed
    username: zed
    email: zed@test.cd
    password: secret
`), 0o600))
	err = cli.run([]string{"admin", "seed", "-file", weak})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	_, err = usrRepo.GetUser(context.Background(), user.GetFilter{Username: "zed"})
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func Test_commandLine_enrollment(t *testing.T) {
	cli, out := setup(t)
	require.NoError(t, cli.run([]string{"admin", "seed", "-file", seedFile(t)}))

	tests := []cliTest{
		{name: "admit: no args", args: []string{"admit"}, wantErr: errHelp},
		{name: "admit: unknown student", args: []string{"admit", "-student", "nobody", "-course", "CS101"}, wantErr: enrollment.ErrStudentNotFound},
		{name: "admit: unknown course", args: []string{"admit", "-student", "kim", "-course", "CS999"}, wantErr: enrollment.ErrCourseNotFound},
		{name: "admit: missing prerequisites", args: []string{"admit", "-student", "kim", "-course", "CS201"}, wantErr: enrollment.ErrPrerequisitesNotMet},
		{name: "admit", args: []string{"admit", "-student", "kim", "-course", "cs101"}},
		{name: "admit: twice", args: []string{"admit", "-student", "kim", "-course", "CS101"}, wantErr: enrollment.ErrAlreadyEnrolled},
		{name: "complete: no grade", args: []string{"complete", "-student", "kim", "-course", "CS101"}, wantErr: errHelp},
		{name: "complete: invalid grade", args: []string{"complete", "-student", "kim", "-course", "CS101", "-grade", "Z"}, wantErr: enrollment.ErrInvalidGrade},
		{name: "complete", args: []string{"complete", "-student", "kim", "-course", "CS101", "-grade", "a"}},
		{name: "admit: prerequisites met", args: []string{"admit", "-student", "kim", "-course", "CS201"}},
		{name: "admit: course full", args: []string{"admit", "-student", "lou", "-course", "CS201"}, wantErr: enrollment.ErrCourseFull},
		{name: "drop: not enrolled", args: []string{"drop", "-student", "lou", "-course", "CS201"}, wantErr: enrollment.ErrNotEnrolled},
		{name: "drop", args: []string{"drop", "-student", "kim", "-course", "CS201"}},
		{name: "drop: twice", args: []string{"drop", "-student", "kim", "-course", "CS201"}, wantErr: enrollment.ErrNotEnrolled},
		{name: "admit: seat freed but prerequisites missing", args: []string{"admit", "-student", "lou", "-course", "CS201"}, wantErr: enrollment.ErrPrerequisitesNotMet},
		{name: "enrollments: no args", args: []string{"enrollments"}, wantErr: errHelp},
		{name: "roster: no args", args: []string{"roster"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			if assert.ErrorIs(t, err, tt.wantErr) && tt.wantErr != errHelp {
				assert.Equal(t, enrollment.Message(errors.Unwrap(err)), err.Error())
			}
		})
	}

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "enrollments", "-student", "kim@test.cd"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "CS101")
	assert.Contains(t, lines[1], "Completed")
	assert.Contains(t, lines[2], "CS201")
	assert.Contains(t, lines[2], "Dropped")

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "enrollments", "-student", "lou"}))
	assert.Equal(t, "No enrollments.\n", out.String())

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "courses"}))
	assert.Contains(t, out.String(), "CS101")
	assert.Contains(t, out.String(), "0/1")

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "admit", "-student", "lou", "-course", "CS101"}))
	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "roster", "-course", "CS101"}))
	assert.Contains(t, out.String(), "lou")
	assert.Contains(t, out.String(), "1/2 seats taken, 1 available.")
}
