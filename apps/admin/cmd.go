package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/catalog"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/user"
	"github.com/trezcool/registrar/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf   *core.Config
	db     *sql.DB
	engine string // database engine
	out    io.Writer
	logger core.Logger

	usrSvc *user.Service
	catSvc *catalog.Service
	enrEng *enrollment.Engine
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  createdb                                                - create the postgres role & database if missing")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                  - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-name NAME] [-admin] [-student]")
	fmt.Fprintln(cli.out, "                                                          - create a user, the password is prompted next")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL                  - reset user's password")
	fmt.Fprintln(cli.out, "  seed -file FILE                                         - load instructors, students & courses from YAML")
	fmt.Fprintln(cli.out, "  courses [-search TEXT] [-level LEVEL] [-all]            - list courses")
	fmt.Fprintln(cli.out, "  admit -student STUDENT -course CODE                     - enroll a student")
	fmt.Fprintln(cli.out, "  drop -student STUDENT -course CODE                      - drop an enrollment")
	fmt.Fprintln(cli.out, "  complete -student STUDENT -course CODE -grade GRADE     - complete an enrollment")
	fmt.Fprintln(cli.out, "  enrollments -student STUDENT                            - list a student's enrollments")
	fmt.Fprintln(cli.out, "  roster -course CODE                                     - list the students enrolled in a course")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's full name (defaults to the username).")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant every role.")
	addUserStudent := addUserCmd.Bool("student", false, "Grant the student role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	seedCmd := flag.NewFlagSet("seed", flag.ContinueOnError)
	seedFile := seedCmd.String("file", "", "Path to the YAML seed file.")

	coursesCmd := flag.NewFlagSet("courses", flag.ContinueOnError)
	coursesSearch := coursesCmd.String("search", "", "Match the course code, title or description.")
	coursesLevel := coursesCmd.String("level", "", "Course level: BEG, INT or ADV.")
	coursesAll := coursesCmd.Bool("all", false, "Include inactive courses.")

	enrollCmd := func(name string, withGrade bool) (*flag.FlagSet, *string, *string, *string) {
		cmd := flag.NewFlagSet(name, flag.ContinueOnError)
		student := cmd.String("student", "", "The student's ID, username or email.")
		course := cmd.String("course", "", "The course code.")
		var grade *string
		if withGrade {
			grade = cmd.String("grade", "", "Final grade: A, B, C, D, F, I, W or IP.")
		}
		return cmd, student, course, grade
	}

	cmd := args[1]
	switch cmd {
	case "createdb":
		return database.CreateIfNotExist(context.Background(), cli.conf)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" && *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, *addUserAdmin, *addUserStudent)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "seed":
		if err := seedCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *seedFile == "" {
			seedCmd.Usage()
			return errHelp
		}
		return cli.seed(*seedFile)

	case "courses":
		if err := coursesCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.listCourses(*coursesSearch, *coursesLevel, *coursesAll)

	case "admit", "drop", "complete":
		fs, student, course, grade := enrollCmd(cmd, cmd == "complete")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *student == "" || *course == "" || (grade != nil && *grade == "") {
			fs.Usage()
			return errHelp
		}
		switch cmd {
		case "admit":
			return cli.admit(*student, *course)
		case "drop":
			return cli.drop(*student, *course)
		default:
			return cli.complete(*student, *course, *grade)
		}

	case "enrollments":
		fs, student, _, _ := enrollCmd(cmd, false)
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *student == "" {
			fs.Usage()
			return errHelp
		}
		return cli.listEnrollments(*student)

	case "roster":
		fs, _, course, _ := enrollCmd(cmd, false)
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *course == "" {
			fs.Usage()
			return errHelp
		}
		return cli.roster(*course)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword(cmd *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}
