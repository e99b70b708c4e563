package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/registrar/core/catalog"
	"github.com/trezcool/registrar/core/user"
)

type (
	seedInstructor struct {
		Ref                   string `yaml:"ref"`
		catalog.NewInstructor `yaml:",inline"`
	}

	seedStudent struct {
		Name     string `yaml:"name"`
		Username string `yaml:"username"`
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	}

	seedCourse struct {
		Instructor        string `yaml:"instructor"` // seedInstructor.Ref
		catalog.NewCourse `yaml:",inline"`
	}

	seedData struct {
		Instructors []seedInstructor `yaml:"instructors"`
		Students    []seedStudent    `yaml:"students"`
		Courses     []seedCourse     `yaml:"courses"`
	}
)

func loadSeed(path string) (seedData, error) {
	var data seedData
	b, err := os.ReadFile(path)
	if err != nil {
		return data, errors.Wrap(err, "reading seed file")
	}
	if err := yaml.Unmarshal(b, &data); err != nil {
		return data, errors.Wrap(err, "parsing seed file")
	}
	return data, nil
}

// seed loads instructors, students & courses from a YAML file.
// Students and courses that already exist are skipped, so a file can be seeded more than once.
// Courses are created in file order: prerequisites must be listed first.
func (cli *commandLine) seed(path string) error {
	data, err := loadSeed(path)
	if err != nil {
		return err
	}
	ctx := context.Background()

	instructors := make(map[string]string, len(data.Instructors)) // ref -> ID
	for _, si := range data.Instructors {
		ins, err := cli.catSvc.CreateInstructor(ctx, si.NewInstructor)
		if err != nil {
			return errors.Wrapf(err, "creating instructor %q", si.Name)
		}
		if si.Ref != "" {
			instructors[si.Ref] = ins.ID
		}
	}

	var students, courses int
	for _, ss := range data.Students {
		_, err := cli.usrSvc.Create(ctx, user.NewUser{
			Name:            ss.Name,
			Username:        ss.Username,
			Email:           ss.Email,
			Password:        ss.Password,
			PasswordConfirm: ss.Password,
			Roles:           user.StudentRoles,
		})
		if errors.Is(err, user.ErrUserExists) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "creating student %q", ss.Username)
		}
		students++
	}

	for _, sc := range data.Courses {
		nc := sc.NewCourse
		if sc.Instructor != "" {
			id, ok := instructors[sc.Instructor]
			if !ok {
				return errors.Errorf("course %q: unknown instructor %q", nc.Code, sc.Instructor)
			}
			nc.InstructorID = id
		}
		_, err := cli.catSvc.CreateCourse(ctx, nc)
		if errors.Is(err, catalog.ErrCourseExists) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "creating course %q", nc.Code)
		}
		courses++
	}

	fmt.Fprintf(cli.out, "Seeded %d instructor(s), %d student(s) and %d course(s).\n", len(data.Instructors), students, courses)
	return nil
}
