package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/user"
)

// addUser creates a user.User, or updates the password & roles of an existing one.
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin, isStudent bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	var roles []string
	if isAdmin {
		roles = user.AllRoles
	} else if isStudent {
		roles = user.StudentRoles
	}

	for _, id := range []string{uname, email} {
		usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, id)
		if errors.Is(err, user.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if roles != nil {
			usr.Roles = roles
		}
		if usr, err = cli.usrSvc.SetActive(ctx, usr, true); err != nil {
			return err
		}
		if _, err = cli.usrSvc.SetPassword(ctx, usr, pwd); err != nil {
			return err
		}
		cli.logger.Info("admin: user updated", map[string]interface{}{"user_id": usr.ID})
		return nil
	}

	if name == "" {
		name = uname
	}
	if name == "" {
		name = email
	}
	usr, err := cli.usrSvc.Create(ctx, user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	})
	if err != nil {
		return err
	}
	cli.logger.Info("admin: user created", map[string]interface{}{"user_id": usr.ID})
	return nil
}

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	_, err = cli.usrSvc.SetPassword(ctx, usr, pwd)
	return err
}
