package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/user"
)

const userColumns = "id, name, username, email, is_active, roles, password_hash, created_at, updated_at"

type userRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	IsActive     bool        `db:"is_active"`
	Roles        string      `db:"roles"`
	PasswordHash string      `db:"password_hash"`
	CreatedAt    int64       `db:"created_at"`
	UpdatedAt    int64       `db:"updated_at"`
}

func newUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     nullString(usr.Username),
		Email:        nullString(usr.Email),
		IsActive:     usr.IsActive,
		Roles:        strings.Join(usr.Roles, ","),
		PasswordHash: string(usr.PasswordHash),
		CreatedAt:    toMillis(usr.CreatedAt),
		UpdatedAt:    toMillis(usr.UpdatedAt),
	}
}

func (row userRow) toUser() user.User {
	usr := user.User{
		ID:        row.ID,
		Name:      row.Name,
		Username:  row.Username.String,
		Email:     row.Email.String,
		IsActive:  row.IsActive,
		CreatedAt: fromMillis(row.CreatedAt),
		UpdatedAt: fromMillis(row.UpdatedAt),
	}
	if row.Roles != "" {
		usr.Roles = strings.Split(row.Roles, ",")
	}
	if row.PasswordHash != "" {
		usr.PasswordHash = []byte(row.PasswordHash)
	}
	return usr
}

type userRepository struct {
	db core.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(
	ctx context.Context,
	username, email string,
	excludedUsers []user.User,
) error {
	var conds []string
	var args []interface{}
	if username != "" {
		conds = append(conds, "username = ?")
		args = append(args, username)
	}
	if email != "" {
		conds = append(conds, "email = ?")
		args = append(args, email)
	}
	if len(conds) == 0 {
		return nil
	}

	q := "SELECT COUNT(*) FROM users WHERE (" + strings.Join(conds, " OR ") + ")"
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, usr := range excludedUsers {
			ids = append(ids, usr.ID)
		}
		q += " AND id NOT IN (?)"
		args = append(args, ids)
	}
	q, args, err := in(repo.db, q, args...)
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}

	var count int
	if err := repo.db.QueryRowxContext(ctx, q, args...).Scan(&count); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if count > 0 {
		return user.ErrUserExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := repo.db.Rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	row := newUserRow(usr)
	_, err := repo.db.ExecContext(
		ctx, q,
		row.ID, row.Name, row.Username, row.Email, row.IsActive,
		row.Roles, row.PasswordHash, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	q := "SELECT " + userColumns + " FROM users WHERE "
	var args []interface{}
	switch {
	case filter.ID != "":
		q += "id = ?"
		args = append(args, filter.ID)
	case filter.Username != "":
		q += "username = ?"
		args = append(args, filter.Username)
	case filter.Email != "":
		q += "email = ?"
		args = append(args, filter.Email)
	case filter.UsernameOrEmail != "":
		q += "(username = ? OR email = ?)"
		args = append(args, filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := sqlx.GetContext(ctx, repo.db, &row, repo.db.Rebind(q+" LIMIT 1"), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "finding user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter) ([]user.User, error) {
	var conds []string
	var args []interface{}
	if filter != nil {
		if filter.Search != "" {
			conds = append(conds, "(LOWER(name) LIKE ? OR LOWER(username) LIKE ? OR LOWER(email) LIKE ?)")
			search := "%" + strings.ToLower(filter.Search) + "%"
			args = append(args, search, search, search)
		}
		if len(filter.Roles) > 0 {
			roleConds := make([]string, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				// roles are stored comma separated; match any role starting with the prefix
				roleConds = append(roleConds, "(',' || roles) LIKE ?")
				args = append(args, "%,"+role+"%")
			}
			conds = append(conds, "("+strings.Join(roleConds, " OR ")+")")
		}
		if filter.IsActive != nil {
			conds = append(conds, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
	}

	q := "SELECT " + userColumns + " FROM users"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY " + core.DBOrdering{Field: "username", Ascending: true}.String()

	var rows []userRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	orig, err := repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
	if err != nil {
		return user.User{}, err
	}
	// only save set fields
	if usr.Roles == nil {
		usr.Roles = orig.Roles
	}
	if usr.PasswordHash == nil {
		usr.PasswordHash = orig.PasswordHash
	}
	usr.CreatedAt = orig.CreatedAt

	row := newUserRow(usr)
	q := repo.db.Rebind(`
		UPDATE users
		SET name = ?, username = ?, email = ?, is_active = ?, roles = ?, password_hash = ?, updated_at = ?
		WHERE id = ?`)
	_, err = repo.db.ExecContext(
		ctx, q,
		row.Name, row.Username, row.Email, row.IsActive, row.Roles, row.PasswordHash, row.UpdatedAt,
		row.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return row.toUser(), nil
}
