package user

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

var (
	// errors
	ErrNotFound   = errors.New("user not found")
	ErrUserExists = errors.New("a user with this username or email already exists")
	ErrNotStudent = errors.New("user is not an active student")
)

type (
	Repository interface {
		// CheckUsernameUniqueness returns ErrUserExists if another user (not in excludedUsers) has the username or email.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo       Repository
		validate   *validator.Validate
		translator ut.Translator
	}
)

func NewService(repo Repository, validate *validator.Validate, translator ut.Translator) *Service {
	InitValidators(validate, translator)
	return &Service{repo: repo, validate: validate, translator: translator}
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	nu.clean()
	if err := svc.validate.Struct(nu); err != nil {
		return User{}, core.TranslateValidationErrors(err, svc.translator)
	}
	if err := svc.repo.CheckUsernameUniqueness(ctx, nu.Username, nu.Email, nil); err != nil {
		if errors.Is(err, ErrUserExists) {
			return User{}, core.NewValidationError(err, core.FieldError{Field: "username", Error: err.Error()})
		}
		return User{}, errors.Wrap(err, "checking user uniqueness")
	}

	now := time.Now().UTC()
	usr := User{
		ID:        uuid.New().String(),
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]User, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryUsers(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	id = core.CleanString(id)
	if id == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	if uname == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: uname})
}

// ResolveStudent resolves an opaque student identifier (user ID, username or email) to an active student.
// It returns ErrNotFound when no user matches and ErrNotStudent when the user cannot act as a student.
func (svc *Service) ResolveStudent(ctx context.Context, id string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		usr, err = svc.GetByUsernameOrEmail(ctx, id)
	}
	if err != nil {
		return User{}, err
	}
	if !usr.IsActive || !usr.IsStudent() {
		return User{}, ErrNotStudent
	}
	return usr, nil
}

func (svc *Service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetActive(ctx context.Context, usr User, active bool) (User, error) {
	usr.IsActive = active
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}
