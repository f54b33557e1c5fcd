package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// CreateUserInput is the administrator's request to provision an account.
type CreateUserInput struct {
	UserID   string
	Name     string
	Email    string
	Password string
	RoleID   int64
	UnitID   *int64
}

// UpdateUserInput holds optional changes; Password is plaintext and hashed here.
type UpdateUserInput struct {
	Name     *string
	Email    *string
	Password *string
	RoleID   *int64
	UnitID   *int64
	Active   *bool
}

// MinPasswordLength is enforced on create and on password change.
const MinPasswordLength = 8

// AdminService manages users, roles and units.
type AdminService struct {
	store AdminStore
}

func NewAdminService(store AdminStore) (*AdminService, error) {
	if store == nil {
		return nil, errors.New("auth: admin store is required")
	}
	return &AdminService{store: store}, nil
}

func (s *AdminService) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.RoleID <= 0 {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if len(in.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	return s.store.CreateUser(ctx, NewUser{
		UserID:       in.UserID,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		RoleID:       in.RoleID,
		UnitID:       in.UnitID,
	})
}

func (s *AdminService) ListUsers(ctx context.Context, f UserFilter) ([]User, error) {
	f.UnitName = strings.TrimSpace(f.UnitName)
	return s.store.ListUsers(ctx, f)
}

func (s *AdminService) GetUser(ctx context.Context, id int64) (*User, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, id)
}

func (s *AdminService) UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (*User, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	upd := UserUpdate{UnitID: in.UnitID, Active: in.Active}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		upd.Email = &email
	}
	if in.RoleID != nil {
		if *in.RoleID <= 0 {
			return nil, fmt.Errorf("%w: role_id must be positive", ErrInvalidInput)
		}
		upd.RoleID = in.RoleID
	}
	if in.Password != nil {
		if len(*in.Password) < MinPasswordLength {
			return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
		}
		hash, err := HashPassword(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("auth: hash password: %w", err)
		}
		upd.PasswordHash = &hash
	}
	return s.store.UpdateUser(ctx, id, upd)
}

func (s *AdminService) DeleteUser(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	return s.store.DeleteUser(ctx, id)
}

func (s *AdminService) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *AdminService) CreateUnit(ctx context.Context, name, code string) (*Unit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: unit name is required", ErrInvalidInput)
	}
	return s.store.CreateUnit(ctx, name, strings.ToUpper(strings.TrimSpace(code)))
}

func (s *AdminService) ListUnits(ctx context.Context) ([]Unit, error) {
	return s.store.ListUnits(ctx)
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return nil
}
