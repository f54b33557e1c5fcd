package auth

import (
	"context"
	"time"
)

// Account is the credential row used during login and refresh.
type Account struct {
	ID           int64
	UserID       string
	Email        string
	Name         string
	PasswordHash string
	Active       bool
	RoleID       int64
	Role         string
	UnitName     string
	Permissions  Permissions
}

// Claims projects the account into session claims.
func (a Account) Claims() Claims {
	return Claims{
		SubjectID:   a.ID,
		UserID:      a.UserID,
		Name:        a.Name,
		Role:        a.Role,
		RoleID:      a.RoleID,
		UnitName:    a.UnitName,
		Permissions: a.Permissions,
	}
}

// AccountStore loads accounts for authentication. Implementations return
// ErrNotFound when no row matches.
type AccountStore interface {
	FindAccountByLogin(ctx context.Context, login string) (*Account, error)
	FindAccountByID(ctx context.Context, id int64) (*Account, error)
}

// User is an administered account. The password hash never leaves the store.
type User struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	RoleID    int64     `json:"role_id"`
	Role      string    `json:"role"`
	UnitID    *int64    `json:"unit_id,omitempty"`
	UnitName  string    `json:"unit_name,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role is a named permission set.
type Role struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Permissions Permissions `json:"permissions"`
}

// Unit is an organizational unit that owns risk submissions.
type Unit struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUser carries the fields needed to create a user.
type NewUser struct {
	UserID       string
	Name         string
	Email        string
	PasswordHash string
	RoleID       int64
	UnitID       *int64
}

// UserUpdate carries optional changes to a user; nil fields are left untouched.
type UserUpdate struct {
	Name         *string
	Email        *string
	PasswordHash *string
	RoleID       *int64
	UnitID       *int64
	Active       *bool
}

// UserFilter narrows ListUsers.
type UserFilter struct {
	UnitName string
	RoleID   int64
}

// AdminStore persists users, roles and units.
type AdminStore interface {
	CreateUser(ctx context.Context, u NewUser) (*User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	UpdateUser(ctx context.Context, id int64, u UserUpdate) (*User, error)
	DeleteUser(ctx context.Context, id int64) error
	ListRoles(ctx context.Context) ([]Role, error)
	CreateUnit(ctx context.Context, name, code string) (*Unit, error)
	ListUnits(ctx context.Context) ([]Unit, error)
}
