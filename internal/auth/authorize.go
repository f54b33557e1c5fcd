package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// RoleRef names a role either by its name or by its numeric id.
type RoleRef struct {
	name  string
	id    int64
	byID  bool
	label string
}

// RoleName refers to a role by name.
func RoleName(name string) RoleRef {
	return RoleRef{name: name, label: name}
}

// RoleID refers to a role by id.
func RoleID(id int64) RoleRef {
	return RoleRef{id: id, byID: true, label: strconv.FormatInt(id, 10)}
}

func (r RoleRef) String() string { return r.label }

func (r RoleRef) matches(c *Claims) bool {
	if r.byID {
		return c.RoleID == r.id
	}
	return c.Role == r.name
}

// HasAnyRole reports whether the claims' role name or role id is in allowed.
// Names and ids may be mixed in one call.
func HasAnyRole(c *Claims, allowed ...RoleRef) bool {
	if c == nil {
		return false
	}
	for _, ref := range allowed {
		if ref.matches(c) {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether at least one required capability is granted.
func HasAnyPermission(c *Claims, required ...string) bool {
	if c == nil {
		return false
	}
	for _, capability := range required {
		if c.Permissions.Has(capability) {
			return true
		}
	}
	return false
}

// AuthorizeRoles checks the identity in ctx against allowed.
func AuthorizeRoles(ctx context.Context, allowed ...RoleRef) (*Claims, error) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, ErrNoIdentity
	}
	if !HasAnyRole(c, allowed...) {
		labels := make([]string, len(allowed))
		for i, ref := range allowed {
			labels[i] = ref.String()
		}
		return c, fmt.Errorf("%w: %s", ErrRoleDenied, strings.Join(labels, ", "))
	}
	return c, nil
}

// AuthorizePermissions checks the identity in ctx against required.
func AuthorizePermissions(ctx context.Context, required ...string) (*Claims, error) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, ErrNoIdentity
	}
	if !HasAnyPermission(c, required...) {
		return c, fmt.Errorf("%w: %s", ErrPermissionDenied, strings.Join(required, ", "))
	}
	return c, nil
}
