package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestTruthy(t *testing.T) {
	truthy := []any{
		true,
		1,
		int64(1),
		uint8(1),
		1.0,
		json.Number("1"),
		"1",
		"true",
		"True ",
		" TRUE",
		[]byte{1},
		[]byte{1, 0, 0},
		[]any{float64(1)},
		map[string]any{"type": "Buffer", "data": []any{json.Number("1")}},
	}
	for _, v := range truthy {
		if !Truthy(v) {
			t.Fatalf("expected %#v to be truthy", v)
		}
	}

	falsy := []any{
		nil,
		false,
		0,
		2,
		-1,
		0.5,
		json.Number("0"),
		"0",
		"",
		"yes",
		"false",
		[]byte{},
		[]byte{0},
		[]byte{2},
		[]any{},
		[]any{"1"},
		map[string]any{"data": []any{}},
		map[string]any{"type": "Buffer"},
		struct{}{},
	}
	for _, v := range falsy {
		if Truthy(v) {
			t.Fatalf("expected %#v to be falsy", v)
		}
	}
}

func TestHasAnyRoleBranches(t *testing.T) {
	admin := &Claims{Role: "Administrator", RoleID: 1}
	staff := &Claims{Role: "Staff", RoleID: 2}
	renamed := &Claims{Role: "Admin Pusat", RoleID: 1}

	cases := []struct {
		name    string
		claims  *Claims
		allowed []RoleRef
		want    bool
	}{
		{"name match", admin, []RoleRef{RoleName("Administrator")}, true},
		{"name miss", staff, []RoleRef{RoleName("Administrator")}, false},
		{"id match", renamed, []RoleRef{RoleID(1)}, true},
		{"id miss", staff, []RoleRef{RoleID(1)}, false},
		{"mixed via id", renamed, []RoleRef{RoleName("Administrator"), RoleID(1)}, true},
		{"mixed via name", &Claims{Role: "Administrator", RoleID: 9}, []RoleRef{RoleName("Administrator"), RoleID(1)}, true},
		{"mixed miss", staff, []RoleRef{RoleName("Administrator"), RoleID(1)}, false},
		{"name is not an id", &Claims{Role: "1", RoleID: 5}, []RoleRef{RoleID(1)}, false},
		{"empty allowed", admin, nil, false},
		{"nil claims", nil, []RoleRef{RoleName("Administrator"), RoleID(1)}, false},
	}
	for _, tc := range cases {
		if got := HasAnyRole(tc.claims, tc.allowed...); got != tc.want {
			t.Fatalf("%s: HasAnyRole = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestHasAnyPermission(t *testing.T) {
	c := &Claims{Permissions: NormalizePermissions(map[string]any{
		PermRead:   "1",
		PermCreate: 0,
		PermDelete: []byte{0},
		PermUpdate: []byte{1},
	})}
	if !HasAnyPermission(c, PermCreate, PermRead) {
		t.Fatal("expected can_read to satisfy the check")
	}
	if !HasAnyPermission(c, PermUpdate) {
		t.Fatal("expected byte-encoded can_update to be granted")
	}
	if HasAnyPermission(c, PermCreate, PermDelete, PermApprove) {
		t.Fatal("no granted permission in set")
	}
	if HasAnyPermission(c) {
		t.Fatal("empty requirement must deny")
	}
	if HasAnyPermission(nil, PermRead) {
		t.Fatal("nil claims must deny")
	}
}

func TestAuthorizeWithoutIdentity(t *testing.T) {
	ctx := context.Background()
	if _, err := AuthorizeRoles(ctx, RoleName("Administrator")); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	if _, err := AuthorizePermissions(ctx, PermRead); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}

func TestAuthorizeDenialsListRequirements(t *testing.T) {
	ctx := ContextWithClaims(context.Background(), Claims{Role: "Staff", RoleID: 2, Permissions: Permissions{PermRead: true}})

	_, err := AuthorizeRoles(ctx, RoleName("Administrator"), RoleID(1))
	if !errors.Is(err, ErrRoleDenied) {
		t.Fatalf("expected ErrRoleDenied, got %v", err)
	}
	if !strings.Contains(err.Error(), "Administrator, 1") {
		t.Fatalf("denial should list allowed roles: %v", err)
	}

	_, err = AuthorizePermissions(ctx, PermApprove, PermDelete)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if !strings.Contains(err.Error(), "can_approve, can_delete") {
		t.Fatalf("denial should list required permissions: %v", err)
	}

	c, err := AuthorizePermissions(ctx, PermApprove, PermRead)
	if err != nil || c.RoleID != 2 {
		t.Fatalf("expected allow, got %v %+v", err, c)
	}
}

func TestPermissionsGranted(t *testing.T) {
	p := Permissions{PermView: true, PermCreate: true, PermDelete: false}
	got := strings.Join(p.Granted(), ",")
	if got != "can_create,can_view" {
		t.Fatalf("granted = %s", got)
	}
}
