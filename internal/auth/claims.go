package auth

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Capability keys carried in the permissions claim.
const (
	PermCreate    = "can_create"
	PermRead      = "can_read"
	PermView      = "can_view"
	PermUpdate    = "can_update"
	PermApprove   = "can_approve"
	PermDelete    = "can_delete"
	PermProvision = "can_provision"
)

// Capabilities lists every capability key a role row can grant.
var Capabilities = []string{
	PermCreate,
	PermRead,
	PermView,
	PermUpdate,
	PermApprove,
	PermDelete,
	PermProvision,
}

// Permissions maps a capability key to its canonical boolean grant.
type Permissions map[string]bool

// NormalizePermissions converts loosely typed grants into canonical booleans.
func NormalizePermissions(raw map[string]any) Permissions {
	if len(raw) == 0 {
		return Permissions{}
	}
	out := make(Permissions, len(raw))
	for k, v := range raw {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = Truthy(v)
	}
	return out
}

// Has reports whether the capability is granted.
func (p Permissions) Has(capability string) bool {
	return p[capability]
}

// Granted returns the granted capability keys in sorted order.
func (p Permissions) Granted() []string {
	out := make([]string, 0, len(p))
	for k, v := range p {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Claims is the identity carried by a session token.
type Claims struct {
	SubjectID   int64       `json:"id"`
	UserID      string      `json:"user_id"`
	Name        string      `json:"name"`
	Role        string      `json:"role"`
	RoleID      int64       `json:"role_id"`
	UnitName    string      `json:"unit_name,omitempty"`
	Permissions Permissions `json:"permissions"`
	IssuedAt    time.Time   `json:"issued_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// Truthy normalizes the grant encodings found in role rows and token payloads.
//
// true, integer 1, the strings "1"/"true" (trimmed, any case) and byte
// sequences whose first byte is 1 are true. Byte sequences arrive as []byte
// from the driver, or as a JSON number array or {"type":"Buffer","data":[...]}
// object inside older tokens. Everything else is false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "1" || s == "true"
	case []byte:
		return len(t) > 0 && t[0] == 1
	case []any:
		return len(t) > 0 && isOne(t[0])
	case map[string]any:
		data, ok := t["data"].([]any)
		return ok && len(data) > 0 && isOne(data[0])
	default:
		return isOne(v)
	}
}

func isOne(v any) bool {
	switch n := v.(type) {
	case int:
		return n == 1
	case int8:
		return n == 1
	case int16:
		return n == 1
	case int32:
		return n == 1
	case int64:
		return n == 1
	case uint:
		return n == 1
	case uint8:
		return n == 1
	case uint16:
		return n == 1
	case uint32:
		return n == 1
	case uint64:
		return n == 1
	case float32:
		return n == 1
	case float64:
		return n == 1
	case json.Number:
		f, err := n.Float64()
		return err == nil && f == 1
	default:
		return false
	}
}
