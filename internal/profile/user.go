package profile

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Canonical keys of a normalized user.
const (
	KeyID           = "id"
	KeyEmail        = "email"
	KeyUsername     = "username"
	KeyName         = "name"
	KeyFullName     = "full_name"
	KeyRole         = "role"
	KeyRoles        = "roles"
	KeyAdminLevel   = "admin_level"
	KeyBalance      = "balance"
	KeyCPF          = "cpf"
	KeyPhoneNumber  = "phone_number"
	KeyAvatarURL    = "avatar_url"
	KeyPixKey       = "pix_key"
	KeyZip          = "address_zip"
	KeyStreet       = "address_street"
	KeyNeighborhood = "address_neighborhood"
	KeyNumber       = "address_number"
	KeyComplement   = "address_complement"
	KeyCity         = "address_city"
	KeyState        = "address_state"
	KeyCountry      = "address_country"
)

// DefaultRole is assigned when the payload names no role at all.
const DefaultRole = "user"

// AddressKeys lists the flattened address fields in display order.
var AddressKeys = []string{
	KeyZip, KeyStreet, KeyNeighborhood, KeyNumber,
	KeyComplement, KeyCity, KeyState, KeyCountry,
}

// User is a normalized user profile. Canonical fields are stored under the Key*
// names; any other key the server sent is carried through untouched.
type User map[string]any

// ID returns the resolved user ID.
func (u User) ID() string { return u.String(KeyID) }

// Email returns the user's email address.
func (u User) Email() string { return u.String(KeyEmail) }

// FullName returns the display name.
func (u User) FullName() string { return u.String(KeyFullName) }

// Role returns the primary role.
func (u User) Role() string { return u.String(KeyRole) }

// AvatarURL returns the avatar image URL.
func (u User) AvatarURL() string { return u.String(KeyAvatarURL) }

// Roles returns every role granted to the user.
func (u User) Roles() []string {
	if u == nil {
		return nil
	}
	return stringList(u[KeyRoles])
}

// HasRole reports whether role is among the user's roles.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles() {
		if r == role {
			return true
		}
	}
	return false
}

// AdminLevel returns the administrative level, 0 for regular users.
func (u User) AdminLevel() int {
	if u == nil {
		return 0
	}
	n, _ := toInt(u[KeyAdminLevel])
	return n
}

// Balance returns the wallet balance shown to the user.
func (u User) Balance() float64 {
	if u == nil {
		return 0
	}
	f, _ := toFloat(u[KeyBalance])
	return f
}

// String returns the value stored under key rendered as a string, or "".
func (u User) String(key string) string {
	if u == nil {
		return ""
	}
	s, _ := toString(u[key])
	return s
}

// Clone returns a shallow copy.
func (u User) Clone() User {
	if u == nil {
		return nil
	}
	out := make(User, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}

func toString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case json.Number:
		return t.String(), true
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool, nil:
		return "", false
	default:
		return "", false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	default:
		return 0, false
	}
}

// stringList accepts []string, []any or a single string and returns the
// non-empty entries in order without duplicates.
func stringList(v any) []string {
	var raw []string
	switch t := v.(type) {
	case []string:
		raw = t
	case []any:
		for _, item := range t {
			if s, ok := toString(item); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = []string{t}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
