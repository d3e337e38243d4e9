package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotObject is returned by Parse for JSON that is not an object.
var ErrNotObject = errors.New("user payload is not a JSON object")

// A field rule resolves one canonical key from an ordered list of candidate
// locations in the raw payload. Candidates are dotted paths into nested
// objects; the first candidate holding a usable value wins.
type fieldRule struct {
	key        string
	candidates []string
}

// stringRules is the resolution table for every plain string field. Flat
// fields always come before their nested personalData equivalents.
var stringRules = []fieldRule{
	{KeyID, []string{"id", "userId", "user_id", "_id", "uid", "sub", "email"}},
	{KeyEmail, []string{"email", "emailAddress", "email_address", "personalData.email"}},
	{KeyUsername, []string{"username", "userName", "user_name", "nickname"}},
	{KeyCPF, []string{"cpf", "personalData.cpf", "personal_data.cpf", "document"}},
	{KeyPhoneNumber, []string{
		"phone_number", "phoneNumber", "phone",
		"personalData.phoneNumber", "personalData.phone", "personal_data.phone_number",
	}},
	{KeyAvatarURL, []string{"avatar_url", "avatarUrl", "avatar", "picture", "photoURL"}},
	{KeyPixKey, []string{
		"pix_key", "pixKey",
		"personalData.bankAccount.pixKey", "personal_data.bank_account.pix_key",
	}},
	{KeyZip, addressCandidates(KeyZip, "zipCode", "zip_code", "zip", "cep")},
	{KeyStreet, addressCandidates(KeyStreet, "street")},
	{KeyNeighborhood, addressCandidates(KeyNeighborhood, "neighborhood")},
	{KeyNumber, addressCandidates(KeyNumber, "number")},
	{KeyComplement, addressCandidates(KeyComplement, "complement")},
	{KeyCity, addressCandidates(KeyCity, "city")},
	{KeyState, addressCandidates(KeyState, "state")},
	{KeyCountry, addressCandidates(KeyCountry, "country")},
}

var (
	fullNameCandidates   = []string{"full_name", "fullName", "name", "displayName", "personalData.fullName"}
	firstNameCandidates  = []string{"first_name", "firstName", "personalData.firstName"}
	lastNameCandidates   = []string{"last_name", "lastName", "personalData.lastName"}
	roleCandidates       = []string{"role", "userRole"}
	adminLevelCandidates = []string{"admin_level", "adminLevel"}
	balanceCandidates    = []string{"balance", "walletBalance", "wallet_balance", "wallet.balance"}
)

func addressCandidates(flat string, nested ...string) []string {
	out := []string{flat}
	for _, root := range []string{"personalData.address.", "personal_data.address."} {
		for _, n := range nested {
			out = append(out, root+n)
		}
	}
	return out
}

// Normalize maps a raw server user payload into a User. It returns nil when raw
// is nil or not an object. Normalize(Normalize(x)) equals Normalize(x).
func Normalize(raw any) User {
	obj := asObject(raw)
	if obj == nil {
		return nil
	}

	u := make(User, len(obj)+len(stringRules)+6)
	for k, v := range obj {
		u[k] = v
	}

	for _, rule := range stringRules {
		if s, ok := firstString(obj, rule.candidates); ok {
			u[rule.key] = s
		} else {
			delete(u, rule.key)
		}
	}

	if name, ok := resolveFullName(obj); ok {
		u[KeyName] = name
		u[KeyFullName] = name
	} else {
		delete(u, KeyName)
		delete(u, KeyFullName)
	}

	roles := stringList(obj[KeyRoles])
	role := ""
	if len(roles) > 0 {
		role = roles[0]
	} else if s, ok := firstString(obj, roleCandidates); ok {
		role = s
	}
	if role == "" {
		role = DefaultRole
	}
	if len(roles) == 0 {
		roles = []string{role}
	}
	u[KeyRole] = role
	u[KeyRoles] = roles

	adminLevel := 0
	for _, c := range adminLevelCandidates {
		if n, ok := toInt(lookup(obj, c)); ok {
			adminLevel = n
			break
		}
	}
	u[KeyAdminLevel] = adminLevel

	balance := 0.0
	for _, c := range balanceCandidates {
		if f, ok := toFloat(lookup(obj, c)); ok {
			balance = f
			break
		}
	}
	u[KeyBalance] = balance

	return u
}

// Merge returns base overlaid with incoming. When either side is nil, incoming
// is returned as is.
func Merge(base, incoming User) User {
	if base == nil || incoming == nil {
		return incoming
	}
	out := base.Clone()
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

// MergeResponse normalizes a partial user payload and overlays it on base.
// Role, roles, admin level and balance are filled with defaults by Normalize;
// here they only override base when raw actually carries them. It returns nil
// when raw is not an object.
func MergeResponse(base User, raw any) User {
	obj := Object(raw)
	incoming := Normalize(obj)
	if incoming == nil || base == nil {
		return incoming
	}
	out := base.Clone()
	for k, v := range incoming {
		if isDefaulted(k) && !carries(obj, k) {
			if _, ok := base[k]; ok {
				continue
			}
		}
		out[k] = v
	}
	return out
}

// Object returns raw as a plain object without normalizing it. JSON input is
// decoded; anything that is not an object yields nil.
func Object(raw any) map[string]any {
	switch t := raw.(type) {
	case json.RawMessage:
		return decodeObject(t)
	case []byte:
		return decodeObject(t)
	default:
		return asMap(raw)
	}
}

func decodeObject(data []byte) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	return obj
}

func isDefaulted(key string) bool {
	switch key {
	case KeyRole, KeyRoles, KeyAdminLevel, KeyBalance:
		return true
	}
	return false
}

// carries reports whether obj supplies a real value for a defaulted key.
func carries(obj map[string]any, key string) bool {
	switch key {
	case KeyRole, KeyRoles:
		if len(stringList(obj[KeyRoles])) > 0 {
			return true
		}
		s, ok := firstString(obj, roleCandidates)
		return ok && s != ""
	case KeyAdminLevel:
		for _, c := range adminLevelCandidates {
			if _, ok := toInt(lookup(obj, c)); ok {
				return true
			}
		}
	case KeyBalance:
		for _, c := range balanceCandidates {
			if _, ok := toFloat(lookup(obj, c)); ok {
				return true
			}
		}
	}
	return false
}

// Parse decodes a JSON object and normalizes it.
func Parse(data []byte) (User, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if obj == nil {
		return nil, ErrNotObject
	}
	return Normalize(obj), nil
}

func resolveFullName(obj map[string]any) (string, bool) {
	if s, ok := firstString(obj, fullNameCandidates); ok {
		return s, true
	}
	first, _ := firstString(obj, firstNameCandidates)
	last, _ := firstString(obj, lastNameCandidates)
	name := strings.TrimSpace(first + " " + last)
	return name, name != ""
}

func firstString(obj map[string]any, candidates []string) (string, bool) {
	for _, c := range candidates {
		if s, ok := toString(lookup(obj, c)); ok {
			return s, true
		}
	}
	return "", false
}

// lookup walks a dotted path through nested objects.
func lookup(obj map[string]any, path string) any {
	var cur any = obj
	for _, part := range strings.Split(path, ".") {
		m := asMap(cur)
		if m == nil {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func asMap(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case User:
		return t
	default:
		return nil
	}
}

func asObject(raw any) map[string]any {
	switch t := raw.(type) {
	case nil:
		return nil
	case json.RawMessage:
		u, err := Parse(t)
		if err != nil {
			return nil
		}
		return u
	case []byte:
		u, err := Parse(t)
		if err != nil {
			return nil
		}
		return u
	default:
		return asMap(raw)
	}
}
