package domain

import (
	"strings"
)

// ValueSeparator joins multi-valued federation attributes into a single
// string (Shibboleth convention).
const ValueSeparator = ";"

// Logical profile fields that an AttributeMap can bind to source attributes.
const (
	FieldUsername    = "username"
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldDisplayName = "display_name"
	FieldEmail       = "email"
)

// AttributeGetter reads a single attribute value from the current request.
// An empty string means the attribute is absent; lookups never fail.
type AttributeGetter interface {
	Get(name string) string
}

// AttributeMap binds logical profile fields to the source attribute names
// asserted by the upstream Service Provider. Unmapped fields read as absent.
// This is a core domain model with no external dependencies.
type AttributeMap struct {
	// Username is the source attribute for the account join key (required).
	// Example: "eppn"
	Username string `json:"username" yaml:"username"`

	// FirstName is the source attribute for the given name.
	// Example: "givenName"
	FirstName string `json:"first_name,omitempty" yaml:"first_name,omitempty"`

	// LastName is the source attribute for the surname.
	// Example: "sn"
	LastName string `json:"last_name,omitempty" yaml:"last_name,omitempty"`

	// DisplayName is the source attribute for the display name.
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`

	// Email is the source attribute for the email address.
	// Example: "mail"
	Email string `json:"email,omitempty" yaml:"email,omitempty"`

	// Extra maps additional logical field names to source attributes for
	// forward compatibility. Extra fields are carried through profile
	// reconciliation and are never consulted by role logic.
	Extra map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// SourceFor returns the source attribute name bound to a logical field,
// or "" if the field is unmapped.
func (m AttributeMap) SourceFor(field string) string {
	switch field {
	case FieldUsername:
		return m.Username
	case FieldFirstName:
		return m.FirstName
	case FieldLastName:
		return m.LastName
	case FieldDisplayName:
		return m.DisplayName
	case FieldEmail:
		return m.Email
	}
	return m.Extra[field]
}

// Identity is the per-request view of the authenticated subject, assembled
// from AttributeMap lookups. It is derived, never persisted.
type Identity struct {
	Username    string            `json:"username"`
	FirstName   string            `json:"first_name,omitempty"`
	LastName    string            `json:"last_name,omitempty"`
	DisplayName string            `json:"display_name,omitempty"`
	Email       string            `json:"email,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// ExtractIdentity reads every mapped field out of the attribute source.
// Unmapped or absent attributes yield empty strings.
func ExtractIdentity(src AttributeGetter, m AttributeMap) Identity {
	id := Identity{
		Username:    lookup(src, m.Username),
		FirstName:   lookup(src, m.FirstName),
		LastName:    lookup(src, m.LastName),
		DisplayName: lookup(src, m.DisplayName),
		Email:       lookup(src, m.Email),
	}
	if len(m.Extra) > 0 {
		id.Extra = make(map[string]string, len(m.Extra))
		for field, attr := range m.Extra {
			id.Extra[field] = lookup(src, attr)
		}
	}
	return id
}

func lookup(src AttributeGetter, attr string) string {
	if attr == "" {
		return ""
	}
	return src.Get(attr)
}

// SplitValues splits a semicolon-joined multi-valued attribute into its
// discrete values, dropping empty segments.
func SplitValues(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ValueSeparator)
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			values = append(values, p)
		}
	}
	return values
}

// HasValue reports whether want is one of the discrete values of a
// semicolon-joined attribute value.
func HasValue(raw, want string) bool {
	for _, v := range SplitValues(raw) {
		if v == want {
			return true
		}
	}
	return false
}

// Nicename derives a URL-safe slug from a username, stored as the account's
// nicename profile field. Characters outside [a-z0-9._-] become hyphens and
// runs of hyphens collapse.
func Nicename(username string) string {
	lower := strings.ToLower(username)
	var b strings.Builder
	b.Grow(len(lower))
	lastHyphen := false
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
