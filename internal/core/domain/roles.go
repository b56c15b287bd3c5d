package domain

// RoleRule grants a role when a source attribute contains a required value.
type RoleRule struct {
	// RoleID is the host application's role identifier this rule grants.
	RoleID string `json:"role_id" yaml:"role_id"`

	// Attribute is the source attribute name to inspect.
	// Example: "entitlement", "affiliation"
	Attribute string `json:"header" yaml:"header"`

	// Value must be a member of the attribute's semicolon-joined value set
	// for the rule to fire.
	Value string `json:"value" yaml:"value"`
}

// Enabled reports whether the rule can ever match. Rules with an empty
// attribute or value are skipped during resolution, never failed.
func (r RoleRule) Enabled() bool {
	return r.Attribute != "" && r.Value != ""
}

// RoleMapping is the ordered rule set plus the fallback role used when no
// rule fires. An empty DefaultRole means resolution can fail.
type RoleMapping struct {
	Rules       []RoleRule `json:"role_rules" yaml:"role_rules"`
	DefaultRole string     `json:"default_role" yaml:"default_role"`
}

// RuleFor returns the rule for a role identifier, if one is configured.
func (m RoleMapping) RuleFor(roleID string) (RoleRule, bool) {
	for _, r := range m.Rules {
		if r.RoleID == roleID {
			return r, true
		}
	}
	return RoleRule{}, false
}

// RoleResult is the outcome of role resolution.
type RoleResult struct {
	// Role is the single derived role identifier.
	Role string

	// ByRule is true when an explicit rule matched, false when the default
	// role was used.
	ByRule bool
}

// ResolveRole derives exactly one role for the current request.
//
// The catalog is the host application's role identifiers in descending
// privilege rank. Roles are checked in catalog order; the first rule whose
// required value is a member of the attribute's value set wins. Rules with a
// missing attribute/value pair are skipped. If no rule matches, the default
// role is used; if that is also empty, resolution fails with a no_access
// error.
func ResolveRole(src AttributeGetter, mapping RoleMapping, catalog []string) (RoleResult, error) {
	for _, roleID := range catalog {
		rule, ok := mapping.RuleFor(roleID)
		if !ok || !rule.Enabled() {
			continue
		}
		if HasValue(src.Get(rule.Attribute), rule.Value) {
			return RoleResult{Role: roleID, ByRule: true}, nil
		}
	}
	if mapping.DefaultRole != "" {
		return RoleResult{Role: mapping.DefaultRole}, nil
	}
	return RoleResult{}, NoAccessError()
}
