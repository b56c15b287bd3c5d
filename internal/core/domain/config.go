package domain

// Default source attributes and endpoints, matching common Shibboleth SP
// deployments.
const (
	DefaultLoginURL  = "/Shibboleth.sso/Login"
	DefaultLogoutURL = "/Shibboleth.sso/Logout"

	DefaultSessionAttribute = "Shib-Session-Id"
	DefaultIdPAttribute     = "Shib-Identity-Provider"
)

// SyncPolicy controls which pre-existing account state is overwritten on
// login. It is read fresh from the configuration store on every resolution
// and never cached across requests.
type SyncPolicy struct {
	// UpdateProfile overwrites stored profile fields from federation data
	// on every login of an existing account.
	UpdateProfile bool

	// UpdateRole reassigns the derived role on every login of an existing
	// account.
	UpdateRole bool
}

// Config is the process-wide configuration, loaded once per request into an
// immutable snapshot passed through the resolution call chain.
type Config struct {
	// LoginURL is the federation session-initiator endpoint.
	LoginURL string `json:"login_url" yaml:"login_url"`

	// LogoutURL is the federation logout endpoint. Local logout always
	// redirects here so the federation session terminates too.
	LogoutURL string `json:"logout_url" yaml:"logout_url"`

	// AppLoginURL is the host application's login URL, round-tripped through
	// the federation login redirect as its target.
	AppLoginURL string `json:"app_login_url" yaml:"app_login_url"`

	// HeaderMap binds logical profile fields to source attribute names.
	HeaderMap AttributeMap `json:"header_map" yaml:"header_map"`

	// RoleRules grant roles from attribute/value pairs. Evaluation order is
	// the RoleCatalog rank order, not slice order.
	RoleRules []RoleRule `json:"role_rules" yaml:"role_rules"`

	// DefaultRole is assigned when no rule matches. Empty means users
	// without a matching rule are denied.
	DefaultRole string `json:"default_role" yaml:"default_role"`

	// RoleCatalog is the host application's role identifiers in descending
	// privilege rank. It fixes rule evaluation order.
	RoleCatalog []string `json:"role_catalog" yaml:"role_catalog"`

	// SyncProfileOnLogin overwrites stored profile fields from federation
	// data on each login of an existing account.
	SyncProfileOnLogin bool `json:"sync_profile_on_login" yaml:"sync_profile_on_login"`

	// SyncRoleOnLogin reassigns the derived role on each login of an
	// existing account.
	SyncRoleOnLogin bool `json:"sync_role_on_login" yaml:"sync_role_on_login"`

	// AdoptExisting allows a pre-existing, locally-managed account with a
	// colliding username to be adopted and kept in sync with federation
	// data. When false such logins fail with invalid_input.
	AdoptExisting bool `json:"adopt_existing" yaml:"adopt_existing"`

	// SkipAbsentAttributes leaves a stored profile field untouched when the
	// federation asserts nothing for it, instead of wiping it with an empty
	// string.
	SkipAbsentAttributes bool `json:"skip_absent_attributes" yaml:"skip_absent_attributes"`

	// SessionAttribute is the attribute evidencing a federation session.
	SessionAttribute string `json:"session_attribute" yaml:"session_attribute"`

	// IdPAttribute is the federation-issuer attribute; its presence also
	// counts as session evidence.
	IdPAttribute string `json:"idp_attribute" yaml:"idp_attribute"`

	// Debug includes a raw attribute dump in provisioning-failure
	// diagnostics. Never enable in normal operation.
	Debug bool `json:"debug" yaml:"debug"`
}

// SetDefaults fills in default values for unset fields. The attribute map
// and role catalog defaults mirror a typical institutional deployment.
func (c *Config) SetDefaults() {
	if c.LoginURL == "" {
		c.LoginURL = DefaultLoginURL
	}
	if c.LogoutURL == "" {
		c.LogoutURL = DefaultLogoutURL
	}
	if c.AppLoginURL == "" {
		c.AppLoginURL = "/login"
	}
	if c.HeaderMap.Username == "" && c.HeaderMap.FirstName == "" && c.HeaderMap.LastName == "" &&
		c.HeaderMap.DisplayName == "" && c.HeaderMap.Email == "" && len(c.HeaderMap.Extra) == 0 {
		c.HeaderMap = AttributeMap{
			Username:    "eppn",
			FirstName:   "givenName",
			LastName:    "sn",
			DisplayName: "displayName",
			Email:       "mail",
		}
	}
	if len(c.RoleCatalog) == 0 {
		c.RoleCatalog = []string{"administrator", "editor", "author", "contributor", "subscriber"}
	}
	if c.SessionAttribute == "" {
		c.SessionAttribute = DefaultSessionAttribute
	}
	if c.IdPAttribute == "" {
		c.IdPAttribute = DefaultIdPAttribute
	}
}

// Mapping assembles the role mapping evaluated by ResolveRole.
func (c Config) Mapping() RoleMapping {
	return RoleMapping{Rules: c.RoleRules, DefaultRole: c.DefaultRole}
}

// Sync returns the sync policy for this snapshot.
func (c Config) Sync() SyncPolicy {
	return SyncPolicy{UpdateProfile: c.SyncProfileOnLogin, UpdateRole: c.SyncRoleOnLogin}
}

// Validate checks the configuration as a unit. A failed validation means the
// configuration must not be applied at all.
func (c Config) Validate() error {
	if c.HeaderMap.Username == "" {
		return ValidationError("header_map.username must be mapped")
	}
	known := make(map[string]bool, len(c.RoleCatalog))
	for _, role := range c.RoleCatalog {
		if role == "" {
			return ValidationError("role_catalog entries must be non-empty")
		}
		if known[role] {
			return ValidationError("role_catalog lists role %q twice", role)
		}
		known[role] = true
	}
	if c.DefaultRole != "" && !known[c.DefaultRole] {
		return ValidationError("default_role %q is not in the role catalog", c.DefaultRole)
	}
	seen := make(map[string]bool, len(c.RoleRules))
	for _, rule := range c.RoleRules {
		if rule.RoleID == "" {
			return ValidationError("role rules must name a role_id")
		}
		if !known[rule.RoleID] {
			return ValidationError("role rule references unknown role %q", rule.RoleID)
		}
		if seen[rule.RoleID] {
			return ValidationError("duplicate role rule for role %q", rule.RoleID)
		}
		seen[rule.RoleID] = true
	}
	return nil
}

// Clone returns a deep copy so per-request snapshots cannot alias stored
// configuration.
func (c Config) Clone() Config {
	out := c
	if c.HeaderMap.Extra != nil {
		out.HeaderMap.Extra = make(map[string]string, len(c.HeaderMap.Extra))
		for k, v := range c.HeaderMap.Extra {
			out.HeaderMap.Extra[k] = v
		}
	}
	if c.RoleRules != nil {
		out.RoleRules = append([]RoleRule(nil), c.RoleRules...)
	}
	if c.RoleCatalog != nil {
		out.RoleCatalog = append([]string(nil), c.RoleCatalog...)
	}
	return out
}
