package caddyshib

import (
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"

	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
)

// parseCaddyfile sets up the handler from Caddyfile tokens.
//
// Syntax:
//
//	shibboleth {
//	    login_url <url>
//	    logout_url <url>
//	    app_login_url <url>
//	    attribute <field> <source>
//	    role <role_id> <attribute> <value>
//	    default_role <role_id>
//	    role_catalog <role_id...>
//	    sync_profile on|off
//	    sync_role on|off
//	    adopt_existing on|off
//	    skip_absent_attributes
//	    session_attribute <name>
//	    idp_attribute <name>
//	    debug
//	    config_file <path>
//	    user_store file <path> | api <url> | memory
//	    identity_token secret <secret> | key_file <path>
//	    identity_token_ttl <duration>
//	    local_login_field <name>
//	    api_token <token>
//	    metrics enabled|off
//	}
func parseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	var s Shibboleth
	// Toggles that are on unless the Caddyfile turns them off.
	s.SyncProfileOnLogin = true
	s.SyncRoleOnLogin = true
	s.AdoptExisting = true
	err := s.UnmarshalCaddyfile(h.Dispenser)
	return &s, err
}

// UnmarshalCaddyfile implements caddyfile.Unmarshaler.
func (s *Shibboleth) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	d.Next() // consume directive name

	for d.NextBlock(0) {
		switch d.Val() {
		case "login_url":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.LoginURL = d.Val()

		case "logout_url":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.LogoutURL = d.Val()

		case "app_login_url":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.AppLoginURL = d.Val()

		case "attribute":
			args := d.RemainingArgs()
			if len(args) != 2 {
				return d.ArgErr()
			}
			s.setAttribute(args[0], args[1])

		case "role":
			args := d.RemainingArgs()
			if len(args) != 3 {
				return d.ArgErr()
			}
			s.RoleRules = append(s.RoleRules, domain.RoleRule{
				RoleID:    args[0],
				Attribute: args[1],
				Value:     args[2],
			})

		case "default_role":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.DefaultRole = d.Val()

		case "role_catalog":
			s.RoleCatalog = d.RemainingArgs()
			if len(s.RoleCatalog) == 0 {
				return d.ArgErr()
			}

		case "sync_profile":
			v, err := onOffArg(d)
			if err != nil {
				return err
			}
			s.SyncProfileOnLogin = v

		case "sync_role":
			v, err := onOffArg(d)
			if err != nil {
				return err
			}
			s.SyncRoleOnLogin = v

		case "adopt_existing":
			v, err := onOffArg(d)
			if err != nil {
				return err
			}
			s.AdoptExisting = v

		case "skip_absent_attributes":
			s.SkipAbsentAttributes = true

		case "session_attribute":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.SessionAttribute = d.Val()

		case "idp_attribute":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.IdPAttribute = d.Val()

		case "debug":
			s.Debug = true

		case "config_file":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.ConfigFile = d.Val()

		case "user_store":
			if !d.NextArg() {
				return d.ArgErr()
			}
			switch d.Val() {
			case "file":
				if !d.NextArg() {
					return d.ArgErr()
				}
				s.UserStoreFile = d.Val()
			case "api":
				if !d.NextArg() {
					return d.ArgErr()
				}
				s.UserStoreAPI = d.Val()
			case "memory":
				// in-memory is the default
			default:
				return d.Errf("user_store must be 'file', 'api' or 'memory', got %q", d.Val())
			}

		case "identity_token":
			if !d.NextArg() {
				return d.ArgErr()
			}
			switch d.Val() {
			case "secret":
				if !d.NextArg() {
					return d.ArgErr()
				}
				s.IdentityTokenSecret = d.Val()
			case "key_file":
				if !d.NextArg() {
					return d.ArgErr()
				}
				s.IdentityTokenKeyFile = d.Val()
			default:
				return d.Errf("identity_token must be 'secret' or 'key_file', got %q", d.Val())
			}

		case "identity_token_ttl":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.IdentityTokenTTL = d.Val()

		case "local_login_field":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.LocalLoginField = d.Val()

		case "api_token":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.APIToken = d.Val()

		case "metrics":
			if !d.NextArg() {
				return d.ArgErr()
			}
			switch d.Val() {
			case "enabled", "on":
				s.MetricsEnabled = true
			case "disabled", "off":
				s.MetricsEnabled = false
			default:
				return d.Errf("metrics must be 'enabled' or 'off', got %q", d.Val())
			}

		default:
			return d.Errf("unrecognized subdirective: %s", d.Val())
		}
	}

	s.Config.SetDefaults()
	return nil
}

// setAttribute binds one identity field to the federation attribute that
// supplies it. Unknown fields go into the extra map and are carried onto
// new accounts verbatim.
func (s *Shibboleth) setAttribute(field, source string) {
	switch field {
	case domain.FieldUsername:
		s.HeaderMap.Username = source
	case domain.FieldFirstName:
		s.HeaderMap.FirstName = source
	case domain.FieldLastName:
		s.HeaderMap.LastName = source
	case domain.FieldDisplayName:
		s.HeaderMap.DisplayName = source
	case domain.FieldEmail:
		s.HeaderMap.Email = source
	default:
		if s.HeaderMap.Extra == nil {
			s.HeaderMap.Extra = make(map[string]string)
		}
		s.HeaderMap.Extra[field] = source
	}
}

func onOffArg(d *caddyfile.Dispenser) (bool, error) {
	if !d.NextArg() {
		return false, d.ArgErr()
	}
	switch d.Val() {
	case "on", "true":
		return true, nil
	case "off", "false":
		return false, nil
	}
	return false, d.Errf("expected 'on' or 'off', got %q", d.Val())
}
