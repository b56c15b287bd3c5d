package caddyshib

import (
	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
	"github.com/bshelton229/caddy-shibboleth/internal/core/ports"
)

// Re-export configuration and identity types from the domain package
type Config = domain.Config
type SyncPolicy = domain.SyncPolicy
type AttributeMap = domain.AttributeMap
type Identity = domain.Identity
type RoleRule = domain.RoleRule
type RoleMapping = domain.RoleMapping
type RoleResult = domain.RoleResult
type Account = domain.Account
type ProfileFields = domain.ProfileFields

// Re-export port types for testing through interfaces
type AttributeSource = ports.AttributeSource
type UserStore = ports.UserStore
type ConfigStore = ports.ConfigStore

var (
	ExtractIdentity = domain.ExtractIdentity
	ResolveRole     = domain.ResolveRole
	SplitValues     = domain.SplitValues
	HasValue        = domain.HasValue
	Nicename        = domain.Nicename
)

const (
	DefaultLoginURL         = domain.DefaultLoginURL
	DefaultLogoutURL        = domain.DefaultLogoutURL
	DefaultSessionAttribute = domain.DefaultSessionAttribute
	DefaultIdPAttribute     = domain.DefaultIdPAttribute
	FederationFlag          = domain.FederationFlag
)
