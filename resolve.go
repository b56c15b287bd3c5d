package caddyshib

import (
	"context"
	"errors"

	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
	"github.com/bshelton229/caddy-shibboleth/internal/core/ports"
)

// resolveAccount maps the username join key to a local account, creating one
// if absent, and idempotently marks the result as federation-managed.
// debugDump, when non-empty, is appended to creation-failure diagnostics.
func (g *Gate) resolveAccount(ctx context.Context, cfg domain.Config, identity domain.Identity, debugDump string) (*domain.Account, bool, *domain.AppError) {
	username := identity.Username
	if username == "" {
		return nil, false, domain.InvalidInputError(
			"The username attribute is not mapped or was not asserted by the federation.")
	}

	account, err := g.users.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return g.adopt(ctx, cfg, account)
	case errors.Is(err, ports.ErrAccountNotFound):
		return g.create(ctx, username, debugDump)
	default:
		return nil, false, domain.CreationError("user store lookup failed", err)
	}
}

// adopt finishes resolution of a pre-existing account. Existing accounts are
// returned as-is regardless of provenance unless adoption is disabled. A
// failure to mark the adopted account federation-managed is terminal, the
// same as on the create path: a login must never complete with the
// provenance flag missing.
func (g *Gate) adopt(ctx context.Context, cfg domain.Config, account *domain.Account) (*domain.Account, bool, *domain.AppError) {
	if account.FederationManaged {
		return account, false, nil
	}
	if !cfg.AdoptExisting {
		return nil, false, domain.InvalidInputError(
			"An account with this username already exists and is not federation-managed.")
	}
	// Re-marking an already-flagged account never reaches here.
	if err := g.users.SetFlag(ctx, account.ID, domain.FederationFlag, "1"); err != nil {
		return nil, false, domain.CreationError("could not mark adopted account as federation-managed", err)
	}
	account.FederationManaged = true
	return account, false, nil
}

// create provisions a new account for the username. A store rejection is
// terminal and surfaced, never retried; a creation race (another request won
// the insert) falls back to one lookup of the winner's account.
func (g *Gate) create(ctx context.Context, username, debugDump string) (*domain.Account, bool, *domain.AppError) {
	account, err := g.users.Create(ctx, username)
	if err != nil {
		if errors.Is(err, ports.ErrAccountExists) {
			if existing, findErr := g.users.FindByUsername(ctx, username); findErr == nil {
				return existing, false, nil
			}
		}
		message := "Unable to create account based on data provided."
		if debugDump != "" {
			message += " attributes: " + debugDump
		}
		return nil, false, domain.CreationError(message, err)
	}

	if err := g.users.SetFlag(ctx, account.ID, domain.FederationFlag, "1"); err != nil {
		return nil, false, domain.CreationError("could not mark new account as federation-managed", err)
	}
	account.FederationManaged = true
	return account, true, nil
}

// reconcile writes profile fields and the derived role back to the account
// under the sync policy: everything on creation, and on later logins only
// what the policy allows.
func (g *Gate) reconcile(ctx context.Context, cfg domain.Config, account *domain.Account, identity domain.Identity, created bool, role string) *domain.AppError {
	policy := cfg.Sync()

	if created || policy.UpdateProfile {
		fields := reconcileFields(account.Profile, identity, cfg.SkipAbsentAttributes)
		if err := g.users.UpdateProfile(ctx, account.ID, fields); err != nil {
			return domain.CreationError("user store profile update failed", err)
		}
		account.Profile = fields
	}

	if created || policy.UpdateRole {
		if err := g.users.SetRole(ctx, account.ID, role); err != nil {
			return domain.CreationError("user store role update failed", err)
		}
		account.Role = role
	}

	return nil
}

// reconcileFields maps the identity onto profile fields. By default absent
// attributes overwrite stored values with empty strings; with skipAbsent the
// stored value survives instead.
func reconcileFields(stored domain.ProfileFields, identity domain.Identity, skipAbsent bool) domain.ProfileFields {
	fields := domain.ProfileFields{
		Nicename:    domain.Nicename(identity.Username),
		FirstName:   identity.FirstName,
		LastName:    identity.LastName,
		DisplayName: identity.DisplayName,
		Email:       identity.Email,
	}
	if len(identity.Extra) > 0 || (skipAbsent && len(stored.Extra) > 0) {
		fields.Extra = make(map[string]string, len(identity.Extra))
		for k, v := range identity.Extra {
			fields.Extra[k] = v
		}
	}

	if !skipAbsent {
		return fields
	}

	if fields.FirstName == "" {
		fields.FirstName = stored.FirstName
	}
	if fields.LastName == "" {
		fields.LastName = stored.LastName
	}
	if fields.DisplayName == "" {
		fields.DisplayName = stored.DisplayName
	}
	if fields.Email == "" {
		fields.Email = stored.Email
	}
	for k, v := range stored.Extra {
		if fields.Extra[k] == "" && v != "" {
			fields.Extra[k] = v
		}
	}
	return fields
}
