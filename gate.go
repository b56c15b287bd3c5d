package caddyshib

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/bshelton229/caddy-shibboleth/internal/adapters/driven/metrics"
	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
	"github.com/bshelton229/caddy-shibboleth/internal/core/ports"
)

// OutcomeKind identifies a terminal session-gate outcome.
type OutcomeKind string

const (
	// OutcomeRedirect carries the federation login URL for requests with no
	// federation session.
	OutcomeRedirect OutcomeKind = "redirect"

	// OutcomeAuthorized carries the resolved account and role.
	OutcomeAuthorized OutcomeKind = "authorized"

	// OutcomeDenied means role resolution produced no role. No account was
	// created or modified.
	OutcomeDenied OutcomeKind = "denied"

	// OutcomeError carries an invalid_input or account_creation_failed
	// error.
	OutcomeError OutcomeKind = "error"
)

// Outcome is the gate's terminal result for one request. Exactly one of the
// four kinds is produced; Err is set for OutcomeDenied and OutcomeError.
type Outcome struct {
	Kind        OutcomeKind
	RedirectURL string
	Account     *domain.Account
	Role        string
	Created     bool
	Identity    domain.Identity
	Err         *domain.AppError
}

// Gate orchestrates per-request attribute-driven authentication: federation
// session detection, role derivation, account resolution, and profile
// reconciliation. Each call runs synchronously within one request and either
// completes to a terminal outcome or fails atomically.
type Gate struct {
	users    ports.UserStore
	recorder ports.MetricsRecorder
	logger   *zap.Logger
}

// NewGate creates a session gate over the given user store.
func NewGate(users ports.UserStore, recorder ports.MetricsRecorder, logger *zap.Logger) *Gate {
	if recorder == nil {
		recorder = metrics.NewNoopRecorder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{users: users, recorder: recorder, logger: logger}
}

// SessionPresent reports whether the upstream proxy has completed a
// federated handshake for this request: a non-empty session identifier or a
// non-empty federation-issuer attribute.
func SessionPresent(src ports.AttributeSource, cfg domain.Config) bool {
	return src.Get(cfg.SessionAttribute) != "" || src.Get(cfg.IdPAttribute) != ""
}

// Authenticate runs the gate for one request. The configuration snapshot is
// loaded by the caller once per request; dest is the original destination to
// return to after federation login.
func (g *Gate) Authenticate(ctx context.Context, cfg domain.Config, src ports.AttributeSource, dest string) Outcome {
	if !SessionPresent(src, cfg) {
		g.recorder.RecordAuthOutcome(string(OutcomeRedirect))
		return Outcome{
			Kind:        OutcomeRedirect,
			RedirectURL: LoginRedirectURL(cfg, dest),
		}
	}

	roleRes, err := domain.ResolveRole(src, cfg.Mapping(), cfg.RoleCatalog)
	if err != nil {
		appErr := asAppError(err)
		g.logger.Warn("access denied: no role resolved",
			zap.String("username_attribute", cfg.HeaderMap.Username),
		)
		g.recorder.RecordAuthOutcome(string(OutcomeDenied))
		return Outcome{Kind: OutcomeDenied, Err: appErr}
	}
	g.recorder.RecordRoleResolution(roleRes.Role, roleRes.ByRule)

	identity := domain.ExtractIdentity(src, cfg.HeaderMap)

	account, created, appErr := g.resolveAccount(ctx, cfg, identity, g.debugDump(cfg, src))
	if appErr != nil {
		g.logger.Warn("identity resolution failed",
			zap.String("code", appErr.Code.String()),
			zap.Error(appErr),
		)
		g.recorder.RecordAuthOutcome(string(OutcomeError))
		return Outcome{Kind: OutcomeError, Identity: identity, Err: appErr}
	}
	if created {
		g.recorder.RecordAccountCreated()
	}

	if appErr := g.reconcile(ctx, cfg, account, identity, created, roleRes.Role); appErr != nil {
		g.logger.Warn("profile reconciliation failed",
			zap.String("username", account.Username),
			zap.Error(appErr),
		)
		g.recorder.RecordAuthOutcome(string(OutcomeError))
		return Outcome{Kind: OutcomeError, Identity: identity, Err: appErr}
	}

	g.logger.Info("federation login authorized",
		zap.String("username", account.Username),
		zap.String("role", roleRes.Role),
		zap.Bool("created", created),
	)
	g.recorder.RecordAuthOutcome(string(OutcomeAuthorized))
	return Outcome{
		Kind:     OutcomeAuthorized,
		Account:  account,
		Role:     roleRes.Role,
		Created:  created,
		Identity: identity,
	}
}

// Inspection is a read-only view of what the gate would derive for a
// request. No account is created or modified.
type Inspection struct {
	Authenticated bool            `json:"authenticated"`
	Identity      domain.Identity `json:"identity,omitempty"`
	Role          string          `json:"role,omitempty"`
	RoleByRule    bool            `json:"role_by_rule,omitempty"`
}

// Inspect derives identity and role for the current request without
// touching the user store.
func (g *Gate) Inspect(cfg domain.Config, src ports.AttributeSource) Inspection {
	if !SessionPresent(src, cfg) {
		return Inspection{}
	}
	out := Inspection{
		Authenticated: true,
		Identity:      domain.ExtractIdentity(src, cfg.HeaderMap),
	}
	if roleRes, err := domain.ResolveRole(src, cfg.Mapping(), cfg.RoleCatalog); err == nil {
		out.Role = roleRes.Role
		out.RoleByRule = roleRes.ByRule
	}
	return out
}

// LoginRedirectURL builds the federation login URL. The local login URL
// (carrying the encoded original destination and action=login) rides in the
// "target" query parameter, itself URL-encoded; this exact nesting is what
// the Service Provider's redirect-back behavior expects.
func LoginRedirectURL(cfg domain.Config, dest string) string {
	target := addQuery(cfg.AppLoginURL, url.Values{
		"redirect_to": {dest},
		"action":      {"login"},
	})
	return addQuery(cfg.LoginURL, url.Values{"target": {target}})
}

// addQuery appends parameters to a URL, keeping any existing query intact.
// Falls back to naive concatenation when the URL does not parse.
func addQuery(rawURL string, params url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		return rawURL + sep + params.Encode()
	}
	q := u.Query()
	for key, vals := range params {
		for _, v := range vals {
			q.Set(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// debugDump renders the mapped attribute values for diagnostics. Returns ""
// unless the debug flag is enabled, so attribute data never leaks in normal
// operation.
func (g *Gate) debugDump(cfg domain.Config, src ports.AttributeSource) string {
	if !cfg.Debug {
		return ""
	}
	names := map[string]bool{
		cfg.SessionAttribute:      true,
		cfg.IdPAttribute:          true,
		cfg.HeaderMap.Username:    true,
		cfg.HeaderMap.FirstName:   true,
		cfg.HeaderMap.LastName:    true,
		cfg.HeaderMap.DisplayName: true,
		cfg.HeaderMap.Email:       true,
	}
	for _, attr := range cfg.HeaderMap.Extra {
		names[attr] = true
	}
	for _, rule := range cfg.RoleRules {
		names[rule.Attribute] = true
	}
	delete(names, "")

	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	pairs := make([]string, 0, len(ordered))
	for _, name := range ordered {
		pairs = append(pairs, fmt.Sprintf("%s=%q", name, src.Get(name)))
	}
	return strings.Join(pairs, " ")
}

func asAppError(err error) *domain.AppError {
	if appErr, ok := err.(*domain.AppError); ok {
		return appErr
	}
	return domain.CreationError(err.Error(), err)
}
