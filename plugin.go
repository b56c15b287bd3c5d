// Package caddyshib provides a Caddy v2 plugin that externalizes user
// authentication to a Shibboleth-style Service Provider running in front of
// Caddy. It trusts the attributes the SP injects into each request and
// translates them into local application identity: account lookup/creation,
// profile field sync, and role assignment.
package caddyshib

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"go.uber.org/zap"

	"github.com/bshelton229/caddy-shibboleth/internal/adapters/driven/configstore"
	"github.com/bshelton229/caddy-shibboleth/internal/adapters/driven/headers"
	"github.com/bshelton229/caddy-shibboleth/internal/adapters/driven/metrics"
	"github.com/bshelton229/caddy-shibboleth/internal/adapters/driven/token"
	"github.com/bshelton229/caddy-shibboleth/internal/adapters/driven/userstore"
	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
	"github.com/bshelton229/caddy-shibboleth/internal/core/ports"
)

const Version = "0.4.0"

// Identity headers set for the application behind the gate. Inbound values
// are always stripped first so clients cannot spoof them.
const (
	HeaderUser        = "X-Auth-User"
	HeaderEmail       = "X-Auth-Email"
	HeaderDisplayName = "X-Auth-Display-Name"
	HeaderRole        = "X-Auth-Role"
	HeaderToken       = "X-Auth-Token"
)

func init() {
	caddy.RegisterModule(Shibboleth{})
	httpcaddyfile.RegisterHandlerDirective("shibboleth", parseCaddyfile)
}

// Shibboleth is a Caddy HTTP handler module implementing the session gate.
// The embedded configuration is the seed: when a config_file is set, the
// file's contents win and later changes through the config API persist
// there.
type Shibboleth struct {
	domain.Config

	// ConfigFile stores the runtime configuration (JSON or YAML by
	// extension). Empty means in-memory configuration from the seed.
	ConfigFile string `json:"config_file,omitempty"`

	// UserStoreFile persists accounts locally (JSON or YAML by extension).
	UserStoreFile string `json:"user_store_file,omitempty"`

	// UserStoreAPI is the base URL of the host application's user API.
	// Takes precedence over UserStoreFile.
	UserStoreAPI string `json:"user_store_api,omitempty"`

	// IdentityTokenSecret enables a signed HS256 identity token in the
	// X-Auth-Token header for the application behind the gate.
	IdentityTokenSecret string `json:"identity_token_secret,omitempty"`

	// IdentityTokenKeyFile enables an RS256 identity token signed with the
	// PEM private key at this path. Takes precedence over the secret.
	IdentityTokenKeyFile string `json:"identity_token_key_file,omitempty"`

	// IdentityTokenTTL is the identity token lifetime (e.g. "5m").
	IdentityTokenTTL string `json:"identity_token_ttl,omitempty"`

	// LocalLoginField is the posted form field that marks a local-
	// credentials login attempt, bypassing the gate. Defaults to
	// "local-submit".
	LocalLoginField string `json:"local_login_field,omitempty"`

	// APIToken authorizes configuration API callers via
	// "Authorization: Bearer <token>". Independent of federation state, so
	// automation can manage configuration without a session.
	APIToken string `json:"api_token,omitempty"`

	// MetricsEnabled turns on Prometheus metrics.
	MetricsEnabled bool `json:"metrics,omitempty"`

	// Runtime state (not serialized)
	store    ports.ConfigStore
	users    ports.UserStore
	recorder ports.MetricsRecorder
	issuer   *token.Issuer
	gate     *Gate
	logger   *zap.Logger
}

// CaddyModule returns the Caddy module information.
func (Shibboleth) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.shibboleth",
		New: func() caddy.Module { return new(Shibboleth) },
	}
}

// Prometheus collectors register once per process; config reloads reuse the
// same recorder.
var (
	promOnce     sync.Once
	promRecorder *metrics.PrometheusRecorder
)

// Provision sets up the module.
func (s *Shibboleth) Provision(ctx caddy.Context) error {
	s.logger = ctx.Logger()
	s.logger.Debug("provisioning shibboleth gate")

	s.Config.SetDefaults()
	if s.LocalLoginField == "" {
		s.LocalLoginField = "local-submit"
	}

	if s.ConfigFile != "" {
		store, err := configstore.NewFileStore(s.ConfigFile, s.Config, s.logger)
		if err != nil {
			return fmt.Errorf("open configuration store: %w", err)
		}
		s.store = store
	} else {
		s.store = configstore.NewInMemoryStore(s.Config)
	}

	switch {
	case s.UserStoreAPI != "":
		users, err := userstore.NewHTTPStore(s.UserStoreAPI, s.logger)
		if err != nil {
			return fmt.Errorf("configure user store client: %w", err)
		}
		s.users = users
	case s.UserStoreFile != "":
		users, err := userstore.NewFileStore(s.UserStoreFile, s.logger)
		if err != nil {
			return fmt.Errorf("open user store: %w", err)
		}
		s.users = users
	default:
		s.users = userstore.NewInMemoryStore()
		s.logger.Warn("using in-memory user store; accounts will not survive restarts")
	}

	if err := s.provisionIssuer(); err != nil {
		return err
	}

	if s.MetricsEnabled {
		promOnce.Do(func() {
			promRecorder = metrics.NewPrometheusRecorder()
		})
		s.recorder = promRecorder
	} else {
		s.recorder = metrics.NewNoopRecorder()
	}

	s.gate = NewGate(s.users, s.recorder, s.logger)

	s.logger.Info("shibboleth gate provisioned",
		zap.String("version", Version),
		zap.Bool("persistent_config", s.ConfigFile != ""),
		zap.String("user_store", s.userStoreKind()),
	)
	return nil
}

func (s *Shibboleth) provisionIssuer() error {
	if s.IdentityTokenKeyFile == "" && s.IdentityTokenSecret == "" {
		return nil
	}

	ttl := 5 * time.Minute
	if s.IdentityTokenTTL != "" {
		parsed, err := time.ParseDuration(s.IdentityTokenTTL)
		if err != nil {
			return fmt.Errorf("parse identity token ttl: %w", err)
		}
		ttl = parsed
	}

	if s.IdentityTokenKeyFile != "" {
		key, err := token.LoadPrivateKey(s.IdentityTokenKeyFile)
		if err != nil {
			return fmt.Errorf("load identity token key: %w", err)
		}
		s.issuer = token.NewRS256Issuer(key, "shibboleth-gate", ttl)
		return nil
	}

	issuer, err := token.NewHS256Issuer([]byte(s.IdentityTokenSecret), "shibboleth-gate", ttl)
	if err != nil {
		return fmt.Errorf("configure identity token issuer: %w", err)
	}
	s.issuer = issuer
	return nil
}

func (s *Shibboleth) userStoreKind() string {
	switch {
	case s.UserStoreAPI != "":
		return "api"
	case s.UserStoreFile != "":
		return "file"
	default:
		return "memory"
	}
}

// Validate ensures the module's seed configuration is valid.
func (s *Shibboleth) Validate() error {
	return s.Config.Validate()
}

// ServeHTTP implements caddyhttp.MiddlewareHandler.
func (s *Shibboleth) ServeHTTP(w http.ResponseWriter, r *http.Request, next caddyhttp.Handler) error {
	switch r.URL.Path {
	case "/shib/api/config":
		switch r.Method {
		case http.MethodGet, http.MethodPut:
			return s.serveConfigAPI(w, r)
		}
	case "/shib/api/whoami":
		if r.Method == http.MethodGet {
			return s.handleWhoami(w, r)
		}
	case "/shib/logout":
		if r.Method == http.MethodGet {
			return s.handleLogout(w, r)
		}
	}

	cfg, err := s.store.Load()
	if err != nil {
		s.getLogger().Error("failed to load configuration", zap.Error(err))
		http.Error(w, "configuration unavailable", http.StatusInternalServerError)
		return nil
	}

	// A local-credentials login attempt bypasses the gate entirely.
	if s.isLocalBypass(r, cfg) {
		return next.ServeHTTP(w, r)
	}

	outcome := s.gate.Authenticate(r.Context(), cfg, headers.NewRequestSource(r), r.URL.RequestURI())

	switch outcome.Kind {
	case OutcomeRedirect:
		http.Redirect(w, r, outcome.RedirectURL, http.StatusFound)
		return nil

	case OutcomeDenied, OutcomeError:
		s.renderAppError(w, outcome.Err)
		return nil

	case OutcomeAuthorized:
		if err := s.applyIdentityHeaders(r, outcome); err != nil {
			s.getLogger().Error("failed to issue identity token", zap.Error(err))
			http.Error(w, "identity token issuance failed", http.StatusInternalServerError)
			return nil
		}
		return next.ServeHTTP(w, r)
	}

	// Unreachable: the gate produces exactly the four outcomes above.
	http.Error(w, "unknown authentication outcome", http.StatusInternalServerError)
	return nil
}

// isLocalBypass reports whether the host application flagged this request as
// a local-credentials login: an explicit action, a posted login form, or a
// just-logged-out marker.
func (s *Shibboleth) isLocalBypass(r *http.Request, cfg domain.Config) bool {
	query := r.URL.Query()
	if query.Get("action") == "local_login" {
		return true
	}
	if query.Has("loggedout") {
		return true
	}
	// The posted-form check only applies to the login endpoint itself, so
	// the gate never consumes another request's body.
	if r.Method == http.MethodPost && r.URL.Path == loginPath(cfg) {
		if err := r.ParseForm(); err == nil && r.PostForm.Get(s.LocalLoginField) != "" {
			return true
		}
	}
	return false
}

// loginPath extracts the path component of the application login URL so
// posted-form detection works whether the URL is absolute or relative.
func loginPath(cfg domain.Config) string {
	if u, err := url.Parse(cfg.AppLoginURL); err == nil && u.Path != "" {
		return u.Path
	}
	return cfg.AppLoginURL
}

// applyIdentityHeaders strips any spoofed inbound identity headers and sets
// the resolved identity for the application behind the gate.
func (s *Shibboleth) applyIdentityHeaders(r *http.Request, outcome Outcome) error {
	for _, h := range []string{HeaderUser, HeaderEmail, HeaderDisplayName, HeaderRole, HeaderToken} {
		r.Header.Del(h)
	}

	r.Header.Set(HeaderUser, outcome.Account.Username)
	r.Header.Set(HeaderRole, outcome.Role)
	if outcome.Identity.Email != "" {
		r.Header.Set(HeaderEmail, outcome.Identity.Email)
	}
	if outcome.Identity.DisplayName != "" {
		r.Header.Set(HeaderDisplayName, outcome.Identity.DisplayName)
	}

	if s.issuer != nil {
		signed, err := s.issuer.Issue(outcome.Identity, outcome.Role)
		if err != nil {
			return err
		}
		r.Header.Set(HeaderToken, signed)
	}
	return nil
}

// serveConfigAPI dispatches GET/PUT /shib/api/config. The configuration is
// privileged state (it decides who passes the gate and as which role), so
// both reads and writes require an authorized caller: a matching API bearer
// token, or a federation session that resolves to the highest-rank catalog
// role.
func (s *Shibboleth) serveConfigAPI(w http.ResponseWriter, r *http.Request) error {
	cfg, err := s.store.Load()
	if err != nil {
		http.Error(w, "configuration unavailable", http.StatusInternalServerError)
		return err
	}

	if !s.authorizeConfigAPI(r, cfg) {
		s.getLogger().Warn("unauthorized configuration api request",
			zap.String("method", r.Method),
			zap.String("remote", r.RemoteAddr),
		)
		s.renderAppError(w, domain.NoAccessError())
		return nil
	}

	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		return json.NewEncoder(w).Encode(cfg)
	}
	return s.handleSetConfig(w, r)
}

// authorizeConfigAPI reports whether the request may read or replace the
// configuration.
func (s *Shibboleth) authorizeConfigAPI(r *http.Request, cfg domain.Config) bool {
	if s.APIToken != "" {
		auth := r.Header.Get("Authorization")
		want := "Bearer " + s.APIToken
		if subtle.ConstantTimeCompare([]byte(auth), []byte(want)) == 1 {
			return true
		}
	}
	// The top of the role catalog is the highest-privilege role the host
	// knows; only a session resolving to it may administer configuration.
	if len(cfg.RoleCatalog) == 0 {
		return false
	}
	insp := s.gate.Inspect(cfg, headers.NewRequestSource(r))
	return insp.Authenticated && insp.Role == cfg.RoleCatalog[0]
}

// handleSetConfig handles PUT /shib/api/config. Sparse bodies are completed
// with defaults before validation, so a PUT omitting role_catalog behaves
// like the equivalent Caddyfile. The replacement is all-or-nothing:
// validation errors are returned verbatim and leave the stored configuration
// untouched.
func (s *Shibboleth) handleSetConfig(w http.ResponseWriter, r *http.Request) error {
	var cfg domain.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.renderAppError(w, domain.ValidationError("request body is not valid configuration JSON"))
		return nil
	}
	cfg.SetDefaults()

	if err := s.store.Save(cfg); err != nil {
		s.recorder.RecordConfigSave(false)
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			s.renderAppError(w, appErr)
			return nil
		}
		http.Error(w, "configuration save failed", http.StatusInternalServerError)
		return err
	}

	s.recorder.RecordConfigSave(true)
	s.getLogger().Info("configuration replaced via api")
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(cfg)
}

// handleWhoami handles GET /shib/api/whoami: a read-only view of the
// identity and role the gate would derive, with no store writes.
func (s *Shibboleth) handleWhoami(w http.ResponseWriter, r *http.Request) error {
	cfg, err := s.store.Load()
	if err != nil {
		http.Error(w, "configuration unavailable", http.StatusInternalServerError)
		return err
	}
	inspection := s.gate.Inspect(cfg, headers.NewRequestSource(r))
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(inspection)
}

// handleLogout handles GET /shib/logout: an unconditional redirect to the
// federation logout endpoint so the federation session terminates too.
func (s *Shibboleth) handleLogout(w http.ResponseWriter, r *http.Request) error {
	cfg, err := s.store.Load()
	if err != nil {
		http.Error(w, "configuration unavailable", http.StatusInternalServerError)
		return err
	}
	http.Redirect(w, r, cfg.LogoutURL, http.StatusFound)
	return nil
}

// renderAppError writes an AppError as a JSON response.
func (s *Shibboleth) renderAppError(w http.ResponseWriter, appErr *domain.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code.HTTPStatus())
	json.NewEncoder(w).Encode(domain.NewJSONErrorResponse(appErr))
}

// getLogger returns the logger, or a no-op logger if not set.
// This allows tests to run without calling Provision().
func (s *Shibboleth) getLogger() *zap.Logger {
	if s.logger != nil {
		return s.logger
	}
	return zap.NewNop()
}

// Interface guards
var (
	_ caddy.Module                = (*Shibboleth)(nil)
	_ caddy.Provisioner           = (*Shibboleth)(nil)
	_ caddy.Validator             = (*Shibboleth)(nil)
	_ caddyhttp.MiddlewareHandler = (*Shibboleth)(nil)
	_ caddyfile.Unmarshaler       = (*Shibboleth)(nil)
)
