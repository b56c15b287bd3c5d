package caddyshib

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/bshelton229/caddy-shibboleth/internal/adapters/driven/headers"
	"github.com/bshelton229/caddy-shibboleth/internal/adapters/driven/userstore"
	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
	"github.com/bshelton229/caddy-shibboleth/internal/core/ports"
)

func testConfig() domain.Config {
	cfg := domain.Config{
		RoleRules: []domain.RoleRule{
			{RoleID: "administrator", Attribute: "entitlement", Value: "urn:mace:example.edu:admin"},
			{RoleID: "author", Attribute: "affiliation", Value: "faculty"},
			{RoleID: "subscriber", Attribute: "affiliation", Value: "staff"},
		},
		DefaultRole:        "subscriber",
		SyncProfileOnLogin: true,
		SyncRoleOnLogin:    true,
		AdoptExisting:      true,
	}
	cfg.SetDefaults()
	return cfg
}

func sessionAttrs(extra map[string]string) headers.MapSource {
	src := headers.MapSource{
		"Shib-Session-Id": "_abc123",
		"eppn":            "jdoe@example.edu",
		"givenName":       "Jane",
		"sn":              "Doe",
		"displayName":     "Jane Doe",
		"mail":            "jane@example.edu",
		"affiliation":     "faculty;staff",
	}
	for k, v := range extra {
		src[k] = v
	}
	return src
}

// writeCountingStore counts mutating calls so tests can assert the store
// was never touched.
type writeCountingStore struct {
	ports.UserStore
	writes int
}

func (s *writeCountingStore) Create(ctx context.Context, username string) (*domain.Account, error) {
	s.writes++
	return s.UserStore.Create(ctx, username)
}

func (s *writeCountingStore) UpdateProfile(ctx context.Context, id int64, fields domain.ProfileFields) error {
	s.writes++
	return s.UserStore.UpdateProfile(ctx, id, fields)
}

func (s *writeCountingStore) SetRole(ctx context.Context, id int64, role string) error {
	s.writes++
	return s.UserStore.SetRole(ctx, id, role)
}

func (s *writeCountingStore) SetFlag(ctx context.Context, id int64, key, value string) error {
	s.writes++
	return s.UserStore.SetFlag(ctx, id, key, value)
}

func TestLoginRedirectURL_NestedEncoding(t *testing.T) {
	cfg := testConfig()
	got := LoginRedirectURL(cfg, "/admin/?page=settings")

	outer, err := url.Parse(got)
	if err != nil {
		t.Fatalf("redirect URL does not parse: %v", err)
	}
	if outer.Path != "/Shibboleth.sso/Login" {
		t.Errorf("path = %q, want %q", outer.Path, "/Shibboleth.sso/Login")
	}

	target := outer.Query().Get("target")
	inner, err := url.Parse(target)
	if err != nil {
		t.Fatalf("target does not parse: %v", err)
	}
	if inner.Path != "/login" {
		t.Errorf("target path = %q, want %q", inner.Path, "/login")
	}
	if inner.Query().Get("action") != "login" {
		t.Errorf("target action = %q, want %q", inner.Query().Get("action"), "login")
	}
	if inner.Query().Get("redirect_to") != "/admin/?page=settings" {
		t.Errorf("redirect_to = %q, want %q", inner.Query().Get("redirect_to"), "/admin/?page=settings")
	}
}

func TestLoginRedirectURL_Exact(t *testing.T) {
	cfg := testConfig()
	got := LoginRedirectURL(cfg, "/wp-admin/")
	want := "/Shibboleth.sso/Login?target=%2Flogin%3Faction%3Dlogin%26redirect_to%3D%252Fwp-admin%252F"
	if got != want {
		t.Errorf("LoginRedirectURL = %q, want %q", got, want)
	}
}

func TestGate_RedirectWhenNoSession(t *testing.T) {
	store := &writeCountingStore{UserStore: userstore.NewInMemoryStore()}
	gate := NewGate(store, nil, nil)

	out := gate.Authenticate(context.Background(), testConfig(), headers.MapSource{}, "/dest")
	if out.Kind != OutcomeRedirect {
		t.Fatalf("Kind = %q, want %q", out.Kind, OutcomeRedirect)
	}
	if out.RedirectURL == "" {
		t.Error("RedirectURL is empty")
	}
	if store.writes != 0 {
		t.Errorf("store writes = %d, want 0", store.writes)
	}
}

func TestGate_SessionViaIdPAttribute(t *testing.T) {
	gate := NewGate(userstore.NewInMemoryStore(), nil, nil)
	src := sessionAttrs(nil)
	delete(src, "Shib-Session-Id")
	src["Shib-Identity-Provider"] = "https://idp.example.edu/idp"

	out := gate.Authenticate(context.Background(), testConfig(), src, "/")
	if out.Kind != OutcomeAuthorized {
		t.Fatalf("Kind = %q, want %q", out.Kind, OutcomeAuthorized)
	}
}

func TestGate_AuthorizedCreatesAccount(t *testing.T) {
	ctx := context.Background()
	store := userstore.NewInMemoryStore()
	gate := NewGate(store, nil, nil)

	out := gate.Authenticate(ctx, testConfig(), sessionAttrs(nil), "/")
	if out.Kind != OutcomeAuthorized {
		t.Fatalf("Kind = %q (err %v), want %q", out.Kind, out.Err, OutcomeAuthorized)
	}
	if !out.Created {
		t.Error("Created = false, want true")
	}
	if out.Role != "author" {
		t.Errorf("Role = %q, want %q", out.Role, "author")
	}

	acct, err := store.FindByUsername(ctx, "jdoe@example.edu")
	if err != nil {
		t.Fatalf("FindByUsername error: %v", err)
	}
	if acct.Profile.Nicename != "jdoe-example.edu" {
		t.Errorf("Nicename = %q, want %q", acct.Profile.Nicename, "jdoe-example.edu")
	}
	if acct.Profile.FirstName != "Jane" || acct.Profile.LastName != "Doe" {
		t.Errorf("name = %q %q, want Jane Doe", acct.Profile.FirstName, acct.Profile.LastName)
	}
	if acct.Profile.Email != "jane@example.edu" {
		t.Errorf("Email = %q, want %q", acct.Profile.Email, "jane@example.edu")
	}
	if acct.Role != "author" {
		t.Errorf("stored Role = %q, want %q", acct.Role, "author")
	}
	if !acct.FederationManaged {
		t.Error("FederationManaged = false, want true")
	}
}

func TestGate_SecondLoginWithSyncOffKeepsProfile(t *testing.T) {
	ctx := context.Background()
	store := userstore.NewInMemoryStore()
	gate := NewGate(store, nil, nil)
	cfg := testConfig()

	if out := gate.Authenticate(ctx, cfg, sessionAttrs(nil), "/"); out.Kind != OutcomeAuthorized {
		t.Fatalf("first login: Kind = %q, want authorized", out.Kind)
	}

	cfg.SyncProfileOnLogin = false
	cfg.SyncRoleOnLogin = false
	changed := sessionAttrs(map[string]string{
		"givenName":   "Janet",
		"affiliation": "staff",
	})
	out := gate.Authenticate(ctx, cfg, changed, "/")
	if out.Kind != OutcomeAuthorized {
		t.Fatalf("second login: Kind = %q, want authorized", out.Kind)
	}
	if out.Created {
		t.Error("Created = true on second login")
	}

	acct, _ := store.FindByUsername(ctx, "jdoe@example.edu")
	if acct.Profile.FirstName != "Jane" {
		t.Errorf("FirstName = %q, want unchanged %q", acct.Profile.FirstName, "Jane")
	}
	if acct.Role != "author" {
		t.Errorf("Role = %q, want unchanged %q", acct.Role, "author")
	}
}

func TestGate_SecondLoginWithSyncOnUpdates(t *testing.T) {
	ctx := context.Background()
	store := userstore.NewInMemoryStore()
	gate := NewGate(store, nil, nil)
	cfg := testConfig()

	gate.Authenticate(ctx, cfg, sessionAttrs(nil), "/")

	changed := sessionAttrs(map[string]string{
		"givenName":   "Janet",
		"affiliation": "staff",
	})
	out := gate.Authenticate(ctx, cfg, changed, "/")
	if out.Kind != OutcomeAuthorized {
		t.Fatalf("Kind = %q, want authorized", out.Kind)
	}
	if out.Role != "subscriber" {
		t.Errorf("Role = %q, want %q", out.Role, "subscriber")
	}

	acct, _ := store.FindByUsername(ctx, "jdoe@example.edu")
	if acct.Profile.FirstName != "Janet" {
		t.Errorf("FirstName = %q, want %q", acct.Profile.FirstName, "Janet")
	}
	if acct.Role != "subscriber" {
		t.Errorf("Role = %q, want %q", acct.Role, "subscriber")
	}
}

func TestGate_DeniedTouchesNoAccounts(t *testing.T) {
	store := &writeCountingStore{UserStore: userstore.NewInMemoryStore()}
	gate := NewGate(store, nil, nil)
	cfg := testConfig()
	cfg.DefaultRole = ""

	src := sessionAttrs(map[string]string{"affiliation": "alum"})
	out := gate.Authenticate(context.Background(), cfg, src, "/")
	if out.Kind != OutcomeDenied {
		t.Fatalf("Kind = %q, want %q", out.Kind, OutcomeDenied)
	}
	if out.Err == nil || out.Err.Code != domain.ErrCodeNoAccess {
		t.Errorf("Err = %v, want no_access", out.Err)
	}
	if store.writes != 0 {
		t.Errorf("store writes = %d, want 0", store.writes)
	}
}

func TestGate_MissingUsernameIsInvalidInput(t *testing.T) {
	store := &writeCountingStore{UserStore: userstore.NewInMemoryStore()}
	gate := NewGate(store, nil, nil)

	src := sessionAttrs(nil)
	delete(src, "eppn")
	out := gate.Authenticate(context.Background(), testConfig(), src, "/")
	if out.Kind != OutcomeError {
		t.Fatalf("Kind = %q, want %q", out.Kind, OutcomeError)
	}
	if out.Err == nil || out.Err.Code != domain.ErrCodeInvalidInput {
		t.Errorf("Err = %v, want invalid_input", out.Err)
	}
	if store.writes != 0 {
		t.Errorf("store writes = %d, want 0", store.writes)
	}
}

func TestGate_AdoptsExistingLocalAccount(t *testing.T) {
	ctx := context.Background()
	store := userstore.NewInMemoryStore()
	if _, err := store.Create(ctx, "jdoe@example.edu"); err != nil {
		t.Fatal(err)
	}
	gate := NewGate(store, nil, nil)

	out := gate.Authenticate(ctx, testConfig(), sessionAttrs(nil), "/")
	if out.Kind != OutcomeAuthorized {
		t.Fatalf("Kind = %q (err %v), want authorized", out.Kind, out.Err)
	}
	if out.Created {
		t.Error("Created = true for adopted account")
	}

	acct, _ := store.FindByUsername(ctx, "jdoe@example.edu")
	if !acct.FederationManaged {
		t.Error("adopted account not marked federation-managed")
	}
}

func TestGate_RejectsExistingAccountWhenAdoptionDisabled(t *testing.T) {
	ctx := context.Background()
	store := userstore.NewInMemoryStore()
	if _, err := store.Create(ctx, "jdoe@example.edu"); err != nil {
		t.Fatal(err)
	}
	gate := NewGate(store, nil, nil)
	cfg := testConfig()
	cfg.AdoptExisting = false

	out := gate.Authenticate(ctx, cfg, sessionAttrs(nil), "/")
	if out.Kind != OutcomeError {
		t.Fatalf("Kind = %q, want %q", out.Kind, OutcomeError)
	}
	if out.Err == nil || out.Err.Code != domain.ErrCodeInvalidInput {
		t.Errorf("Err = %v, want invalid_input", out.Err)
	}
}

func TestGate_SkipAbsentAttributesKeepsStoredFields(t *testing.T) {
	ctx := context.Background()
	store := userstore.NewInMemoryStore()
	gate := NewGate(store, nil, nil)
	cfg := testConfig()
	cfg.SkipAbsentAttributes = true

	gate.Authenticate(ctx, cfg, sessionAttrs(nil), "/")

	// Later login asserts no mail attribute.
	src := sessionAttrs(nil)
	delete(src, "mail")
	out := gate.Authenticate(ctx, cfg, src, "/")
	if out.Kind != OutcomeAuthorized {
		t.Fatalf("Kind = %q, want authorized", out.Kind)
	}

	acct, _ := store.FindByUsername(ctx, "jdoe@example.edu")
	if acct.Profile.Email != "jane@example.edu" {
		t.Errorf("Email = %q, want kept %q", acct.Profile.Email, "jane@example.edu")
	}
}

func TestGate_AbsentAttributeWipesFieldByDefault(t *testing.T) {
	ctx := context.Background()
	store := userstore.NewInMemoryStore()
	gate := NewGate(store, nil, nil)
	cfg := testConfig()

	gate.Authenticate(ctx, cfg, sessionAttrs(nil), "/")

	src := sessionAttrs(nil)
	delete(src, "mail")
	gate.Authenticate(ctx, cfg, src, "/")

	acct, _ := store.FindByUsername(ctx, "jdoe@example.edu")
	if acct.Profile.Email != "" {
		t.Errorf("Email = %q, want wiped", acct.Profile.Email)
	}
}

// raceStore simulates losing a create race: Create always conflicts while
// the account is visible to lookups.
type raceStore struct {
	ports.UserStore
}

func (s *raceStore) Create(ctx context.Context, username string) (*domain.Account, error) {
	if _, err := s.UserStore.Create(ctx, username); err != nil {
		return nil, err
	}
	_ = s.UserStore.SetFlag(ctx, 1, domain.FederationFlag, "1")
	return nil, ports.ErrAccountExists
}

func TestGate_CreateRaceFallsBackToWinner(t *testing.T) {
	ctx := context.Background()
	store := &raceStore{UserStore: userstore.NewInMemoryStore()}
	gate := NewGate(store, nil, nil)

	out := gate.Authenticate(ctx, testConfig(), sessionAttrs(nil), "/")
	if out.Kind != OutcomeAuthorized {
		t.Fatalf("Kind = %q (err %v), want authorized", out.Kind, out.Err)
	}
	if out.Created {
		t.Error("Created = true after losing the race")
	}
}

// flagFailStore fails every flag write.
type flagFailStore struct {
	ports.UserStore
}

func (s *flagFailStore) SetFlag(ctx context.Context, id int64, key, value string) error {
	return context.DeadlineExceeded
}

func TestGate_AdoptionFlagFailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	inner := userstore.NewInMemoryStore()
	if _, err := inner.Create(ctx, "jdoe@example.edu"); err != nil {
		t.Fatal(err)
	}
	gate := NewGate(&flagFailStore{UserStore: inner}, nil, nil)

	// The pre-existing account cannot be marked federation-managed, so the
	// login must fail the same way a failed create does.
	out := gate.Authenticate(ctx, testConfig(), sessionAttrs(nil), "/")
	if out.Kind != OutcomeError {
		t.Fatalf("Kind = %q, want %q", out.Kind, OutcomeError)
	}
	if out.Err == nil || out.Err.Code != domain.ErrCodeCreationFailed {
		t.Errorf("Err = %v, want account_creation_failed", out.Err)
	}

	acct, err := inner.FindByUsername(ctx, "jdoe@example.edu")
	if err != nil {
		t.Fatalf("FindByUsername error: %v", err)
	}
	if acct.FederationManaged {
		t.Error("account marked federation-managed despite flag write failure")
	}
}

// failingStore rejects every create.
type failingStore struct {
	ports.UserStore
}

func (s *failingStore) Create(ctx context.Context, username string) (*domain.Account, error) {
	return nil, context.DeadlineExceeded
}

func TestGate_CreationFailureIsTerminal(t *testing.T) {
	store := &failingStore{UserStore: userstore.NewInMemoryStore()}
	gate := NewGate(store, nil, nil)

	out := gate.Authenticate(context.Background(), testConfig(), sessionAttrs(nil), "/")
	if out.Kind != OutcomeError {
		t.Fatalf("Kind = %q, want %q", out.Kind, OutcomeError)
	}
	if out.Err == nil || out.Err.Code != domain.ErrCodeCreationFailed {
		t.Errorf("Err = %v, want account_creation_failed", out.Err)
	}
	if strings.Contains(out.Err.Message, "eppn=") {
		t.Error("attribute dump leaked without debug enabled")
	}
}

func TestGate_DebugIncludesAttributeDumpOnCreationFailure(t *testing.T) {
	store := &failingStore{UserStore: userstore.NewInMemoryStore()}
	gate := NewGate(store, nil, nil)
	cfg := testConfig()
	cfg.Debug = true

	out := gate.Authenticate(context.Background(), cfg, sessionAttrs(nil), "/")
	if out.Kind != OutcomeError {
		t.Fatalf("Kind = %q, want %q", out.Kind, OutcomeError)
	}
	if !strings.Contains(out.Err.Message, `eppn="jdoe@example.edu"`) {
		t.Errorf("debug message missing attribute dump: %q", out.Err.Message)
	}
}

func TestGate_Inspect(t *testing.T) {
	store := &writeCountingStore{UserStore: userstore.NewInMemoryStore()}
	gate := NewGate(store, nil, nil)

	got := gate.Inspect(testConfig(), sessionAttrs(nil))
	if !got.Authenticated {
		t.Fatal("Authenticated = false, want true")
	}
	if got.Identity.Username != "jdoe@example.edu" {
		t.Errorf("Username = %q, want %q", got.Identity.Username, "jdoe@example.edu")
	}
	if got.Role != "author" {
		t.Errorf("Role = %q, want %q", got.Role, "author")
	}
	if !got.RoleByRule {
		t.Error("RoleByRule = false, want true")
	}
	if store.writes != 0 {
		t.Errorf("store writes = %d, want 0", store.writes)
	}

	empty := gate.Inspect(testConfig(), headers.MapSource{})
	if empty.Authenticated {
		t.Error("Authenticated = true without a session")
	}
}
