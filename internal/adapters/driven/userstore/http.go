package userstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
	"github.com/bshelton229/caddy-shibboleth/internal/core/ports"
)

// HTTPStore talks to the host application's user API over REST. It is the
// remote form of the user-store collaborator: failure characteristics are
// surfaced as-is, with no retry or masking here.
//
// Expected endpoints, all JSON:
//
//	GET    {base}/users?username=<name>       200 account | 404
//	POST   {base}/users       {"username"}    201 account | 409
//	PUT    {base}/users/{id}/profile          204
//	PUT    {base}/users/{id}/role             204
//	GET    {base}/users/{id}/flags/{key}      200 {"value"} | 404
//	PUT    {base}/users/{id}/flags/{key}      204
type HTTPStore struct {
	base   *url.URL
	client *http.Client
	logger *zap.Logger
}

// NewHTTPStore creates a REST user-store client for the given base URL.
func NewHTTPStore(base string, logger *zap.Logger) (*HTTPStore, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse user store URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("user store URL %q must be absolute", base)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPStore{
		base:   u,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}, nil
}

// wireAccount is the API account shape.
type wireAccount struct {
	ID          int64             `json:"id"`
	Username    string            `json:"username"`
	Nicename    string            `json:"nicename,omitempty"`
	FirstName   string            `json:"first_name,omitempty"`
	LastName    string            `json:"last_name,omitempty"`
	DisplayName string            `json:"display_name,omitempty"`
	Email       string            `json:"email,omitempty"`
	Role        string            `json:"role,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
	Flags       map[string]string `json:"flags,omitempty"`
}

func (w wireAccount) toDomain() *domain.Account {
	return &domain.Account{
		ID:       w.ID,
		Username: w.Username,
		Profile: domain.ProfileFields{
			Nicename:    w.Nicename,
			FirstName:   w.FirstName,
			LastName:    w.LastName,
			DisplayName: w.DisplayName,
			Email:       w.Email,
			Extra:       w.Extra,
		},
		Role:              w.Role,
		FederationManaged: w.Flags[domain.FederationFlag] != "",
	}
}

// FindByUsername looks up an account by username.
func (s *HTTPStore) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	endpoint := s.endpoint("users")
	endpoint.RawQuery = url.Values{"username": {username}}.Encode()

	var acct wireAccount
	status, err := s.do(ctx, http.MethodGet, endpoint.String(), nil, &acct)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return acct.toDomain(), nil
	case http.StatusNotFound:
		return nil, ports.ErrAccountNotFound
	default:
		return nil, fmt.Errorf("user store lookup: unexpected status %d", status)
	}
}

// Create provisions an account with only the username.
func (s *HTTPStore) Create(ctx context.Context, username string) (*domain.Account, error) {
	body := map[string]string{"username": username}
	var acct wireAccount
	status, err := s.do(ctx, http.MethodPost, s.endpoint("users").String(), body, &acct)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK, http.StatusCreated:
		return acct.toDomain(), nil
	case http.StatusConflict:
		return nil, ports.ErrAccountExists
	default:
		return nil, fmt.Errorf("user store create: unexpected status %d", status)
	}
}

// UpdateProfile replaces the account's profile fields.
func (s *HTTPStore) UpdateProfile(ctx context.Context, id int64, fields domain.ProfileFields) error {
	endpoint := s.endpoint("users", fmt.Sprint(id), "profile")
	status, err := s.do(ctx, http.MethodPut, endpoint.String(), fields, nil)
	if err != nil {
		return err
	}
	return expectNoContent("profile update", status)
}

// SetRole assigns the account's role.
func (s *HTTPStore) SetRole(ctx context.Context, id int64, role string) error {
	endpoint := s.endpoint("users", fmt.Sprint(id), "role")
	status, err := s.do(ctx, http.MethodPut, endpoint.String(), map[string]string{"role": role}, nil)
	if err != nil {
		return err
	}
	return expectNoContent("role update", status)
}

// GetFlag reads a key/value tag; a 404 reads as "".
func (s *HTTPStore) GetFlag(ctx context.Context, id int64, key string) (string, error) {
	endpoint := s.endpoint("users", fmt.Sprint(id), "flags", key)
	var out struct {
		Value string `json:"value"`
	}
	status, err := s.do(ctx, http.MethodGet, endpoint.String(), nil, &out)
	if err != nil {
		return "", err
	}
	switch status {
	case http.StatusOK:
		return out.Value, nil
	case http.StatusNotFound:
		return "", nil
	default:
		return "", fmt.Errorf("user store flag read: unexpected status %d", status)
	}
}

// SetFlag writes a key/value tag.
func (s *HTTPStore) SetFlag(ctx context.Context, id int64, key, value string) error {
	endpoint := s.endpoint("users", fmt.Sprint(id), "flags", key)
	status, err := s.do(ctx, http.MethodPut, endpoint.String(), map[string]string{"value": value}, nil)
	if err != nil {
		return err
	}
	return expectNoContent("flag update", status)
}

func (s *HTTPStore) endpoint(parts ...string) *url.URL {
	u := *s.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(parts, "/")
	return &u
}

// do performs one request and decodes a JSON body into out when out is
// non-nil and the response carries one. The HTTP status is always returned
// so callers can map it.
func (s *HTTPStore) do(ctx context.Context, method, endpoint string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode user store request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("build user store request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("user store request: %w", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("decode user store response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func expectNoContent(op string, status int) error {
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ports.ErrAccountNotFound
	default:
		return fmt.Errorf("user store %s: unexpected status %d", op, status)
	}
}

// Interface guard
var _ ports.UserStore = (*HTTPStore)(nil)
