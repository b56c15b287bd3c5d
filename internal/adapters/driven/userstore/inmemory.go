// Package userstore provides user-store collaborator adapters: an in-memory
// store, a file-backed store, and a REST client for a host application's
// user API.
package userstore

import (
	"context"
	"sync"

	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
	"github.com/bshelton229/caddy-shibboleth/internal/core/ports"
)

type record struct {
	account domain.Account
	flags   map[string]string
}

// InMemoryStore is a mutex-protected map store. Create-if-absent is atomic
// under the store mutex, which is the collaborator guarantee the resolution
// engine relies on for concurrent logins of the same username.
type InMemoryStore struct {
	mu     sync.Mutex
	nextID int64
	byName map[string]*record
	byID   map[int64]*record
}

// NewInMemoryStore creates an empty in-memory user store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nextID: 1,
		byName: make(map[string]*record),
		byID:   make(map[int64]*record),
	}
}

// FindByUsername looks up an account by username.
func (s *InMemoryStore) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byName[username]
	if !ok {
		return nil, ports.ErrAccountNotFound
	}
	return s.view(rec), nil
}

// Create provisions an account holding only the username.
func (s *InMemoryStore) Create(ctx context.Context, username string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[username]; ok {
		return nil, ports.ErrAccountExists
	}
	rec := &record{
		account: domain.Account{ID: s.nextID, Username: username},
		flags:   make(map[string]string),
	}
	s.nextID++
	s.byName[username] = rec
	s.byID[rec.account.ID] = rec
	return s.view(rec), nil
}

// UpdateProfile replaces the account's profile fields.
func (s *InMemoryStore) UpdateProfile(ctx context.Context, id int64, fields domain.ProfileFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return ports.ErrAccountNotFound
	}
	rec.account.Profile = cloneProfile(fields)
	return nil
}

// SetRole assigns the account's role.
func (s *InMemoryStore) SetRole(ctx context.Context, id int64, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return ports.ErrAccountNotFound
	}
	rec.account.Role = role
	return nil
}

// GetFlag reads a key/value tag; missing flags read as "".
func (s *InMemoryStore) GetFlag(ctx context.Context, id int64, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return "", ports.ErrAccountNotFound
	}
	return rec.flags[key], nil
}

// SetFlag writes a key/value tag.
func (s *InMemoryStore) SetFlag(ctx context.Context, id int64, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return ports.ErrAccountNotFound
	}
	rec.flags[key] = value
	return nil
}

// view returns an independent copy with the provenance flag surfaced as a
// typed field.
func (s *InMemoryStore) view(rec *record) *domain.Account {
	out := rec.account
	out.Profile = cloneProfile(rec.account.Profile)
	out.FederationManaged = rec.flags[domain.FederationFlag] != ""
	return &out
}

func cloneProfile(p domain.ProfileFields) domain.ProfileFields {
	out := p
	if p.Extra != nil {
		out.Extra = make(map[string]string, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Interface guard
var _ ports.UserStore = (*InMemoryStore)(nil)
