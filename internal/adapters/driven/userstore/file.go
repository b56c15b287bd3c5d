package userstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
	"github.com/bshelton229/caddy-shibboleth/internal/core/ports"
)

// storedAccount is the on-disk account shape, flags included.
type storedAccount struct {
	Account domain.Account    `json:"account" yaml:"account"`
	Flags   map[string]string `json:"flags,omitempty" yaml:"flags,omitempty"`
}

type fileData struct {
	NextID   int64           `json:"next_id" yaml:"next_id"`
	Accounts []storedAccount `json:"accounts" yaml:"accounts"`
}

// FileStore persists accounts to a local JSON or YAML file. It backs
// single-node deployments where the gate itself owns the user records;
// every mutation is flushed with an atomic replace.
type FileStore struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	data fileData
}

// NewFileStore opens (or initializes) the account file at path.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FileStore{path: path, logger: logger}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.data = fileData{NextID: 1}
	case err != nil:
		return nil, fmt.Errorf("read user store file: %w", err)
	default:
		if err := decodeFile(path, raw, &s.data); err != nil {
			return nil, err
		}
		if s.data.NextID == 0 {
			s.data.NextID = 1
		}
	}
	return s, nil
}

// FindByUsername looks up an account by username.
func (s *FileStore) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.find(username)
	if rec == nil {
		return nil, ports.ErrAccountNotFound
	}
	return viewStored(rec), nil
}

// Create provisions an account and flushes it to disk.
func (s *FileStore) Create(ctx context.Context, username string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.find(username) != nil {
		return nil, ports.ErrAccountExists
	}
	rec := storedAccount{
		Account: domain.Account{ID: s.data.NextID, Username: username},
		Flags:   make(map[string]string),
	}
	s.data.NextID++
	s.data.Accounts = append(s.data.Accounts, rec)
	if err := s.flush(); err != nil {
		// roll the in-memory append back so a failed create is not
		// observable on the next lookup
		s.data.Accounts = s.data.Accounts[:len(s.data.Accounts)-1]
		s.data.NextID--
		return nil, err
	}
	return viewStored(&rec), nil
}

// UpdateProfile replaces the account's profile fields and flushes.
func (s *FileStore) UpdateProfile(ctx context.Context, id int64, fields domain.ProfileFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID(id)
	if rec == nil {
		return ports.ErrAccountNotFound
	}
	rec.Account.Profile = cloneProfile(fields)
	return s.flush()
}

// SetRole assigns the account's role and flushes.
func (s *FileStore) SetRole(ctx context.Context, id int64, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID(id)
	if rec == nil {
		return ports.ErrAccountNotFound
	}
	rec.Account.Role = role
	return s.flush()
}

// GetFlag reads a key/value tag; missing flags read as "".
func (s *FileStore) GetFlag(ctx context.Context, id int64, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID(id)
	if rec == nil {
		return "", ports.ErrAccountNotFound
	}
	return rec.Flags[key], nil
}

// SetFlag writes a key/value tag and flushes. Rewriting the current value is
// a no-op without disk I/O.
func (s *FileStore) SetFlag(ctx context.Context, id int64, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID(id)
	if rec == nil {
		return ports.ErrAccountNotFound
	}
	if rec.Flags == nil {
		rec.Flags = make(map[string]string)
	}
	if rec.Flags[key] == value {
		return nil
	}
	rec.Flags[key] = value
	return s.flush()
}

func (s *FileStore) find(username string) *storedAccount {
	for i := range s.data.Accounts {
		if s.data.Accounts[i].Account.Username == username {
			return &s.data.Accounts[i]
		}
	}
	return nil
}

func (s *FileStore) byID(id int64) *storedAccount {
	for i := range s.data.Accounts {
		if s.data.Accounts[i].Account.ID == id {
			return &s.data.Accounts[i]
		}
	}
	return nil
}

func (s *FileStore) flush() error {
	data, err := encodeFile(s.path, s.data)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write user store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace user store file: %w", err)
	}
	return nil
}

func viewStored(rec *storedAccount) *domain.Account {
	out := rec.Account
	out.Profile = cloneProfile(rec.Account.Profile)
	out.FederationManaged = rec.Flags[domain.FederationFlag] != ""
	return &out
}

func decodeFile(path string, data []byte, into *fileData) error {
	if isYAML(path) {
		if err := yaml.Unmarshal(data, into); err != nil {
			return fmt.Errorf("parse YAML user store: %w", err)
		}
		return nil
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse JSON user store: %w", err)
	}
	return nil
}

func encodeFile(path string, data fileData) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(data)
	}
	return json.MarshalIndent(data, "", "  ")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Interface guard
var _ ports.UserStore = (*FileStore)(nil)
