package userstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
	"github.com/bshelton229/caddy-shibboleth/internal/core/ports"
)

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.json")

	s, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	acct, err := s.Create(ctx, "jdoe@example.edu")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := s.UpdateProfile(ctx, acct.ID, domain.ProfileFields{FirstName: "Jane", Email: "jane@example.edu"}); err != nil {
		t.Fatalf("UpdateProfile error: %v", err)
	}
	if err := s.SetRole(ctx, acct.ID, "editor"); err != nil {
		t.Fatalf("SetRole error: %v", err)
	}
	if err := s.SetFlag(ctx, acct.ID, domain.FederationFlag, "1"); err != nil {
		t.Fatalf("SetFlag error: %v", err)
	}

	reopened, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	got, err := reopened.FindByUsername(ctx, "jdoe@example.edu")
	if err != nil {
		t.Fatalf("FindByUsername error: %v", err)
	}
	if got.ID != acct.ID {
		t.Errorf("ID = %d, want %d", got.ID, acct.ID)
	}
	if got.Profile.FirstName != "Jane" {
		t.Errorf("FirstName = %q, want %q", got.Profile.FirstName, "Jane")
	}
	if got.Role != "editor" {
		t.Errorf("Role = %q, want %q", got.Role, "editor")
	}
	if !got.FederationManaged {
		t.Error("FederationManaged = false after reopen")
	}
}

func TestFileStore_IDsContinueAfterReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.json")

	s, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	first, _ := s.Create(ctx, "first")

	reopened, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	second, err := reopened.Create(ctx, "second")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("second ID = %d, want > %d", second.ID, first.ID)
	}
}

func TestFileStore_DuplicateCreate(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "users.json"), nil)
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	if _, err := s.Create(ctx, "jdoe"); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	_, err = s.Create(ctx, "jdoe")
	if !errors.Is(err, ports.ErrAccountExists) {
		t.Errorf("error = %v, want ErrAccountExists", err)
	}
}

func TestFileStore_YAMLFormat(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.yaml")

	s, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	if _, err := s.Create(ctx, "jdoe"); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	reopened, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	if _, err := reopened.FindByUsername(ctx, "jdoe"); err != nil {
		t.Errorf("FindByUsername after YAML reopen: %v", err)
	}
}

func TestFileStore_MissingAccountOperations(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "users.json"), nil)
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}

	if err := s.SetRole(ctx, 42, "editor"); !errors.Is(err, ports.ErrAccountNotFound) {
		t.Errorf("SetRole error = %v, want ErrAccountNotFound", err)
	}
	if err := s.UpdateProfile(ctx, 42, domain.ProfileFields{}); !errors.Is(err, ports.ErrAccountNotFound) {
		t.Errorf("UpdateProfile error = %v, want ErrAccountNotFound", err)
	}
}
