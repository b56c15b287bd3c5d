package configstore

import (
	"testing"
)

func TestInMemoryStore_SaveAndLoad(t *testing.T) {
	s := NewInMemoryStore(seedConfig())

	cfg, err := s.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.DefaultRole != "subscriber" {
		t.Errorf("DefaultRole = %q, want %q", cfg.DefaultRole, "subscriber")
	}

	cfg.DefaultRole = "editor"
	if err := s.Save(cfg); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	again, _ := s.Load()
	if again.DefaultRole != "editor" {
		t.Errorf("DefaultRole = %q, want %q", again.DefaultRole, "editor")
	}
}

func TestInMemoryStore_SaveValidates(t *testing.T) {
	s := NewInMemoryStore(seedConfig())

	bad := seedConfig()
	bad.DefaultRole = "not-in-catalog"
	if err := s.Save(bad); err == nil {
		t.Fatal("Save accepted an invalid configuration")
	}

	cfg, _ := s.Load()
	if cfg.DefaultRole != "subscriber" {
		t.Errorf("DefaultRole = %q, want %q after rejected save", cfg.DefaultRole, "subscriber")
	}
}
