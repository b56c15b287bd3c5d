package configstore

import (
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

// FileStore persists configuration to a local JSON or YAML file, chosen by
// extension. Saves are atomic (write to a temp file, then rename) so a crash
// mid-save never leaves a partially applied configuration.
type FileStore struct {
	path   string
	logger *zap.Logger

	mu  sync.RWMutex
	cfg domain.Config
}

// NewFileStore opens the configuration file at path. If the file does not
// exist it is created from seed; otherwise the file's contents win over the
// seed.
func NewFileStore(path string, seed domain.Config, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FileStore{path: path, logger: logger}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.cfg = seed.Clone()
		if err := s.write(s.cfg); err != nil {
			return nil, err
		}
		logger.Info("created configuration file", zap.String("path", path))
	case err != nil:
		return nil, fmt.Errorf("read configuration file: %w", err)
	default:
		cfg, err := decode(path, data)
		if err != nil {
			return nil, err
		}
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("configuration file %s: %w", path, err)
		}
		s.cfg = cfg
	}
	return s, nil
}

// Load returns a snapshot of the current configuration.
func (s *FileStore) Load() (domain.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone(), nil
}

// Save validates and atomically replaces the stored configuration.
// On validation failure nothing is written and the previous configuration
// stays in effect.
func (s *FileStore) Save(cfg domain.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(cfg); err != nil {
		return err
	}
	s.cfg = cfg.Clone()
	s.logger.Info("configuration saved", zap.String("path", s.path))
	return nil
}

func (s *FileStore) write(cfg domain.Config) error {
	data, err := encode(s.path, cfg)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write configuration file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace configuration file: %w", err)
	}
	return nil
}

func decode(path string, data []byte) (domain.Config, error) {
	var cfg domain.Config
	if isYAML(path) {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse YAML configuration: %w", err)
		}
		return cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse JSON configuration: %w", err)
	}
	return cfg, nil
}

func encode(path string, cfg domain.Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(cfg)
	}
	return json.MarshalIndent(cfg, "", "  ")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Interface guard
var _ ports.ConfigStore = (*FileStore)(nil)
