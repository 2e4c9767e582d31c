package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/log"
	"github.com/ereinha3/eznas/pkg/types"
)

// Section names, each persisted to its own <name>.json file. Splitting
// sections means writing secrets never risks corrupting auth and vice
// versa.
const (
	SectionAuth     = "auth"
	SectionSecrets  = "secrets"
	SectionServices = "services"
	SectionRuns     = "runs"
	SectionPipeline = "pipeline"
)

var sections = []string{SectionAuth, SectionSecrets, SectionServices, SectionRuns, SectionPipeline}

// Store is file-backed persistence for the stack document and runtime
// state. Every write is atomic (temp file, fsync, rename).
type Store struct {
	root         string
	stackPath    string
	generatedDir string
	legacyPath   string
	readOnly     bool
	migrated     bool

	logger zerolog.Logger
}

// New creates a store rooted at dir. Unless readOnly, the generated/
// directory is created eagerly.
func New(root string, readOnly bool) *Store {
	s := &Store{
		root:         root,
		stackPath:    filepath.Join(root, "stack.yaml"),
		generatedDir: filepath.Join(root, "generated"),
		legacyPath:   filepath.Join(root, "state.json"),
		readOnly:     readOnly,
		logger:       log.WithComponent("store"),
	}
	if !readOnly {
		_ = os.MkdirAll(s.generatedDir, 0o755)
	}
	return s
}

// Root returns the state root directory.
func (s *Store) Root() string { return s.root }

// StackPath returns the path of the stack document.
func (s *Store) StackPath() string { return s.stackPath }

// GeneratedDir returns the directory rendered artifacts land in.
func (s *Store) GeneratedDir() string { return s.generatedDir }

func (s *Store) sectionPath(section string) string {
	return filepath.Join(s.root, section+".json")
}

// LoadStack reads and validates the stack document.
func (s *Store) LoadStack() (*types.StackConfig, error) {
	return config.Load(s.stackPath)
}

// SaveStack persists the stack document atomically.
func (s *Store) SaveStack(cfg *types.StackConfig) error {
	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.atomicWrite(s.stackPath, data)
}

// ensureMigrated splits a legacy monolithic state.json into section
// files. Runs once per process; a no-op when section files exist.
func (s *Store) ensureMigrated() {
	if s.migrated {
		return
	}
	s.migrated = true

	for _, section := range sections {
		if _, err := os.Stat(s.sectionPath(section)); err == nil {
			return
		}
	}

	raw, err := os.ReadFile(s.legacyPath)
	if err != nil {
		return
	}

	var legacy map[string]json.RawMessage
	if err := json.Unmarshal(raw, &legacy); err != nil {
		s.logger.Warn().Err(err).Msg("corrupted legacy state.json during migration")
		recovered := recoverJSON(raw)
		if recovered == nil {
			s.logger.Error().Msg("cannot recover legacy state.json, starting fresh")
			return
		}
		if err := json.Unmarshal(recovered, &legacy); err != nil {
			s.logger.Error().Msg("cannot recover legacy state.json, starting fresh")
			return
		}
	}

	s.logger.Info().Msg("migrating legacy state.json to section files")
	for _, section := range sections {
		data, ok := legacy[section]
		if !ok {
			continue
		}
		if err := s.saveSectionRaw(section, data); err != nil {
			s.logger.Warn().Err(err).Str("section", section).Msg("failed to migrate section")
			continue
		}
		s.logger.Info().Str("section", section).Msg("migrated section")
	}

	backup := s.legacyPath + ".migrated"
	if err := os.Rename(s.legacyPath, backup); err != nil {
		s.logger.Warn().Err(err).Msg("could not rename legacy state.json")
	} else {
		s.logger.Info().Str("backup", filepath.Base(backup)).Msg("legacy state.json renamed")
	}
}

// loadSection decodes one section file into out. Missing files leave out
// untouched. Corrupted files go through brace-balance recovery; the
// damaged original is moved aside with a .corrupted suffix.
func (s *Store) loadSection(section string, out any) error {
	s.ensureMigrated()
	path := s.sectionPath(section)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	if err := json.Unmarshal(raw, out); err == nil {
		return nil
	}

	s.logger.Warn().Str("file", filepath.Base(path)).Msg("corrupted section, attempting recovery")
	recovered := recoverJSON(raw)
	if recovered != nil {
		if uerr := json.Unmarshal(recovered, out); uerr == nil {
			backup := path + ".corrupted"
			_ = os.Rename(path, backup)
			if werr := s.saveSectionRaw(section, recovered); werr != nil {
				return werr
			}
			s.logger.Info().Str("file", filepath.Base(path)).Msg("recovered section")
			return nil
		}
	}
	s.logger.Warn().Str("file", filepath.Base(path)).Msg("could not recover section, starting empty")
	return nil
}

func (s *Store) saveSection(section string, data any) error {
	s.ensureMigrated()
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s section: %w", section, err)
	}
	return s.saveSectionRaw(section, encoded)
}

func (s *Store) saveSectionRaw(section string, data []byte) error {
	return s.atomicWrite(s.sectionPath(section), data)
}

// atomicWrite writes data with full durability: temp file in the target
// directory, fsync, rename.
func (s *Store) atomicWrite(path string, data []byte) error {
	if s.readOnly {
		return fmt.Errorf("store is read-only")
	}
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("failed to create pending file for %s: %w", filepath.Base(path), err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()
	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// recoverJSON extracts the first brace-balanced JSON object from
// possibly truncated or appended-to content. Returns nil when no
// balanced object exists.
func recoverJSON(content []byte) []byte {
	depth := 0
	end := 0
	for i, ch := range content {
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
		if end > 0 {
			break
		}
	}
	if end == 0 {
		return nil
	}
	candidate := content[:end]
	if !json.Valid(candidate) {
		return nil
	}
	return candidate
}

// LoadSecrets returns the secrets section.
func (s *Store) LoadSecrets() (types.SecretsState, error) {
	out := types.SecretsState{}
	if err := s.loadSection(SectionSecrets, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = types.SecretsState{}
	}
	return out, nil
}

// SaveSecrets persists the secrets section.
func (s *Store) SaveSecrets(secrets types.SecretsState) error {
	return s.saveSection(SectionSecrets, secrets)
}

// LoadAuth returns the auth section.
func (s *Store) LoadAuth() (*types.AuthState, error) {
	out := &types.AuthState{}
	if err := s.loadSection(SectionAuth, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveAuth persists the auth section.
func (s *Store) SaveAuth(auth *types.AuthState) error {
	return s.saveSection(SectionAuth, auth)
}

// HasUsers reports whether any accounts exist in the auth section.
func (s *Store) HasUsers() (bool, error) {
	auth, err := s.LoadAuth()
	if err != nil {
		return false, err
	}
	return len(auth.Users) > 0, nil
}

// LoadServicesState returns the per-service runtime state section.
func (s *Store) LoadServicesState() (types.ServicesState, error) {
	out := types.ServicesState{}
	if err := s.loadSection(SectionServices, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = types.ServicesState{}
	}
	return out, nil
}

// SaveServicesState persists the per-service runtime state section.
func (s *Store) SaveServicesState(state types.ServicesState) error {
	return s.saveSection(SectionServices, state)
}

// LoadPipelineState returns the pipeline ledger section.
func (s *Store) LoadPipelineState() (*types.PipelineState, error) {
	out := &types.PipelineState{}
	if err := s.loadSection(SectionPipeline, out); err != nil {
		return nil, err
	}
	if out.Processed == nil {
		out.Processed = make(map[string]types.PipelineItem)
	}
	return out, nil
}

// SavePipelineState persists the pipeline ledger section.
func (s *Store) SavePipelineState(state *types.PipelineState) error {
	return s.saveSection(SectionPipeline, state)
}
