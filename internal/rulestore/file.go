package rulestore

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/agentward/agentward/pkg/types"
)

// ruleFile is the on-disk YAML shape of a file-backed rule store. Rules
// carry their own tenant/agent scope fields; FetchRules filters on them.
type ruleFile struct {
	Blocked    []types.PatternRule `yaml:"blocked"`
	HighRisk   []types.PatternRule `yaml:"high_risk"`
	Exceptions []types.PatternRule `yaml:"exceptions"`
}

// FileStore is a read-only rule store backed by a single YAML file.
// Reload (typically driven by a Watcher) re-reads the file; readers are
// never blocked by a reload in progress.
type FileStore struct {
	path string

	mu    sync.RWMutex
	kinds map[types.RuleKind][]types.PatternRule
}

// OpenFile loads a YAML rule file into a FileStore.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the backing file. On parse failure the previously loaded
// rules stay in effect and the error is returned for the caller to log.
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read rule file: %w", err)
	}
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("parse rule file: %w", err)
	}

	kinds := map[types.RuleKind][]types.PatternRule{
		types.KindBlocked:   rf.Blocked,
		types.KindHighRisk:  rf.HighRisk,
		types.KindException: rf.Exceptions,
	}

	s.mu.Lock()
	s.kinds = kinds
	s.mu.Unlock()
	return nil
}

// FetchRules returns rules whose scope fields match the requested scope.
func (s *FileStore) FetchRules(_ context.Context, scope types.ScopeKey, kind types.RuleKind) ([]types.PatternRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.PatternRule
	for _, r := range s.kinds[kind] {
		if r.TenantID == scope.TenantID && r.AgentID == scope.AgentID {
			out = append(out, r)
		}
	}
	return out, nil
}
