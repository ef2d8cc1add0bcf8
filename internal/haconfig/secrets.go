package haconfig

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Secret is one name/value pair from a secrets file.
type Secret struct {
	Name  string
	Value string
}

// SecretScope holds the secrets visible to files in one directory, in file
// order.
type SecretScope struct {
	entries []Secret
}

// NewSecretScope builds a scope from explicit entries.
func NewSecretScope(entries ...Secret) SecretScope {
	return SecretScope{entries: entries}
}

// Len returns the number of secrets in the scope.
func (s SecretScope) Len() int {
	return len(s.entries)
}

// Lookup returns the value of the named secret.
func (s SecretScope) Lookup(name string) (string, bool) {
	for _, e := range s.entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return "", false
}

// Names lists the secret names in scope order.
func (s SecretScope) Names() []string {
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.Name)
	}
	return names
}

// SecretStore resolves the secret scope of a directory. Results found by
// walking up the tree are memoised for the lifetime of the store; a secrets
// file found directly in the queried directory is re-read on every call.
type SecretStore struct {
	fs       FileSystem
	logger   *zap.Logger
	boundary BoundaryMode
	cache    map[string]SecretScope
}

// NewSecretStore creates a store with an empty cache.
func NewSecretStore(opts ...Option) *SecretStore {
	o := newOptions(opts)
	return newSecretStore(o)
}

func newSecretStore(o options) *SecretStore {
	return &SecretStore{
		fs:       o.fs,
		logger:   o.logger,
		boundary: o.boundary,
		cache:    make(map[string]SecretScope),
	}
}

// Resolve returns the secrets that apply to files in dir. When dir has no
// secrets file the nearest non-empty ancestor scope inside home is used.
// A missing secrets file is not an error.
func (s *SecretStore) Resolve(dir, home string) (SecretScope, error) {
	key := canonicalPath(dir)
	if scope, ok := s.cache[key]; ok {
		return scope, nil
	}

	file := filepath.Join(key, SecretsFileName)
	if _, err := s.fs.Stat(file); err == nil {
		scope, err := s.read(file)
		if err != nil {
			return SecretScope{}, err
		}
		s.logger.Debug("parsed secrets file", zap.String("path", file), zap.Int("secrets", scope.Len()))
		return scope, nil
	}

	s.cache[key] = SecretScope{}
	homeKey := canonicalPath(home)
	current := key
	for s.canAscend(current, homeKey) {
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
		s.logger.Debug("looking for secrets in parent directory", zap.String("dir", current))
		upper, err := s.Resolve(current, home)
		if err != nil {
			return SecretScope{}, err
		}
		if upper.Len() > 0 {
			s.cache[key] = upper
			return upper, nil
		}
	}
	return SecretScope{}, nil
}

func (s *SecretStore) canAscend(dir, home string) bool {
	if s.boundary == BoundaryLexicalLength {
		return len(dir) > len(home)
	}
	return isStrictDescendant(dir, home)
}

func isStrictDescendant(dir, home string) bool {
	rel, err := filepath.Rel(home, dir)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

func (s *SecretStore) read(file string) (SecretScope, error) {
	data, err := s.fs.ReadFile(file)
	if err != nil {
		return SecretScope{}, fmt.Errorf("read secrets %s: %w", file, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return SecretScope{}, fmt.Errorf("%w: secrets %s: %v", ErrParse, file, err)
	}
	root := fromYAML(&doc)
	if root == nil || root.Kind != MapNode {
		return SecretScope{}, nil
	}
	entries := make([]Secret, 0, len(root.Entries))
	for _, e := range root.Entries {
		if e.Value == nil || e.Value.Kind != ScalarNode {
			continue
		}
		entries = append(entries, Secret{Name: e.Key, Value: e.Value.Value})
	}
	return SecretScope{entries: entries}, nil
}
