package haconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Loader turns a Home Assistant style configuration file, or a directory of
// them, into a Node tree with secrets substituted and includes resolved.
// A Loader is not safe for concurrent use.
type Loader struct {
	fs      FileSystem
	logger  *zap.Logger
	policy  IncludePolicy
	suffix  string
	secrets *SecretStore
}

// NewLoader creates a Loader with its own secret cache.
func NewLoader(opts ...Option) *Loader {
	o := newOptions(opts)
	return &Loader{
		fs:      o.fs,
		logger:  o.logger,
		policy:  o.policy,
		suffix:  o.suffix,
		secrets: newSecretStore(o),
	}
}

// Secrets exposes the loader's secret store.
func (l *Loader) Secrets() *SecretStore {
	return l.secrets
}

// loadPass tracks the files currently being loaded so include cycles are
// caught instead of recursing forever.
type loadPass struct {
	home   string
	active map[string]bool
}

// Load reads path, which must exist and parse. A directory yields a sequence
// of file trees; a file yields a mapping carrying the reserved additional
// key. Failures below the entry point follow the loader's include policy.
func (l *Loader) Load(path, home string) (*Node, error) {
	pass := &loadPass{home: home, active: make(map[string]bool)}
	l.logger.Debug("loading configuration", zap.String("path", path), zap.String("home", home))
	return l.load(path, pass)
}

func (l *Loader) load(path string, pass *loadPass) (*Node, error) {
	info, err := l.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return l.loadDir(path, pass)
	}
	return l.loadFile(path, pass)
}

func (l *Loader) loadDir(dir string, pass *loadPass) (*Node, error) {
	var files []string
	err := l.fs.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, l.suffix) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	out := Seq()
	for _, file := range files {
		tree, err := l.nested(file, pass)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, tree)
	}
	return out, nil
}

func (l *Loader) loadFile(path string, pass *loadPass) (*Node, error) {
	key := canonicalPath(path)
	if pass.active[key] {
		return nil, fmt.Errorf("%w: %s", ErrIncludeCycle, path)
	}
	pass.active[key] = true
	defer delete(pass.active, key)

	data, err := l.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	scope, err := l.secrets.Resolve(dir, pass.home)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("secrets resolved", zap.String("path", path), zap.Int("secrets", scope.Len()))

	text, targets := ExtractIncludes(Sanitize(string(data)))
	text = Substitute(text, scope)

	tree := Map()
	if strings.TrimSpace(text) != "" {
		tree, err = parseDocument(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
		}
	}

	additional := Map()
	for _, target := range targets {
		sub, err := l.nested(filepath.Join(dir, target), pass)
		if err != nil {
			return nil, err
		}
		additional.Set(target, sub)
	}
	tree.Set(AdditionalKey, additional)
	return tree, nil
}

func (l *Loader) nested(path string, pass *loadPass) (*Node, error) {
	tree, err := l.load(path, pass)
	if err == nil {
		return tree, nil
	}
	if l.policy == IncludeStrict || errors.Is(err, ErrIncludeCycle) {
		return nil, err
	}
	l.logger.Warn("skipping include that could not be loaded", zap.String("path", path), zap.Error(err))
	return Map(), nil
}
