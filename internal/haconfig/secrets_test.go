package haconfig

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

type countingFS struct {
	OSFileSystem
	stats int
	reads int
}

func (c *countingFS) Stat(name string) (fs.FileInfo, error) {
	c.stats++
	return c.OSFileSystem.Stat(name)
}

func (c *countingFS) ReadFile(name string) ([]byte, error) {
	c.reads++
	return c.OSFileSystem.ReadFile(name)
}

func TestSecretStoreDirectHit(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	writeFiles(t, home, map[string]string{
		"secrets.yaml": "db_url: postgresql://u:p@h/db\nport: 5432\nnested:\n  skip: me\n",
	})

	scope, err := NewSecretStore().Resolve(home, home)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if want := []string{"db_url", "port"}; !slices.Equal(scope.Names(), want) {
		t.Fatalf("unexpected secret names: got %v want %v", scope.Names(), want)
	}
	if v, _ := scope.Lookup("port"); v != "5432" {
		t.Fatalf("expected numeric secret as text, got %q", v)
	}
}

func TestSecretStoreWalksUpToNearestScope(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	writeFiles(t, home, map[string]string{
		"secrets.yaml":                "root_secret: r\n",
		"packages/secrets.yaml":       "pkg_secret: p\n",
		"packages/deep/sub/file.yaml": "a: 1\n",
	})

	scope, err := NewSecretStore().Resolve(filepath.Join(home, "packages", "deep", "sub"), home)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	// Nearest scope only, never a union with the root secrets.
	if want := []string{"pkg_secret"}; !slices.Equal(scope.Names(), want) {
		t.Fatalf("unexpected secret names: got %v want %v", scope.Names(), want)
	}
}

func TestSecretStoreEmptyWhenNothingFound(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	writeFiles(t, home, map[string]string{"a/b/file.yaml": "x: 1\n"})

	scope, err := NewSecretStore().Resolve(filepath.Join(home, "a", "b"), home)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if scope.Len() != 0 {
		t.Fatalf("expected empty scope, got %v", scope.Names())
	}
}

func TestSecretStoreCachesWalkResult(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	writeFiles(t, home, map[string]string{
		"secrets.yaml":   "token: abc\n",
		"sub/dir/x.yaml": "a: 1\n",
	})
	fsys := &countingFS{}
	store := NewSecretStore(WithFileSystem(fsys))
	dir := filepath.Join(home, "sub", "dir")

	first, err := store.Resolve(dir, home)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	stats, reads := fsys.stats, fsys.reads

	second, err := store.Resolve(dir, home)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if fsys.stats != stats || fsys.reads != reads {
		t.Fatalf("expected cached resolve without filesystem access, got %d stats and %d reads more",
			fsys.stats-stats, fsys.reads-reads)
	}
	if !slices.Equal(first.Names(), second.Names()) {
		t.Fatalf("expected identical scopes, got %v and %v", first.Names(), second.Names())
	}
	if v, _ := second.Lookup("token"); v != "abc" {
		t.Fatalf("unexpected token %q", v)
	}
}

func TestSecretStoreDirectHitIsNotCached(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	writeFiles(t, home, map[string]string{"secrets.yaml": "token: abc\n"})
	fsys := &countingFS{}
	store := NewSecretStore(WithFileSystem(fsys))

	for i := 0; i < 2; i++ {
		if _, err := store.Resolve(home, home); err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
	}
	if fsys.reads != 2 {
		t.Fatalf("expected the secrets file to be read on every call, got %d reads", fsys.reads)
	}
}

func TestSecretStoreCacheIsPerInstance(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	writeFiles(t, home, map[string]string{"sub/x.yaml": "a: 1\n"})
	dir := filepath.Join(home, "sub")

	first := NewSecretStore()
	if scope, _ := first.Resolve(dir, home); scope.Len() != 0 {
		t.Fatalf("expected empty scope before secrets exist")
	}

	writeFiles(t, home, map[string]string{"secrets.yaml": "token: abc\n"})

	if scope, _ := first.Resolve(dir, home); scope.Len() != 0 {
		t.Fatalf("expected first store to keep its cached empty scope")
	}
	if scope, _ := NewSecretStore().Resolve(dir, home); scope.Len() != 1 {
		t.Fatalf("expected a fresh store to see the new secrets file")
	}
}

func TestSecretStoreBoundaryModes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"secrets.yaml":          "outside: yes\n",
		"ha/configuration.yaml": "a: 1\n",
		"ha-old/pkg/x.yaml":     "a: 1\n",
	})
	home := filepath.Join(root, "ha")
	dir := filepath.Join(root, "ha-old", "pkg")

	scope, err := NewSecretStore().Resolve(dir, home)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if scope.Len() != 0 {
		t.Fatalf("expected ancestry boundary to stop outside home, got %v", scope.Names())
	}

	legacy, err := NewSecretStore(WithBoundary(BoundaryLexicalLength)).Resolve(dir, home)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if v, ok := legacy.Lookup("outside"); !ok || v != "yes" {
		t.Fatalf("expected lexical boundary to reach the sibling's parent, got %v", legacy.Names())
	}
}

func TestSecretStoreDoesNotWalkAboveHome(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"secrets.yaml":     "outside: yes\n",
		"ha/pkg/file.yaml": "a: 1\n",
	})
	home := filepath.Join(root, "ha")

	scope, err := NewSecretStore().Resolve(filepath.Join(home, "pkg"), home)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if scope.Len() != 0 {
		t.Fatalf("expected walk to stop at home, got %v", scope.Names())
	}
}

func TestSecretStoreInvalidSecretsFile(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	writeFiles(t, home, map[string]string{"secrets.yaml": "a: [unclosed\n"})

	if _, err := NewSecretStore().Resolve(home, home); err == nil {
		t.Fatalf("expected parse error for invalid secrets file")
	}
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}
