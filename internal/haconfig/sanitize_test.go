package haconfig

import (
	"slices"
	"testing"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "DropsCommentLines",
			in:   "# header\nhttp:\n  # nested comment\n  port: 8123",
			want: "http:\n  port: 8123",
		},
		{
			name: "NeutralisesAllowListedTags",
			in:   "token: !env_var TOKEN\nname: !input device",
			want: "token: env_var TOKEN\nname: input device",
		},
		{
			name: "KeepsOtherTags",
			in:   "password: !secret db_password",
			want: "password: !secret db_password",
		},
		{
			name: "KeepsInlineHashes",
			in:   "color: '#ff0000'",
			want: "color: '#ff0000'",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Sanitize(tc.in); got != tc.want {
				t.Fatalf("unexpected output:\n got %q\nwant %q", got, tc.want)
			}
		})
	}
}

func TestSanitizeIsIdempotentOnCleanText(t *testing.T) {
	t.Parallel()

	clean := "recorder:\n  db_url: sqlite:////config/db\n  purge_keep_days: 10\nlist:\n  - a\n  - b"
	once, err := parseDocument(Sanitize(clean))
	if err != nil {
		t.Fatalf("parse once: %v", err)
	}
	twice, err := parseDocument(Sanitize(Sanitize(clean)))
	if err != nil {
		t.Fatalf("parse twice: %v", err)
	}
	if !equalTrees(once, twice) {
		t.Fatalf("expected identical trees after repeated sanitising")
	}
}

func TestExtractIncludes(t *testing.T) {
	t.Parallel()

	in := "homeassistant:\n" +
		"  packages: !include_dir_named packages\n" +
		"automation: !include automations.yaml\n" +
		"script: !include_dir_merge_list scripts/\n" +
		"sensor: !include_dir_list sensors\n" +
		"group: !include_dir_merge_named groups # legacy\n" +
		"again: !include automations.yaml\n" +
		"name: Home"

	out, targets := ExtractIncludes(in)

	want := []string{"packages", "automations.yaml", "scripts/", "sensors", "groups", "automations.yaml"}
	if !slices.Equal(targets, want) {
		t.Fatalf("unexpected targets: got %v want %v", targets, want)
	}
	if wantOut := "homeassistant:\nname: Home"; out != wantOut {
		t.Fatalf("unexpected stripped text: got %q want %q", out, wantOut)
	}
}

func TestExtractIncludesPriority(t *testing.T) {
	t.Parallel()

	// Only the first matching directive form is taken from a line.
	_, targets := ExtractIncludes("x: !include_dir_list a !include b.yaml")
	if want := []string{"a !include b.yaml"}; !slices.Equal(targets, want) {
		t.Fatalf("unexpected targets: got %v want %v", targets, want)
	}
}

func TestExtractIncludesRepeatedTagOnLine(t *testing.T) {
	t.Parallel()

	_, targets := ExtractIncludes("x: !include a.yaml !include b.yaml")
	if want := []string{"a.yaml"}; !slices.Equal(targets, want) {
		t.Fatalf("unexpected targets: got %v want %v", targets, want)
	}
}

func TestExtractIncludesWithoutDirectives(t *testing.T) {
	t.Parallel()

	in := "a: 1\n\nb: 2"
	out, targets := ExtractIncludes(in)
	if out != in {
		t.Fatalf("expected text to pass through unchanged, got %q", out)
	}
	if len(targets) != 0 {
		t.Fatalf("expected no targets, got %v", targets)
	}
}

func TestSubstitute(t *testing.T) {
	t.Parallel()

	scope := NewSecretScope(
		Secret{Name: "db_url", Value: "postgresql://u:p@h/db"},
		Secret{Name: "api_key", Value: "k3y"},
	)
	in := "recorder:\n  db_url: !secret db_url\nkey: !secret api_key\nsame: !secret api_key\nother: !secret unknown"
	want := "recorder:\n  db_url: postgresql://u:p@h/db\nkey: k3y\nsame: !secret api_key\nother: !secret unknown"

	if got := Substitute(in, scope); got != want {
		t.Fatalf("unexpected output:\n got %q\nwant %q", got, want)
	}
}

func TestSubstituteFollowsScopeOrder(t *testing.T) {
	t.Parallel()

	// "!secret db" is a prefix of "!secret db_url"; the first entry wins.
	scope := NewSecretScope(
		Secret{Name: "db", Value: "X"},
		Secret{Name: "db_url", Value: "Y"},
	)
	if got := Substitute("v: !secret db_url", scope); got != "v: X_url" {
		t.Fatalf("unexpected output %q", got)
	}
}

func equalTrees(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.Value != b.Value || a.Tag != b.Tag {
		return false
	}
	if len(a.Entries) != len(b.Entries) || len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Entries {
		if a.Entries[i].Key != b.Entries[i].Key || !equalTrees(a.Entries[i].Value, b.Entries[i].Value) {
			return false
		}
	}
	for i := range a.Items {
		if !equalTrees(a.Items[i], b.Items[i]) {
			return false
		}
	}
	return true
}

func TestSubstituteReplacesFirstReferenceOnly(t *testing.T) {
	t.Parallel()

	scope := NewSecretScope(Secret{Name: "pw", Value: "X"})
	got := Substitute("a: !secret pw\nb: !secret pw", scope)
	if want := "a: X\nb: !secret pw"; got != want {
		t.Fatalf("unexpected output:\n got %q\nwant %q", got, want)
	}
}
