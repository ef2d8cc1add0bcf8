package haconfig

import "strings"

// inertTags lose their leading "!" so the YAML parser reads them as part of
// the scalar instead of rejecting an unknown tag.
var inertTags = []string{"env_var", "input"}

// includeTags are checked in this order; the first one found on a line wins.
var includeTags = []string{
	"include_dir_merge_list",
	"include_dir_list",
	"include_dir_named",
	"include_dir_merge_named",
	"include",
}

// Sanitize drops comment lines and neutralises the allow-listed custom tags.
func Sanitize(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.Join(kept, "\n")
	for _, tag := range inertTags {
		out = strings.ReplaceAll(out, "!"+tag, tag)
	}
	return out
}

// ExtractIncludes removes every line carrying an include directive and
// returns the referenced targets in source order, duplicates included.
func ExtractIncludes(text string) (string, []string) {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	var targets []string
	for _, line := range lines {
		target, ok := includeTarget(line)
		if !ok {
			kept = append(kept, line)
			continue
		}
		targets = append(targets, target)
	}
	return strings.Join(kept, "\n"), targets
}

func includeTarget(line string) (string, bool) {
	if line == "" {
		return "", false
	}
	for _, tag := range includeTags {
		directive := "!" + tag
		_, rest, found := strings.Cut(line, directive)
		if !found {
			continue
		}
		target, _, _ := strings.Cut(rest, directive)
		if i := strings.Index(target, " #"); i >= 0 {
			target = target[:i]
		}
		return strings.TrimSpace(target), true
	}
	return "", false
}

// Substitute replaces the first "!secret <name>" token of each secret with
// its value, applying the scope's entries in order. Later references to the
// same secret and unknown names are left untouched.
func Substitute(text string, scope SecretScope) string {
	for _, s := range scope.entries {
		text = strings.Replace(text, "!secret "+s.Name, s.Value, 1)
	}
	return text
}
