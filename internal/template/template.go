// Package template holds the five-slot prompt template sets consumed by
// the refinement engine. The engine never validates template wording,
// only that every named placeholder is filled before a generation call.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

// The five required template names.
const (
	InitialSystem  = "initial_system"
	CritiqueSystem = "critique_system"
	RevisionSystem = "revision_system"
	CritiqueUser   = "critique_user"
	RevisionUser   = "revision_user"
)

var required = []string{InitialSystem, CritiqueSystem, RevisionSystem, CritiqueUser, RevisionUser}

// placeholderRe matches {name} substitution slots.
var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// Set is a complete five-template prompt set.
type Set map[string]string

// Validate reports the first missing template name, if any.
func (s Set) Validate() error {
	for _, name := range required {
		if strings.TrimSpace(s[name]) == "" {
			return fmt.Errorf("template set missing %q", name)
		}
	}
	return nil
}

// Merge returns a copy of s with non-empty entries of overrides applied.
func (s Set) Merge(overrides Set) Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range overrides {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

// Render substitutes {name} slots in the named template. Every slot must
// be filled: an unfilled placeholder is an error, not silent passthrough.
func (s Set) Render(name string, vars map[string]string) (string, error) {
	tmpl, ok := s[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}

	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := vars[key]
		if !ok {
			missing = append(missing, key)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("template %q: unfilled slots %v", name, missing)
	}
	return out, nil
}
