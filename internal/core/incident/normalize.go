package incident

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Normalizer maps raw primary_type spellings to canonical category labels.
// The export is not consistent over the years — e.g. both
// "NON-CRIMINAL (SUBJECT SPECIFIED)" and "NON - CRIMINAL" appear — so an
// optional alias file collapses them before aggregation. Without an alias
// file the normalizer just trims and upper-cases.
//
// Aliases are loaded once at startup. No hot reload.
type Normalizer struct {
	aliases map[string]string
}

// aliasFile is the on-disk YAML shape: a single top-level map from raw
// spelling to canonical label. Keys are matched after trim + upper-case.
type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// NewNormalizer builds a normalizer from an optional alias file. An empty
// path yields the identity normalizer (trim + upper-case only). A configured
// path that cannot be read or parsed is a startup error.
func NewNormalizer(path string) (*Normalizer, error) {
	n := &Normalizer{aliases: map[string]string{}}
	if path == "" {
		return n, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading category alias file %s: %w", path, err)
	}

	var raw aliasFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing category alias file %s: %w", path, err)
	}

	for from, to := range raw.Aliases {
		from = canonicalize(from)
		to = canonicalize(to)
		if from == "" || to == "" {
			return nil, fmt.Errorf("category alias file %s: empty alias entry", path)
		}
		n.aliases[from] = to
	}
	return n, nil
}

// Canonical returns the canonical category label for a raw primary_type.
// Returns "" for blank input.
func (n *Normalizer) Canonical(raw string) string {
	c := canonicalize(raw)
	if mapped, ok := n.aliases[c]; ok {
		return mapped
	}
	return c
}

func canonicalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
