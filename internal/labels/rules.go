package labels

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultKeywords []byte

// Rules maps each label to its ordered keyword phrases. A Rules value is
// built once at startup and never mutated afterwards.
type Rules struct {
	byLabel map[Label][]string
}

// DefaultRules parses the keyword table compiled into the binary.
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultKeywords)
}

// LoadRules reads a keyword table from path, falling back to the built-in
// table when path is empty.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML document of the form `LABEL: [phrase, ...]`.
func ParseRules(data []byte) (*Rules, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse keyword table: %w", err)
	}

	rules := &Rules{byLabel: make(map[Label][]string, len(raw))}
	for name, phrases := range raw {
		label, err := Parse(name)
		if err != nil {
			return nil, fmt.Errorf("keyword table: %q: %w", name, err)
		}

		seen := make(map[string]bool, len(phrases))
		for _, phrase := range phrases {
			phrase = strings.Join(strings.Fields(phrase), " ")
			if phrase == "" {
				continue
			}
			key := strings.ToLower(phrase)
			if seen[key] {
				continue
			}
			seen[key] = true
			rules.byLabel[label] = append(rules.byLabel[label], phrase)
		}
	}
	return rules, nil
}

// Keywords returns the phrases configured for l, in table order.
func (r *Rules) Keywords(l Label) []string {
	if r == nil {
		return nil
	}
	phrases := r.byLabel[l]
	out := make([]string, len(phrases))
	copy(out, phrases)
	return out
}

// Labels returns the labels that have at least one phrase, in display order.
func (r *Rules) Labels() []Label {
	if r == nil {
		return nil
	}
	var out []Label
	for _, l := range all {
		if len(r.byLabel[l]) > 0 {
			out = append(out, l)
		}
	}
	return out
}
