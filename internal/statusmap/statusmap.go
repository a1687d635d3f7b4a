// Package statusmap loads the per-pillar status mapping configuration and
// resolves tool-specific status labels to the pillar's canonical state set.
package statusmap

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnmapped is returned by Resolve for labels absent from the alias table.
// Callers decide whether to skip the offending event or keep the raw label.
var ErrUnmapped = errors.New("unmapped status label")

// ConfigError reports an invalid pillar definition in the mapping file.
// Analysis for the affected pillar is skipped; other pillars are unaffected.
type ConfigError struct {
	Pillar string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("status mapping for pillar %q: %s", e.Pillar, e.Reason)
}

// pillarSpec is the raw YAML shape of one pillar entry.
type pillarSpec struct {
	Order    []string            `yaml:"order"`
	States   map[string][]string `yaml:"states"`
	Projects []string            `yaml:"projects"`
	URL      string              `yaml:"url"`
	Labels   []string            `yaml:"labels"`
}

// Mapping is one pillar's immutable status mapping: the canonical state
// order plus a bidirectional alias table built once at load. Safe for
// concurrent reads.
type Mapping struct {
	pillar   string
	order    []string
	forward  map[string]string   // lowercase alias -> canonical
	reverse  map[string][]string // canonical -> aliases (sorted)
	projects []string
	url      string
	labels   []string
}

// newMapping validates a pillar spec and builds both lookup directions from
// the single states relation.
func newMapping(pillar string, spec pillarSpec) (*Mapping, error) {
	if len(spec.Order) == 0 {
		return nil, &ConfigError{Pillar: pillar, Reason: "order is empty"}
	}

	inOrder := make(map[string]bool, len(spec.Order))
	for _, state := range spec.Order {
		if inOrder[state] {
			return nil, &ConfigError{Pillar: pillar, Reason: fmt.Sprintf("duplicate state %q in order", state)}
		}
		inOrder[state] = true
	}

	for state := range spec.States {
		if !inOrder[state] {
			return nil, &ConfigError{Pillar: pillar, Reason: fmt.Sprintf("states entry %q is not in order", state)}
		}
	}

	m := &Mapping{
		pillar:   pillar,
		order:    append([]string(nil), spec.Order...),
		forward:  make(map[string]string),
		reverse:  make(map[string][]string, len(spec.Order)),
		projects: append([]string(nil), spec.Projects...),
		url:      strings.TrimSuffix(spec.URL, "/"),
		labels:   append([]string(nil), spec.Labels...),
	}

	for _, state := range spec.Order {
		aliases := spec.States[state]
		if len(aliases) == 0 {
			return nil, &ConfigError{Pillar: pillar, Reason: fmt.Sprintf("state %q has no aliases", state)}
		}
		for _, alias := range aliases {
			key := strings.ToLower(alias)
			if prev, dup := m.forward[key]; dup && prev != state {
				return nil, &ConfigError{
					Pillar: pillar,
					Reason: fmt.Sprintf("alias %q maps to both %q and %q", key, prev, state),
				}
			}
			m.forward[key] = state
			m.reverse[state] = append(m.reverse[state], key)
		}
		sort.Strings(m.reverse[state])
	}

	return m, nil
}

// Pillar returns the pillar this mapping belongs to.
func (m *Mapping) Pillar() string { return m.pillar }

// Order returns the canonical state order. Position 0 is the creation state.
func (m *Mapping) Order() []string { return append([]string(nil), m.order...) }

// InitialState returns the canonical creation state.
func (m *Mapping) InitialState() string { return m.order[0] }

// Resolve maps a raw tool-specific label to its canonical state. The label
// is lowercased before lookup. Unknown labels return ErrUnmapped; no default
// is ever substituted here.
func (m *Mapping) Resolve(raw string) (string, error) {
	canonical, ok := m.forward[strings.ToLower(raw)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnmapped, raw)
	}
	return canonical, nil
}

// Aliases returns the alias set for a canonical state, sorted. The result is
// the reverse view of the same relation Resolve reads.
func (m *Mapping) Aliases(canonical string) []string {
	return append([]string(nil), m.reverse[canonical]...)
}

// Projects returns the Jira project keys configured for the pillar.
func (m *Mapping) Projects() []string { return append([]string(nil), m.projects...) }

// URL returns the issue tracker base URL for the pillar.
func (m *Mapping) URL() string { return m.url }

// Labels returns the optional label filters configured for the pillar.
func (m *Mapping) Labels() []string { return append([]string(nil), m.labels...) }

// Config is the parsed mapping file: one Mapping per pillar. Pillars whose
// definitions are invalid are kept as errors so callers can report them and
// continue with the healthy ones.
type Config struct {
	mappings map[string]*Mapping
	broken   map[string]error
}

// Load reads and validates a YAML mapping file keyed by pillar name.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}
	return Parse(data)
}

// Parse validates raw YAML mapping content.
func Parse(data []byte) (*Config, error) {
	var raw map[string]pillarSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse mapping file: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("parse mapping file: no pillars defined")
	}

	cfg := &Config{
		mappings: make(map[string]*Mapping, len(raw)),
		broken:   make(map[string]error),
	}
	for pillar, spec := range raw {
		m, err := newMapping(pillar, spec)
		if err != nil {
			cfg.broken[pillar] = err
			continue
		}
		cfg.mappings[pillar] = m
	}
	return cfg, nil
}

// Pillars returns every defined pillar name, valid or not, sorted.
func (c *Config) Pillars() []string {
	names := make([]string, 0, len(c.mappings)+len(c.broken))
	for name := range c.mappings {
		names = append(names, name)
	}
	for name := range c.broken {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pillar returns the mapping for one pillar, or the ConfigError recorded for
// it at load time. Unknown pillars are a ConfigError too.
func (c *Config) Pillar(name string) (*Mapping, error) {
	if m, ok := c.mappings[name]; ok {
		return m, nil
	}
	if err, ok := c.broken[name]; ok {
		return nil, err
	}
	return nil, &ConfigError{Pillar: name, Reason: "not defined in the mapping file"}
}
