package statusmap_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bouncer/internal/statusmap"
)

const sampleConfig = `
platform:
  url: https://jira.example.com
  projects: [neut, dp]
  order: [new, open, test, closed]
  states:
    new: [new]
    open: [in progress, reopened]
    test: [in test]
    closed: [done, closed]
storage:
  url: https://jira.example.com
  projects: [vol]
  order: [new, open, closed]
  states:
    new: [new]
    open: [in progress]
    closed: [closed]
`

func mustParse(t *testing.T, data string) *statusmap.Config {
	t.Helper()
	cfg, err := statusmap.Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cfg
}

func TestResolve(t *testing.T) {
	cfg := mustParse(t, sampleConfig)
	m, err := cfg.Pillar("platform")
	if err != nil {
		t.Fatalf("Pillar: %v", err)
	}

	tests := []struct {
		raw  string
		want string
	}{
		{"in progress", "open"},
		{"In Progress", "open"},
		{"REOPENED", "open"},
		{"done", "closed"},
		{"new", "new"},
	}
	for _, tc := range tests {
		got, err := m.Resolve(tc.raw)
		if err != nil {
			t.Errorf("Resolve(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Resolve(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestResolve_Unmapped(t *testing.T) {
	cfg := mustParse(t, sampleConfig)
	m, _ := cfg.Pillar("platform")

	_, err := m.Resolve("blocked")
	if !errors.Is(err, statusmap.ErrUnmapped) {
		t.Fatalf("expected ErrUnmapped, got %v", err)
	}
}

func TestInitialStateAndOrder(t *testing.T) {
	cfg := mustParse(t, sampleConfig)
	m, _ := cfg.Pillar("platform")

	if got := m.InitialState(); got != "new" {
		t.Errorf("InitialState = %q, want new", got)
	}
	want := []string{"new", "open", "test", "closed"}
	if diff := cmp.Diff(want, m.Order()); diff != "" {
		t.Errorf("Order mismatch (-want +got):\n%s", diff)
	}
}

func TestAliases_ReverseOfForward(t *testing.T) {
	cfg := mustParse(t, sampleConfig)
	m, _ := cfg.Pillar("platform")

	want := []string{"in progress", "reopened"}
	if diff := cmp.Diff(want, m.Aliases("open")); diff != "" {
		t.Errorf("Aliases mismatch (-want +got):\n%s", diff)
	}

	// Every alias resolves back to its canonical state.
	for _, state := range m.Order() {
		for _, alias := range m.Aliases(state) {
			got, err := m.Resolve(alias)
			if err != nil || got != state {
				t.Errorf("Resolve(%q) = %q, %v; want %q", alias, got, err, state)
			}
		}
	}
}

func TestPillars(t *testing.T) {
	cfg := mustParse(t, sampleConfig)
	want := []string{"platform", "storage"}
	if diff := cmp.Diff(want, cfg.Pillars()); diff != "" {
		t.Errorf("Pillars mismatch (-want +got):\n%s", diff)
	}
}

func TestPillar_Unknown(t *testing.T) {
	cfg := mustParse(t, sampleConfig)
	_, err := cfg.Pillar("nosuch")
	var cerr *statusmap.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestParse_InvalidPillars(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		reason string
	}{
		{
			name: "empty order",
			yaml: `bad:
  order: []
  states:
    open: [open]
`,
			reason: "order is empty",
		},
		{
			name: "duplicate order entry",
			yaml: `bad:
  order: [new, open, new]
  states:
    new: [new]
    open: [open]
`,
			reason: "duplicate state",
		},
		{
			name: "state without aliases",
			yaml: `bad:
  order: [new, open]
  states:
    new: [new]
`,
			reason: "has no aliases",
		},
		{
			name: "states key not in order",
			yaml: `bad:
  order: [new, open]
  states:
    new: [new]
    open: [open]
    ghost: [ghost]
`,
			reason: "not in order",
		},
		{
			name: "alias mapped twice",
			yaml: `bad:
  order: [new, open]
  states:
    new: [fresh]
    open: [fresh]
`,
			reason: "maps to both",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := mustParse(t, tc.yaml)
			_, err := cfg.Pillar("bad")
			var cerr *statusmap.ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if !strings.Contains(cerr.Error(), tc.reason) {
				t.Errorf("error %q does not mention %q", cerr.Error(), tc.reason)
			}
		})
	}
}

func TestParse_BrokenPillarDoesNotPoisonOthers(t *testing.T) {
	cfg := mustParse(t, sampleConfig+`
broken:
  order: []
  states: {}
`)
	if _, err := cfg.Pillar("platform"); err != nil {
		t.Errorf("valid pillar should load: %v", err)
	}
	if _, err := cfg.Pillar("broken"); err == nil {
		t.Error("broken pillar should return its ConfigError")
	}
}
