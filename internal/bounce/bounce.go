// Package bounce detects defects that regressed from a test state back to an
// open state and computes the per-project bounce-back summary.
package bounce

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"bouncer/internal/defect"
	"bouncer/internal/logging"
)

// Canonical states the analyzer keys on.
const (
	StateOpen   = "open"
	StateTest   = "test"
	StateClosed = "closed"
)

// DefaultSLALimit is the number of "open" occurrences a bounced defect may
// show before it counts as an SLA violation.
const DefaultSLALimit = 2

// ErrInvalidInterval reports a malformed or missing reporting interval. It is
// fatal for the analysis call; the caller decides what to do with the batch.
var ErrInvalidInterval = errors.New("invalid reporting interval")

// Interval is the closed reporting window.
type Interval struct {
	Start time.Time
	End   time.Time
}

// ParseInterval parses "YYYY-MM-DD" bounds. Two-digit years are promoted to
// 20YY, matching what the CLI has historically accepted. A missing or
// malformed start wraps ErrInvalidInterval.
func ParseInterval(start, end string) (Interval, error) {
	s, err := parseDay(start)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: start %q: %v", ErrInvalidInterval, start, err)
	}
	e, err := parseDay(end)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: end %q: %v", ErrInvalidInterval, end, err)
	}
	return Interval{Start: s, End: e}, nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing date")
	}
	if parts := strings.SplitN(s, "-", 3); len(parts) == 3 && len(parts[0]) == 2 {
		s = "20" + s
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// Summary is one project's bounce statistics for a reporting run.
type Summary struct {
	Project    string
	Total      int              // eligible defects
	Bounced    int              // defects with at least one test->open regression
	Violations []*defect.Record // bounced defects over the SLA limit
}

// Percent returns the bounced share of eligible defects. A project with no
// eligible defects yields 0 rather than an error.
func (s Summary) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Bounced) / float64(s.Total) * 100
}

// Result is the outcome of one analysis run over a pillar's projects.
type Result struct {
	Summaries map[string]Summary
	// Bounced holds the regressed defects per project, keyed by defect ID.
	Bounced map[string]map[string]*defect.Record
}

// Projects returns the analyzed project keys, sorted.
func (r *Result) Projects() []string {
	names := make([]string, 0, len(r.Summaries))
	for name := range r.Summaries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Violations flattens every project's violating defects, ordered by project.
func (r *Result) Violations() []*defect.Record {
	var out []*defect.Record
	for _, project := range r.Projects() {
		out = append(out, r.Summaries[project].Violations...)
	}
	return out
}

// Analyzer computes bounce summaries for one reporting interval.
type Analyzer struct {
	interval Interval
	slaLimit int
	logger   *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithSLALimit overrides the default violation threshold.
func WithSLALimit(n int) Option {
	return func(a *Analyzer) { a.slaLimit = n }
}

// WithLogger injects a diagnostics sink. Correctness never depends on it.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// New returns an Analyzer for the interval. The interval start is required;
// a zero start wraps ErrInvalidInterval.
func New(interval Interval, opts ...Option) (*Analyzer, error) {
	if interval.Start.IsZero() {
		return nil, fmt.Errorf("%w: start date is required", ErrInvalidInterval)
	}
	a := &Analyzer{
		interval: interval,
		slaLimit: DefaultSLALimit,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// SLALimit returns the active violation threshold.
func (a *Analyzer) SLALimit() int { return a.slaLimit }

// Interval returns the reporting window.
func (a *Analyzer) Interval() Interval { return a.interval }

// Analyze walks a pillar's defects grouped by project and produces the
// per-project summaries plus the bounced set.
func (a *Analyzer) Analyze(projects map[string][]*defect.Record) *Result {
	res := &Result{
		Summaries: make(map[string]Summary, len(projects)),
		Bounced:   make(map[string]map[string]*defect.Record, len(projects)),
	}

	for project, defects := range projects {
		summary := Summary{Project: project}
		bounced := make(map[string]*defect.Record)
		a.logger.Debug("analyzing project", "project", project, "defects", len(defects))

		for _, d := range defects {
			if !a.eligible(d) {
				continue
			}

			summary.Total++
			if Count(d.Reduced()) == 0 {
				continue
			}

			summary.Bounced++
			bounced[d.ID] = d
			a.logger.Debug("bounce found",
				"pillar", d.Pillar, "project", project, "defect", d.ID,
				"history", defect.FormatStates(d.Reduced()))

			if IsViolation(d.Reduced(), a.slaLimit) {
				summary.Violations = append(summary.Violations, d)
			}
		}

		if summary.Total == 0 {
			a.logger.Warn("no eligible defects for project", "project", project)
		}
		res.Summaries[project] = summary
		res.Bounced[project] = bounced
	}

	return res
}

// eligible applies the two reporting-window filters: the defect must be
// currently closed, and its most recent state event must not predate the
// interval start. The second test uses the latest raw timestamp, not the
// closure event specifically; sparse audit histories can therefore both
// under- and over-exclude, which matches the historical behavior.
func (a *Analyzer) eligible(d *defect.Record) bool {
	reduced := d.Reduced()
	if len(reduced) == 0 || reduced[len(reduced)-1] != StateClosed {
		return false
	}
	if !contains(reduced, StateClosed) {
		return false
	}

	latest, ok := d.LatestEvent()
	if !ok {
		return false
	}
	if latest.Before(a.interval.Start) {
		a.logger.Debug("excluding defect closed before interval",
			"defect", d.ID, "latest", latest, "interval_start", a.interval.Start)
		return false
	}
	return true
}

// Count returns the number of test->open regressions in a reduced history.
//
// The historical rule is preserved exactly: with fewer than four reduced
// states no bounce is ever counted (a fresh defect's new->open->closed walk
// cannot regress), and above that every adjacent pair is examined. Pairs
// touching an unknown state never count.
func Count(reduced []string) int {
	transitions := len(reduced) - 1
	if transitions <= 2 {
		return 0
	}

	count := 0
	for i := 0; i < transitions; i++ {
		cur, next := reduced[i], reduced[i+1]
		if cur == "" || next == "" {
			continue
		}
		if strings.EqualFold(cur, StateTest) && strings.EqualFold(next, StateOpen) {
			count++
		}
	}
	return count
}

// IsViolation reports whether a reduced history shows more "open" states
// than the SLA limit allows.
func IsViolation(reduced []string, slaLimit int) bool {
	open := 0
	for _, s := range reduced {
		if s == StateOpen {
			open++
		}
	}
	return open > slaLimit
}

func contains(states []string, want string) bool {
	for _, s := range states {
		if s == want {
			return true
		}
	}
	return false
}
