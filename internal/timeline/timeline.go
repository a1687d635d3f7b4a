// Package timeline reconstructs a defect's normalized state history from its
// raw audit-log entries and the pillar's status mapping.
package timeline

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"bouncer/internal/statusmap"
)

// statusField is the audit-log field name that carries a status change.
const statusField = "status"

// StateEvent is one state the defect has been in. Actual is the raw
// tool-specific label (lowercased); Canonical is its normalized state, empty
// when the label could not be resolved. At carries no zone and is truncated
// to milliseconds.
type StateEvent struct {
	Actual    string    `json:"actual"`
	Canonical string    `json:"canonical"`
	At        time.Time `json:"at"`
}

// Change is one raw audit-log entry as supplied by the issue tracker. Entries
// are assumed chronological; Build does not re-sort them, so an unordered
// source voids the ordering guarantees downstream.
type Change struct {
	Field string    `json:"field"`
	To    string    `json:"to"`
	At    time.Time `json:"at"`
}

// Timeline is the ordered state history of one defect. The first event is
// always the synthesized creation event.
type Timeline []StateEvent

// Truncate normalizes a timestamp the way every stored event does: zone
// dropped, fractional seconds cut to milliseconds.
func Truncate(t time.Time) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	nanos := t.Nanosecond() / int(time.Millisecond) * int(time.Millisecond)
	return time.Date(year, month, day, hour, min, sec, nanos, time.UTC)
}

// Build converts a defect's creation time and audit entries into a Timeline.
//
// The creation event is seeded explicitly before the scan: the audit log
// never records the initial state, so the first event is always
// (initial, initial, created). Entries whose label is unknown to the mapping
// contribute nothing beyond a diagnostic. A nil mapping is a pillar
// configuration gap: the seed-only timeline is returned and the defect
// degrades gracefully instead of failing the batch.
func Build(created time.Time, changes []Change, mapping *statusmap.Mapping, logger *slog.Logger) Timeline {
	if logger == nil {
		logger = slog.Default()
	}

	if mapping == nil {
		logger.Error("no status mapping for pillar, keeping creation event only")
		return Timeline{}
	}

	initial := mapping.InitialState()
	tl := Timeline{{Actual: initial, Canonical: initial, At: Truncate(created)}}

	for _, chg := range changes {
		if !strings.EqualFold(chg.Field, statusField) {
			continue
		}

		label := strings.ToLower(chg.To)
		if label == "" {
			logger.Warn("ignoring status change with empty label", "at", chg.At)
			continue
		}

		canonical, err := mapping.Resolve(label)
		if err != nil {
			if errors.Is(err, statusmap.ErrUnmapped) {
				logger.Warn("ignoring state change", "label", label, "at", chg.At)
				continue
			}
			logger.Error("resolve state change", "label", label, "error", err)
			continue
		}

		tl = append(tl, StateEvent{Actual: label, Canonical: canonical, At: Truncate(chg.At)})
	}

	return tl
}

// Actuals returns the raw label projection of the timeline.
func (tl Timeline) Actuals() []string {
	out := make([]string, len(tl))
	for i, ev := range tl {
		out[i] = ev.Actual
	}
	return out
}

// Canonicals returns the normalized state projection, uncollapsed.
func (tl Timeline) Canonicals() []string {
	out := make([]string, len(tl))
	for i, ev := range tl {
		out[i] = ev.Canonical
	}
	return out
}

// Reduced returns the canonical projection with consecutive duplicates
// collapsed. Unknown states (empty canonical) are kept as distinct entries:
// they never merge with neighbours, known or unknown. Reducing an already
// reduced sequence is a no-op.
func (tl Timeline) Reduced() []string {
	return ReduceStates(tl.Canonicals())
}

// ReduceStates collapses consecutive equal states in a canonical sequence.
func ReduceStates(states []string) []string {
	var out []string
	for i, s := range states {
		if s == "" {
			out = append(out, s)
			continue
		}
		if i > 0 && states[i-1] == s {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Latest returns the timestamp of the most recent event and true, or a zero
// time and false for an empty timeline.
func (tl Timeline) Latest() (time.Time, bool) {
	if len(tl) == 0 {
		return time.Time{}, false
	}
	return tl[len(tl)-1].At, true
}
