// Package dst resolves the Stockholm UTC offset under the EU summer-time rule.
//
// Summer time starts at 01:00 UTC on the last Sunday of March and ends at
// 01:00 UTC on the last Sunday of October. Both decisions are made on UTC
// fields, so there is no skipped or repeated wall-clock second to handle.
package dst

import (
	"github.com/maypok86/otter/v2"

	"github.com/tellSlater/greeksummerlight/internal/calendar"
)

const (
	// Standard is CET, UTC+1.
	Standard = 3600
	// Summer is CEST, UTC+2.
	Summer = 7200

	transitionHour = 1
)

// Transitions holds the two UTC instants at which the offset changes in a year.
type Transitions struct {
	Year  int
	Start calendar.Timestamp // spring forward
	End   calendar.Timestamp // fall back
}

// TransitionsFor computes the transitions for year.
func TransitionsFor(year int) Transitions {
	return Transitions{
		Year:  year,
		Start: calendar.Date(year, 3, calendar.LastSundayOfMonth(year, 3), transitionHour, 0, 0),
		End:   calendar.Date(year, 10, calendar.LastSundayOfMonth(year, 10), transitionHour, 0, 0),
	}
}

// Contains reports whether utc falls in [Start, End). Only the month-to-second
// fields are compared; the year is assumed to match.
func (tr Transitions) Contains(utc calendar.Timestamp) bool {
	now := key(utc)
	return key(tr.Start) <= now && now < key(tr.End)
}

// Offset returns the active offset for utc.
func (tr Transitions) Offset(utc calendar.Timestamp) int {
	if tr.Contains(utc) {
		return Summer
	}
	return Standard
}

// key packs (month, day, hour, minute, second) so that integer order equals
// lexicographic tuple order.
func key(ts calendar.Timestamp) int {
	return (((ts.Month*32+ts.Day)*24+ts.Hour)*60+ts.Minute)*60 + ts.Second
}

// Offset returns the Stockholm UTC offset in seconds for a UTC timestamp.
func Offset(utc calendar.Timestamp) int {
	return TransitionsFor(utc.Year).Offset(utc)
}

// ZoneName returns the abbreviation for offset.
func ZoneName(offset int) string {
	if offset == Summer {
		return "CEST"
	}
	return "CET"
}

// Rule is Offset with the per-year transitions cached. The control loop
// resolves an offset every tick and the answer only changes twice a year.
type Rule struct {
	cache *otter.Cache[int, Transitions]
}

// NewRule returns a Rule with a small transition cache.
func NewRule() *Rule {
	return &Rule{
		cache: otter.Must(&otter.Options[int, Transitions]{
			MaximumSize: 16,
		}),
	}
}

// Transitions returns the cached transitions for year.
func (r *Rule) Transitions(year int) Transitions {
	if tr, ok := r.cache.GetIfPresent(year); ok {
		return tr
	}
	tr := TransitionsFor(year)
	r.cache.Set(year, tr)
	return tr
}

// Offset returns the Stockholm UTC offset in seconds for a UTC timestamp.
func (r *Rule) Offset(utc calendar.Timestamp) int {
	return r.Transitions(utc.Year).Offset(utc)
}
