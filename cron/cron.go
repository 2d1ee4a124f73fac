// Package cron compiles Unix cron expressions into per-field sets of allowed
// values and enumerates concrete execution instants forward or backward in
// time.
//
// Supported formats are the classic 5-field form ("min hour dom mon dow"),
// a 6-field form with a leading seconds field, and a 7-field form with a
// trailing year field. Each field accepts wildcards, lists, ranges, and
// stepped ranges. All validation happens at parse time; occurrence queries
// are pure functions over the compiled schedule and a time window.
package cron

import "time"

// horizonYears bounds the search window of Next and Prev.
const horizonYears = 5

// Schedule is a compiled cron expression. Each field holds the ascending set
// of allowed values; a nil slice means the field is unconstrained.
type Schedule struct {
	Seconds  []int // 0-59; nil in the 5-field form
	Minutes  []int // 0-59
	Hours    []int // 0-23
	Days     []int // day of month, 1-31
	Months   []int // 1-12
	Weekdays []int // 0-6, 0 = Sunday
	Years    []int // 1970-2099; nil unless the 7-field form is used
}

// Matches reports whether t satisfies every populated field of the schedule.
// Seconds are compared against {0} when the seconds field is unconstrained.
func (s *Schedule) Matches(t time.Time) bool {
	if !matches(s.Years, t.Year()) ||
		!matches(s.Months, int(t.Month())) ||
		!matches(s.Days, t.Day()) ||
		!matches(s.Weekdays, int(t.Weekday())) ||
		!matches(s.Hours, t.Hour()) ||
		!matches(s.Minutes, t.Minute()) {
		return false
	}
	if s.Seconds == nil {
		return t.Second() == 0
	}
	return contains(s.Seconds, t.Second())
}

// Next returns up to n occurrences strictly after the given instant,
// in ascending order, searching up to five years ahead.
func (s *Schedule) Next(after time.Time, n int) []time.Time {
	start := after.Add(time.Nanosecond)
	end := after.AddDate(horizonYears, 0, 0)
	return s.Occurrences(start, end, n, false, after.Location())
}

// Prev returns up to n occurrences strictly before the given instant,
// in descending order, searching up to five years back.
func (s *Schedule) Prev(before time.Time, n int) []time.Time {
	start := before.AddDate(-horizonYears, 0, 0)
	return s.Occurrences(start, before, n, true, before.Location())
}

// Between returns every occurrence inside [start, end) in ascending order.
func (s *Schedule) Between(start, end time.Time) []time.Time {
	return s.Occurrences(start, end, 0, false, start.Location())
}

// Occurrences enumerates instants satisfying the schedule inside the
// half-open window [start, end).
//
// Candidate calendar dates are walked in the requested direction; for each
// date matching the year, month, day-of-month, and weekday constraints, the
// cross product of allowed hours, minutes, and seconds is expanded in the
// same direction. Every candidate instant is strictly checked against the
// window before being counted.
//
// Parameters:
//   - start, end: the query window; nothing is returned when end <= start.
//   - limit: maximum number of results; 0 means unbounded.
//   - reverse: when true, results are produced latest-first.
//   - loc: time zone for calendar arithmetic; nil means time.Local.
func (s *Schedule) Occurrences(start, end time.Time, limit int, reverse bool, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.Local
	}
	if !end.After(start) {
		return nil
	}

	hours := orDomain(s.Hours, 0, 23)
	minutes := orDomain(s.Minutes, 0, 59)
	seconds := s.Seconds
	if seconds == nil {
		seconds = []int{0}
	}
	if reverse {
		hours = descending(hours)
		minutes = descending(minutes)
		seconds = descending(seconds)
	}

	first := dateOf(start.In(loc))
	last := dateOf(end.In(loc))

	step := 1
	day := first
	if reverse {
		step = -1
		day = last
	}

	var out []time.Time
	for !day.Before(first) && !day.After(last) {
		y, m, d := day.Date()
		day = day.AddDate(0, 0, step)

		if !matches(s.Years, y) || !matches(s.Months, int(m)) || !matches(s.Days, d) {
			continue
		}
		if s.Weekdays != nil && !contains(s.Weekdays, int(time.Date(y, m, d, 0, 0, 0, 0, loc).Weekday())) {
			continue
		}

		for _, hour := range hours {
			for _, minute := range minutes {
				for _, sec := range seconds {
					inst := time.Date(y, m, d, hour, minute, sec, 0, loc)
					if inst.Before(start) || !inst.Before(end) {
						continue
					}
					out = append(out, inst)
					if limit > 0 && len(out) == limit {
						return out
					}
				}
			}
		}
	}
	return out
}

// dateOf truncates t to midnight of its calendar date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// orDomain substitutes the full field domain for an unconstrained set.
func orDomain(set []int, min, max int) []int {
	if set != nil {
		return set
	}
	vals := make([]int, 0, max-min+1)
	for i := min; i <= max; i++ {
		vals = append(vals, i)
	}
	return vals
}

func descending(vals []int) []int {
	out := make([]int, len(vals))
	for i, v := range vals {
		out[len(vals)-1-i] = v
	}
	return out
}

// matches treats a nil set as unconstrained.
func matches(set []int, val int) bool {
	return set == nil || contains(set, val)
}

func contains(set []int, val int) bool {
	for _, v := range set {
		if v == val {
			return true
		}
	}
	return false
}
