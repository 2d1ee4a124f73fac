package cron

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidExpression is wrapped by every parse error, so callers can match
// malformed input with errors.Is regardless of the specific fault.
var ErrInvalidExpression = errors.New("invalid cron expression")

// Parse compiles a cron expression into a Schedule.
//
// Accepted forms:
//   - 5 fields: "min hour dom mon dow"
//   - 6 fields: "sec min hour dom mon dow"
//   - 7 fields: "sec min hour dom mon dow year"
//
// Each field accepts "*" (full domain), comma-separated lists, ranges "a-b",
// and stepped ranges "a-b/n" or "*/n". A weekday value of 7 is normalized
// to 0 (Sunday). Malformed input fails here, never at evaluation time.
func Parse(expr string) (*Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) < 5 || len(parts) > 7 {
		return nil, fmt.Errorf("%w: want 5-7 fields ([sec] min hour dom mon dow [year]), got %d in %q",
			ErrInvalidExpression, len(parts), expr)
	}

	var (
		sch Schedule
		err error
		idx int
	)

	if len(parts) > 5 {
		if sch.Seconds, err = parseField(parts[idx], "seconds", 0, 59); err != nil {
			return nil, err
		}
		// A present "*" means every second; only the omitted field of the
		// 5-field form leaves the set nil, implying second zero.
		if sch.Seconds == nil {
			sch.Seconds = orDomain(nil, 0, 59)
		}
		idx++
	}
	if sch.Minutes, err = parseField(parts[idx], "minutes", 0, 59); err != nil {
		return nil, err
	}
	idx++
	if sch.Hours, err = parseField(parts[idx], "hours", 0, 23); err != nil {
		return nil, err
	}
	idx++
	if sch.Days, err = parseField(parts[idx], "day-of-month", 1, 31); err != nil {
		return nil, err
	}
	idx++
	if sch.Months, err = parseField(parts[idx], "month", 1, 12); err != nil {
		return nil, err
	}
	idx++
	// Day-of-week 7 is accepted for ISO-style input and folded into 0 below.
	if sch.Weekdays, err = parseField(parts[idx], "day-of-week", 0, 7); err != nil {
		return nil, err
	}
	idx++
	if idx < len(parts) {
		if sch.Years, err = parseField(parts[idx], "year", 1970, 2099); err != nil {
			return nil, err
		}
	}

	sch.Weekdays = normalizeWeekdays(sch.Weekdays)
	return &sch, nil
}

// parseField expands a single cron field into an ascending set of integers.
// A "*" field yields nil, meaning unconstrained.
func parseField(field, name string, min, max int) ([]int, error) {
	if field == "*" {
		return nil, nil
	}

	set := make(map[int]struct{})
	for _, seg := range strings.Split(field, ",") {
		if err := parseSegment(seg, name, min, max, set); err != nil {
			return nil, err
		}
	}

	vals := make([]int, 0, len(set))
	for v := range set {
		vals = append(vals, v)
	}
	sort.Ints(vals)
	return vals, nil
}

func parseSegment(seg, name string, min, max int, set map[int]struct{}) error {
	rangePart := seg
	step := 1

	if slash := strings.IndexByte(seg, '/'); slash >= 0 {
		rangePart = seg[:slash]
		n, err := strconv.Atoi(seg[slash+1:])
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: bad step in %s field segment %q", ErrInvalidExpression, name, seg)
		}
		step = n
	}

	start, end := min, max
	switch {
	case rangePart == "*":
		// full domain
	case strings.ContainsRune(rangePart, '-'):
		bounds := strings.SplitN(rangePart, "-", 2)
		a, err1 := strconv.Atoi(bounds[0])
		b, err2 := strconv.Atoi(bounds[1])
		if err1 != nil || err2 != nil || a > b {
			return fmt.Errorf("%w: bad range in %s field segment %q", ErrInvalidExpression, name, seg)
		}
		start, end = a, b
	default:
		v, err := strconv.Atoi(rangePart)
		if err != nil {
			return fmt.Errorf("%w: bad value in %s field segment %q", ErrInvalidExpression, name, seg)
		}
		start, end = v, v
	}

	if start < min || end > max {
		return fmt.Errorf("%w: %s field segment %q out of domain [%d,%d]", ErrInvalidExpression, name, seg, min, max)
	}
	for v := start; v <= end; v += step {
		set[v] = struct{}{}
	}
	return nil
}

// normalizeWeekdays folds day-of-week 7 into 0 and keeps the set ascending.
func normalizeWeekdays(days []int) []int {
	if days == nil {
		return nil
	}
	set := make(map[int]struct{}, len(days))
	for _, d := range days {
		if d == 7 {
			d = 0
		}
		set[d] = struct{}{}
	}
	out := make([]int, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
