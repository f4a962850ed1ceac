package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Period is a date-based amount of time, the calendar counterpart of
// time.Duration.
type Period struct {
	Years  int
	Months int
	Days   int
}

// AddTo applies the period to t.
func (p Period) AddTo(t time.Time) time.Time {
	return t.AddDate(p.Years, p.Months, p.Days)
}

// IsZero reports whether all components are zero.
func (p Period) IsZero() bool {
	return p == Period{}
}

func (p Period) String() string {
	if p.IsZero() {
		return "P0D"
	}
	var b strings.Builder
	b.WriteString("P")
	if p.Years != 0 {
		fmt.Fprintf(&b, "%dY", p.Years)
	}
	if p.Months != 0 {
		fmt.Fprintf(&b, "%dM", p.Months)
	}
	if p.Days != 0 {
		fmt.Fprintf(&b, "%dD", p.Days)
	}
	return b.String()
}

var (
	isoDurationRe = regexp.MustCompile(`^([-+]?)P(?:([-+]?[0-9]+)D)?(?:T(?:([-+]?[0-9]+)H)?(?:([-+]?[0-9]+)M)?(?:([-+]?[0-9]+(?:[.,][0-9]{0,9})?)S)?)?$`)
	isoPeriodRe   = regexp.MustCompile(`^([-+]?)P(?:([-+]?[0-9]+)Y)?(?:([-+]?[0-9]+)M)?(?:([-+]?[0-9]+)W)?(?:([-+]?[0-9]+)D)?$`)
	unitRe        = regexp.MustCompile(`^([-+]?[0-9]+(?:\.[0-9]+)?)\s*([a-zA-Z]*)$`)
)

var durationUnits = map[string]time.Duration{
	"ns": time.Nanosecond, "nano": time.Nanosecond, "nanos": time.Nanosecond,
	"nanosecond": time.Nanosecond, "nanoseconds": time.Nanosecond,
	"us": time.Microsecond, "micro": time.Microsecond, "micros": time.Microsecond,
	"microsecond": time.Microsecond, "microseconds": time.Microsecond,
	"": time.Millisecond, "ms": time.Millisecond, "milli": time.Millisecond, "millis": time.Millisecond,
	"millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"s": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
}

// ParseDuration accepts Go duration syntax (1m30s), ISO-8601 durations
// (PT5S, P2D) and a number followed by a unit name (10 seconds). A bare number
// is read as milliseconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	upper := strings.ToUpper(s)
	if strings.HasPrefix(strings.TrimLeft(upper, "+-"), "P") {
		return parseISODuration(upper)
	}
	m := unitRe.FindStringSubmatch(s)
	if m == nil {
		return 0, errors.Errorf("invalid duration %q", s)
	}
	unit, ok := durationUnits[strings.ToLower(m[2])]
	if !ok {
		return 0, errors.Errorf("invalid duration unit %q", m[2])
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", s)
	}
	return time.Duration(f * float64(unit)), nil
}

func parseISODuration(s string) (time.Duration, error) {
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil || s == "P" || strings.HasSuffix(s, "T") {
		return 0, errors.Errorf("invalid ISO-8601 duration %q", s)
	}
	var total time.Duration
	for i, unit := range []time.Duration{24 * time.Hour, time.Hour, time.Minute} {
		if m[i+2] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+2], 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid ISO-8601 duration %q", s)
		}
		total += time.Duration(n) * unit
	}
	if m[5] != "" {
		f, err := strconv.ParseFloat(strings.ReplaceAll(m[5], ",", "."), 64)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid ISO-8601 duration %q", s)
		}
		total += time.Duration(f * float64(time.Second))
	}
	if m[1] == "-" {
		total = -total
	}
	return total, nil
}

var periodUnits = map[string]Period{
	"":  {Days: 1},
	"d": {Days: 1}, "day": {Days: 1}, "days": {Days: 1},
	"w": {Days: 7}, "week": {Days: 7}, "weeks": {Days: 7},
	"m": {Months: 1}, "mo": {Months: 1}, "month": {Months: 1}, "months": {Months: 1},
	"y": {Years: 1}, "year": {Years: 1}, "years": {Years: 1},
}

// ParsePeriod accepts ISO-8601 date periods (P1Y2M3D, P2W) and a whole number
// followed by a unit name (3 months). A bare number is read as days.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Period{}, errors.New("empty period")
	}
	upper := strings.ToUpper(s)
	if strings.HasPrefix(strings.TrimLeft(upper, "+-"), "P") {
		return parseISOPeriod(upper)
	}
	m := unitRe.FindStringSubmatch(s)
	if m == nil {
		return Period{}, errors.Errorf("invalid period %q", s)
	}
	unit, ok := periodUnits[strings.ToLower(m[2])]
	if !ok {
		return Period{}, errors.Errorf("invalid period unit %q", m[2])
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return Period{}, errors.Wrapf(err, "invalid period %q", s)
	}
	return Period{Years: unit.Years * n, Months: unit.Months * n, Days: unit.Days * n}, nil
}

func parseISOPeriod(s string) (Period, error) {
	m := isoPeriodRe.FindStringSubmatch(s)
	if m == nil || strings.TrimLeft(s, "+-") == "P" {
		return Period{}, errors.Errorf("invalid ISO-8601 period %q", s)
	}
	var parts [4]int
	for i := range parts {
		if m[i+2] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+2])
		if err != nil {
			return Period{}, errors.Wrapf(err, "invalid ISO-8601 period %q", s)
		}
		parts[i] = n
	}
	p := Period{Years: parts[0], Months: parts[1], Days: parts[2]*7 + parts[3]}
	if m[1] == "-" {
		p = Period{Years: -p.Years, Months: -p.Months, Days: -p.Days}
	}
	return p, nil
}
