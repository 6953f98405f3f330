package serialization

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ticksPerSecond is the number of .NET ticks (100ns) in a second.
const ticksPerSecond = int64(time.Second / 100)

var (
	// dateTimePattern splits a DateTime into its fixed prefix, optional
	// fraction and optional offset.
	dateTimePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})(?:\.(\d+))?(Z|[+-]\d{2}:\d{2})?$`)

	// durationPattern is the TimeSpan grammar: -?PnDTnHnMn.nS with at most
	// seven fractional second digits.
	durationPattern = regexp.MustCompile(`^(-)?P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d*)(?:\.(\d{1,7}))?S)?)?$`)
)

// FormatDateTime encodes t as a CLIXML DateTime. The fraction is written
// only when non-zero: six microsecond digits plus a seventh digit for a
// 100ns remainder. UTC values end in "Z", others carry their offset.
// Precision below 100ns is dropped.
func FormatDateTime(t time.Time) string {
	var b strings.Builder
	b.Grow(35)
	b.WriteString(t.Format("2006-01-02T15:04:05"))

	ns := t.Nanosecond()
	if ns/100 != 0 {
		b.WriteByte('.')
		b.WriteString(fmt.Sprintf("%06d", ns/1000))
		if rem := (ns % 1000) / 100; rem != 0 {
			b.WriteByte(byte('0' + rem))
		}
	}

	if t.Location() == time.UTC {
		b.WriteByte('Z')
		return b.String()
	}
	_, offset := t.Zone()
	sign := byte('+')
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	b.WriteByte(sign)
	b.WriteString(fmt.Sprintf("%02d:%02d", offset/3600, offset%3600/60))
	return b.String()
}

// ParseDateTime decodes a CLIXML DateTime. A seventh fractional digit is
// read as hundreds of nanoseconds; further digits are ignored. Text without
// an offset is taken as UTC.
func ParseDateTime(s string) (time.Time, error) {
	m := dateTimePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, &ValueError{Type: "DT", Text: s, Err: ErrInvalidDateTime}
	}

	loc := time.UTC
	if off := m[3]; off != "" && off != "Z" {
		hours, _ := strconv.Atoi(off[1:3])
		minutes, _ := strconv.Atoi(off[4:6])
		if hours > 14 || minutes > 59 {
			return time.Time{}, &ValueError{Type: "DT", Text: s, Err: ErrInvalidDateTime}
		}
		secs := hours*3600 + minutes*60
		if off[0] == '-' {
			secs = -secs
		}
		loc = time.FixedZone("", secs)
	}

	t, err := time.ParseInLocation("2006-01-02T15:04:05", m[1], loc)
	if err != nil {
		return time.Time{}, &ValueError{Type: "DT", Text: s, Err: fmt.Errorf("%w: %v", ErrInvalidDateTime, err)}
	}

	if frac := m[2]; frac != "" {
		if len(frac) > 7 {
			frac = frac[:7]
		}
		frac += strings.Repeat("0", 7-len(frac))
		ticks, _ := strconv.Atoi(frac)
		t = t.Add(time.Duration(ticks) * 100)
	}
	return t, nil
}

// FormatDuration encodes d as a CLIXML TimeSpan in PnDTnHnMnS form.
// Precision below 100ns is dropped.
func FormatDuration(d time.Duration) string {
	ticks := int64(d / 100)

	var b strings.Builder
	if ticks < 0 {
		b.WriteByte('-')
		ticks = -ticks
	}
	b.WriteByte('P')

	const ticksPerDay = 86400 * ticksPerSecond
	days := ticks / ticksPerDay
	ticks %= ticksPerDay
	hours := ticks / (3600 * ticksPerSecond)
	ticks %= 3600 * ticksPerSecond
	minutes := ticks / (60 * ticksPerSecond)
	ticks %= 60 * ticksPerSecond
	seconds := ticks / ticksPerSecond
	frac := ticks % ticksPerSecond

	if days > 0 {
		b.WriteString(strconv.FormatInt(days, 10))
		b.WriteByte('D')
	}
	if days > 0 && hours == 0 && minutes == 0 && seconds == 0 && frac == 0 {
		return b.String()
	}

	b.WriteByte('T')
	if hours > 0 {
		b.WriteString(strconv.FormatInt(hours, 10))
		b.WriteByte('H')
	}
	if minutes > 0 {
		b.WriteString(strconv.FormatInt(minutes, 10))
		b.WriteByte('M')
	}
	if seconds > 0 || frac > 0 || (days == 0 && hours == 0 && minutes == 0) {
		b.WriteString(strconv.FormatInt(seconds, 10))
		if frac > 0 {
			b.WriteByte('.')
			b.WriteString(strings.TrimRight(fmt.Sprintf("%07d", frac), "0"))
		}
		b.WriteByte('S')
	}
	return b.String()
}

// ParseDuration decodes a CLIXML TimeSpan. Absent fields are zero and the
// fraction is right-padded to seven digits of 100ns ticks.
func ParseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, &ValueError{Type: "TS", Text: s, Err: ErrInvalidDuration}
	}

	var ticks int64
	fields := []struct {
		text  string
		scale int64
	}{
		{m[2], 86400 * ticksPerSecond},
		{m[3], 3600 * ticksPerSecond},
		{m[4], 60 * ticksPerSecond},
		{m[5], ticksPerSecond},
	}
	for _, f := range fields {
		if f.text == "" {
			continue
		}
		n, err := strconv.ParseInt(f.text, 10, 64)
		if err != nil || n > (math.MaxInt64-ticks)/f.scale {
			return 0, &ValueError{Type: "TS", Text: s, Err: fmt.Errorf("%w: out of range", ErrInvalidDuration)}
		}
		ticks += n * f.scale
	}
	if frac := m[6]; frac != "" {
		n, _ := strconv.ParseInt(frac+strings.Repeat("0", 7-len(frac)), 10, 64)
		if n > math.MaxInt64-ticks {
			return 0, &ValueError{Type: "TS", Text: s, Err: fmt.Errorf("%w: out of range", ErrInvalidDuration)}
		}
		ticks += n
	}
	if ticks > math.MaxInt64/100 {
		return 0, &ValueError{Type: "TS", Text: s, Err: fmt.Errorf("%w: exceeds time.Duration", ErrInvalidDuration)}
	}

	d := time.Duration(ticks) * 100
	if m[1] != "" {
		d = -d
	}
	return d, nil
}

