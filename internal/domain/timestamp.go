package domain

import (
	"strconv"
	"strings"
	"time"
)

// Timestamp is the tagged result of parsing a flexible time string: either a
// valid UTC instant or unparseable. The zero value is unparseable.
type Timestamp struct {
	t     time.Time
	valid bool
}

// ParsedTime wraps an already-known instant as a valid Timestamp.
func ParsedTime(t time.Time) Timestamp {
	return Timestamp{t: t.UTC(), valid: true}
}

// Time returns the instant and whether the timestamp was parseable.
func (ts Timestamp) Time() (time.Time, bool) {
	return ts.t, ts.valid
}

// Valid reports whether the timestamp was parseable.
func (ts Timestamp) Valid() bool {
	return ts.valid
}

// Before reports whether both timestamps are valid and ts is strictly earlier than other.
func (ts Timestamp) Before(other Timestamp) bool {
	return ts.valid && other.valid && ts.t.Before(other.t)
}

// TimeParser converts a string to an instant. Parsers are tried in order.
type TimeParser struct {
	Name  string
	Parse func(s string) (time.Time, error)
}

func layoutParser(layout string) TimeParser {
	return TimeParser{
		Name: layout,
		Parse: func(s string) (time.Time, error) {
			return time.Parse(layout, s)
		},
	}
}

// epochParser accepts unix seconds or milliseconds. Values above 1e12 are
// taken as milliseconds.
var epochParser = TimeParser{
	Name: "unix",
	Parse: func(s string) (time.Time, error) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		if n > 1e12 {
			return time.UnixMilli(n), nil
		}
		return time.Unix(n, 0), nil
	},
}

// DefaultTimeParsers is the fallback chain for published_at and claimed
// timestamps. Zone-less layouts are interpreted as UTC.
var DefaultTimeParsers = []TimeParser{
	layoutParser(time.RFC3339Nano),
	layoutParser(time.RFC3339),
	layoutParser("2006-01-02T15:04:05"),
	layoutParser("2006-01-02 15:04:05Z07:00"),
	layoutParser("2006-01-02 15:04:05"),
	layoutParser("2006-01-02 15:04"),
	layoutParser(time.RFC1123Z),
	layoutParser(time.RFC1123),
	layoutParser(time.RFC822Z),
	layoutParser(time.RFC850),
	layoutParser("Mon, 2 Jan 2006 15:04:05 -0700"),
	layoutParser("02.01.2006 15:04"),
	layoutParser("02/01/2006 15:04"),
	layoutParser("2006-01-02"),
	epochParser,
}

// ParseTimestamp runs s through DefaultTimeParsers.
func ParseTimestamp(s string) Timestamp {
	return ParseTimestampWith(DefaultTimeParsers, s)
}

// ParseTimestampWith returns the first successful parse of s, or an
// unparseable Timestamp if every parser fails.
func ParseTimestampWith(parsers []TimeParser, s string) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}
	}
	for _, p := range parsers {
		if t, err := p.Parse(s); err == nil {
			return ParsedTime(t)
		}
	}
	return Timestamp{}
}
