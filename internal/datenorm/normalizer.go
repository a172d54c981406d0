// Package datenorm turns publish-date strings found on news pages into timestamps.
//
// ISO 8601 values are tried first, then Polish relative expressions ("5 minut temu"), the
// "dziś"/"wczoraj" tokens and finally "21 października (10:57)" style absolute dates. Input that
// matches nothing is returned unchanged with Parsed=false; the normalizer never guesses.
package datenorm

import (
	"strings"
	"time"
)

// Clock supplies "now" for relative expressions.
type Clock interface {
	Now() time.Time
}

// Result is the outcome of a normalization attempt.
type Result struct {
	Time   time.Time
	Parsed bool
	Raw    string
}

// Pointer returns the parsed time or nil when the input did not parse.
func (r Result) Pointer() *time.Time {
	if !r.Parsed {
		return nil
	}
	t := r.Time
	return &t
}

// Normalizer converts raw date values using an injectable clock and location.
type Normalizer struct {
	clock Clock
	loc   *time.Location
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithLocation sets the zone used for offset-less timestamps and calendar arithmetic.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.loc = loc
		}
	}
}

// New creates a Normalizer. A nil clock falls back to time.Now.
func New(clock Clock, opts ...Option) *Normalizer {
	n := &Normalizer{clock: clock, loc: time.UTC}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Normalizer) now() time.Time {
	if n.clock == nil {
		return time.Now().In(n.loc)
	}
	return n.clock.Now().In(n.loc)
}

// Normalize accepts a string, time.Time or *time.Time.
func (n *Normalizer) Normalize(raw any) Result {
	switch v := raw.(type) {
	case time.Time:
		return Result{Time: v, Parsed: !v.IsZero()}
	case *time.Time:
		if v == nil || v.IsZero() {
			return Result{}
		}
		return Result{Time: *v, Parsed: true}
	case string:
		return n.NormalizeString(v)
	default:
		return Result{}
	}
}

// NormalizeString runs the full precedence cascade on a string.
func (n *Normalizer) NormalizeString(raw string) Result {
	if strings.TrimSpace(raw) == "" {
		return Result{Raw: raw}
	}
	if t, ok := n.ParseISO(raw); ok {
		return Result{Time: t, Parsed: true, Raw: raw}
	}
	if t, ok := n.ParsePolish(raw); ok {
		return Result{Time: t, Parsed: true, Raw: raw}
	}
	return Result{Raw: raw}
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseISO parses ISO 8601-like values. A trailing Z means UTC; values without an offset are
// read in the normalizer's location.
func (n *Normalizer) ParseISO(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "Z"
	}
	for _, layout := range isoLayouts {
		t, err := time.ParseInLocation(layout, s, n.loc)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Clean removes zero-width spaces, turns non-breaking spaces into spaces and collapses runs of
// whitespace.
func Clean(raw string) string {
	s := strings.ReplaceAll(raw, "\u200b", "")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}
