// Package system provides the wall clock used outside tests.
package system

import (
	"fmt"
	"time"
	_ "time/tzdata" // Europe/Warsaw must resolve on hosts without zoneinfo
)

// DefaultLocation is the zone in which relative dates and "today" are interpreted.
const DefaultLocation = "Europe/Warsaw"

// Clock implements crawler.Clock in a fixed location.
type Clock struct {
	loc *time.Location
}

// New returns a clock reporting UTC.
func New() *Clock {
	return &Clock{loc: time.UTC}
}

// NewInLocation returns a clock reporting times in the named IANA zone. Empty means
// DefaultLocation.
func NewInLocation(name string) (*Clock, error) {
	if name == "" {
		name = DefaultLocation
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return &Clock{loc: loc}, nil
}

// Now returns the current time in the clock's location.
func (c Clock) Now() time.Time {
	if c.loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.loc)
}

// Location returns the clock's location.
func (c Clock) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}
