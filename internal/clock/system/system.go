// Package system provides the wall clock used to stamp crawl state.
package system

import "time"

// Clock implements crawler.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to whole seconds, the
// resolution stored in crawl state and reports.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
