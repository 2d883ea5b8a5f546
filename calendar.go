// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pgstmtdriver

import (
	"time"
)

// Calendar is a time zone together with the instant that was last computed
// for it. Date/time setters and getters that accept a Calendar interpret
// values in the time zone of the Calendar instead of the time zone of the
// value itself.
type Calendar struct {
	loc *time.Location
	t   time.Time
}

// NewCalendar returns a Calendar for the given location. A nil location is
// interpreted as UTC.
func NewCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{loc: loc}
}

// Location returns the time zone of the Calendar. The zero Calendar uses UTC.
func (c *Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Time returns the instant that was last stored in the Calendar.
func (c *Calendar) Time() time.Time {
	return c.t
}

// SetTime stores an instant in the Calendar.
func (c *Calendar) SetTime(t time.Time) {
	c.t = t
}

// Direction determines which way Adjust shifts an instant.
type Direction int

const (
	// ToTarget is used for values that are sent to the server.
	ToTarget Direction = iota
	// FromTarget is used for values that are read from the server.
	FromTarget
)

// Adjust shifts instant by the difference between the UTC offset of its own
// location and the standard UTC offset of the location of cal. One hour is
// added (ToTarget) or removed (FromTarget) when instant falls in daylight
// saving time in the location of cal, so a ToTarget adjustment followed by a
// FromTarget adjustment returns the original instant as long as both values
// are on the same side of a daylight saving transition.
//
// The daylight saving hour is signed by direction. Drivers that add the hour
// in both directions do not round-trip, and callers that relied on that
// behavior see FromTarget results that are two hours earlier during daylight
// saving time.
//
// The shifted instant is stored in cal, and cal is returned. The returned
// Calendar is the only valid view of the result; other references to cal see
// the same updated value. The location of the shifted instant is the location
// of instant.
func Adjust(instant time.Time, cal *Calendar, dir Direction) *Calendar {
	_, localOffset := instant.Zone()
	loc := cal.Location()
	targetOffset := standardOffset(instant, loc)
	delta := time.Duration(targetOffset-localOffset) * time.Second
	var dst time.Duration
	if instant.In(loc).IsDST() {
		dst = time.Hour
	}
	var shifted time.Time
	if dir == ToTarget {
		shifted = instant.Add(dst - delta)
	} else {
		shifted = instant.Add(delta - dst)
	}
	cal.SetTime(shifted)
	return cal
}

// standardOffset returns the UTC offset in seconds of loc outside daylight
// saving time in the year of t.
func standardOffset(t time.Time, loc *time.Location) int {
	year := t.In(loc).Year()
	jan := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	jul := time.Date(year, time.July, 1, 0, 0, 0, 0, loc)
	if !jan.IsDST() {
		_, offset := jan.Zone()
		return offset
	}
	_, offset := jul.Zone()
	return offset
}
