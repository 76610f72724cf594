package door

import (
	"sort"
	"strings"
	"time"
)

// Schedule is a named rule deciding whether a door should be unlocked
// at a given time.
type Schedule struct {
	Name     string       `json:"name"`
	Type     ScheduleType `json:"type"`
	Days     []string     `json:"days,omitempty"`       // three-letter uppercase codes: MON..SUN
	Slots    []TimeSlot   `json:"time_slots,omitempty"` // minute-of-day windows, inclusive
	Priority int          `json:"priority"`
	Active   bool         `json:"active"`
}

// deepCopy clones the schedule's slices.
func (s *Schedule) deepCopy() *Schedule {
	cpy := *s
	if s.Days != nil {
		cpy.Days = make([]string, len(s.Days))
		copy(cpy.Days, s.Days)
	}
	if s.Slots != nil {
		cpy.Slots = make([]TimeSlot, len(s.Slots))
		copy(cpy.Slots, s.Slots)
	}
	return &cpy
}

// TimeSlot is a window within a day, expressed as "HH:MM" strings.
// Bounds are inclusive: a slot 09:00-17:00 covers 09:00 and 17:00.
type TimeSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// contains reports whether the given minute-of-day falls inside the slot.
// Malformed slot strings never match.
func (t TimeSlot) contains(minuteOfDay int) bool {
	start, ok := parseMinuteOfDay(t.Start)
	if !ok {
		return false
	}
	end, ok := parseMinuteOfDay(t.End)
	if !ok {
		return false
	}
	return minuteOfDay >= start && minuteOfDay <= end
}

// parseMinuteOfDay converts "HH:MM" into minutes since midnight.
func parseMinuteOfDay(s string) (int, bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, false
	}
	h, ok := parseTwoDigits(s[:2])
	if !ok || h > 23 {
		return 0, false
	}
	m, ok := parseTwoDigits(s[3:])
	if !ok || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func parseTwoDigits(s string) (int, bool) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// ScheduleType determines how a schedule rule is evaluated.
type ScheduleType string

// ScheduleType constants.
const (
	ScheduleAlwaysLocked   ScheduleType = "ALWAYS_LOCKED"
	ScheduleAlwaysUnlocked ScheduleType = "ALWAYS_UNLOCKED"
	ScheduleScheduled      ScheduleType = "SCHEDULED"
)

// weekdayCodes maps Go weekdays to the three-letter codes used in
// schedule day sets.
var weekdayCodes = map[time.Weekday]string{
	time.Monday:    "MON",
	time.Tuesday:   "TUE",
	time.Wednesday: "WED",
	time.Thursday:  "THU",
	time.Friday:    "FRI",
	time.Saturday:  "SAT",
	time.Sunday:    "SUN",
}

// ShouldBeUnlocked evaluates the door's schedules at the given time.
//
// Emergency short-circuit: a door in emergency status is unlocked iff
// its emergency settings permit it.
//
// Otherwise active schedules are evaluated by priority descending and
// the first match decides:
//   - ALWAYS_UNLOCKED: unlocked
//   - ALWAYS_LOCKED: locked
//   - SCHEDULED: unlocked iff now's weekday code is in the day set AND
//     now's minute-of-day falls inside any slot (inclusive bounds);
//     a scheduled rule that does not cover now falls through to the
//     next schedule.
//
// With no matching schedule the door defaults to locked.
func (d *Door) ShouldBeUnlocked(now time.Time) bool {
	if d.Status == StatusEmergency {
		return d.Emergency.PermitsEmergencyUnlock()
	}

	active := make([]Schedule, 0, len(d.Schedules))
	for _, s := range d.Schedules {
		if s.Active {
			active = append(active, s)
		}
	}

	// Stable sort keeps declaration order deterministic for equal priorities.
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority > active[j].Priority
	})

	day := weekdayCodes[now.Weekday()]
	minute := now.Hour()*60 + now.Minute()

	for _, s := range active {
		switch s.Type {
		case ScheduleAlwaysUnlocked:
			return true
		case ScheduleAlwaysLocked:
			return false
		case ScheduleScheduled:
			if s.matches(day, minute) {
				return true
			}
		}
	}

	return false
}

// matches reports whether a SCHEDULED rule covers the given weekday
// code and minute-of-day.
func (s Schedule) matches(day string, minuteOfDay int) bool {
	inDaySet := false
	for _, d := range s.Days {
		if strings.EqualFold(d, day) {
			inDaySet = true
			break
		}
	}
	if !inDaySet {
		return false
	}

	for _, slot := range s.Slots {
		if slot.contains(minuteOfDay) {
			return true
		}
	}
	return false
}
