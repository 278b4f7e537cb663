package reminder

import (
	"strings"
	"time"
)

// WeekdaySet is a bitmask of time.Weekday values (bit 0 = Sunday).
type WeekdaySet uint8

const allWeekdays WeekdaySet = 1<<7 - 1

// Weekdays builds a set from the given days. Out-of-range days are kept out of
// the set; NewWeekly reports them as validation errors before calling this.
func Weekdays(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		if d >= time.Sunday && d <= time.Saturday {
			s |= 1 << uint(d)
		}
	}
	return s
}

func (s WeekdaySet) Has(d time.Weekday) bool {
	if d < time.Sunday || d > time.Saturday {
		return false
	}
	return s&(1<<uint(d)) != 0
}

func (s WeekdaySet) Empty() bool { return s&allWeekdays == 0 }

// Days lists the members in Sunday-first order.
func (s WeekdaySet) Days() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s WeekdaySet) String() string {
	days := s.Days()
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = d.String()[:3]
	}
	return strings.Join(parts, ",")
}
