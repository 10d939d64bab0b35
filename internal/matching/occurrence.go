package matching

import "time"

// slotEndHour is the hour at which each time slot is considered over.
func slotEndHour(t TimeSlot) int {
	switch t {
	case TimeSlotMorning:
		return 12
	case TimeSlotAfternoon:
		return 17
	case TimeSlotEvening:
		return 22
	default: // allday
		return 24
	}
}

// NextOccurrence returns the next calendar date whose weekday equals
// dayOfWeek (Sunday = 0), counting from now's date. Today qualifies when the
// weekdays already match; week wraparound never yields a past date.
func NextOccurrence(dayOfWeek int, now time.Time) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days := (dayOfWeek - int(now.Weekday()) + 7) % 7
	return today.AddDate(0, 0, days)
}

// NextSlotOccurrence returns the next date on which the slot occurs. Unlike
// NextOccurrence it skips today when the slot's window has already ended, so
// an evening slot queried at 23:00 points at next week.
func NextSlotOccurrence(slot Slot, now time.Time) time.Time {
	next := NextOccurrence(slot.DayOfWeek, now)
	sameDay := next.Year() == now.Year() && next.YearDay() == now.YearDay()
	if sameDay && now.Hour() >= slotEndHour(slot.TimeSlot) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// IsTomorrow reports whether the slot's day of week falls on the day after
// now.
func IsTomorrow(dayOfWeek int, now time.Time) bool {
	tomorrow := (int(now.Weekday()) + 1) % 7
	return dayOfWeek == tomorrow
}
