// Package matching contains the pure compatibility scoring functions of the
// engine: weekly slot overlap, proximity/age scoring and next-occurrence
// date arithmetic. Nothing in this package touches the database.
package matching

import "sort"

// TimeSlot is a named window within a day.
type TimeSlot string

const (
	TimeSlotMorning   TimeSlot = "morning"
	TimeSlotAfternoon TimeSlot = "afternoon"
	TimeSlotEvening   TimeSlot = "evening"
	TimeSlotAllDay    TimeSlot = "allday"
)

// Valid reports whether t is a known time slot value.
func (t TimeSlot) Valid() bool {
	switch t {
	case TimeSlotMorning, TimeSlotAfternoon, TimeSlotEvening, TimeSlotAllDay:
		return true
	}
	return false
}

// Slot is one recurring weekly window: a (day-of-week, time-of-day) pair.
// DayOfWeek follows time.Weekday numbering, Sunday = 0.
type Slot struct {
	DayOfWeek int      `json:"day_of_week"`
	TimeSlot  TimeSlot `json:"time_slot"`
}

// Scoring constants for availability overlap. Each shared weekly slot is
// worth PointsPerSharedSlot, saturating at MaxScore.
const (
	PointsPerSharedSlot = 20
	MaxScore            = 100
)

// ComputeOverlap returns the intersection of two users' slot sets and the
// symmetric availability score. Matching is by exact (dayOfWeek, timeSlot)
// equality: "allday" is its own value and does not merge with morning,
// afternoon or evening. Zero shared slots yields a zero score, meaning no
// match row should exist for the pair.
func ComputeOverlap(slotsA, slotsB []Slot) ([]Slot, int) {
	if len(slotsA) == 0 || len(slotsB) == 0 {
		return nil, 0
	}

	inA := make(map[Slot]bool, len(slotsA))
	for _, s := range slotsA {
		inA[s] = true
	}

	seen := make(map[Slot]bool)
	var shared []Slot
	for _, s := range slotsB {
		if inA[s] && !seen[s] {
			seen[s] = true
			shared = append(shared, s)
		}
	}

	if len(shared) == 0 {
		return nil, 0
	}

	SortSlots(shared)

	score := len(shared) * PointsPerSharedSlot
	if score > MaxScore {
		score = MaxScore
	}
	return shared, score
}

// SortSlots orders slots by day of week, then by time-of-day within the day.
// Both directions of a pair therefore produce the same shared slot list.
func SortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].DayOfWeek != slots[j].DayOfWeek {
			return slots[i].DayOfWeek < slots[j].DayOfWeek
		}
		return timeSlotRank(slots[i].TimeSlot) < timeSlotRank(slots[j].TimeSlot)
	})
}

func timeSlotRank(t TimeSlot) int {
	switch t {
	case TimeSlotMorning:
		return 0
	case TimeSlotAfternoon:
		return 1
	case TimeSlotEvening:
		return 2
	case TimeSlotAllDay:
		return 3
	}
	return 4
}
