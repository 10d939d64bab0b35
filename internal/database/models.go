package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dadlink/dadlink/internal/matching"
)

// RecurrenceType says how often a weekly slot repeats.
type RecurrenceType string

const (
	RecurrenceWeekly   RecurrenceType = "weekly"
	RecurrenceBiweekly RecurrenceType = "biweekly"
)

// AvailabilitySlot is one recurring weekly commitment window declared by a
// user. The tuple (user_id, day_of_week, time_slot, recurrence_type) is
// unique. The engine only ever reads these rows.
type AvailabilitySlot struct {
	ID             string            `json:"id" db:"id"`
	UserID         string            `json:"user_id" db:"user_id"`
	DayOfWeek      int               `json:"day_of_week" db:"day_of_week"` // Sunday = 0
	TimeSlot       matching.TimeSlot `json:"time_slot" db:"time_slot"`
	RecurrenceType RecurrenceType    `json:"recurrence_type" db:"recurrence_type"`
	IsActive       bool              `json:"is_active" db:"is_active"`
	Notes          *string           `json:"notes" db:"notes"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}

// Slot projects the row onto the pure (day, time slot) pair used by the
// overlap calculator.
func (s AvailabilitySlot) Slot() matching.Slot {
	return matching.Slot{DayOfWeek: s.DayOfWeek, TimeSlot: s.TimeSlot}
}

// SharedSlots stores an ordered, deduplicated slot list as JSON.
type SharedSlots []matching.Slot

func (s SharedSlots) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

func (s *SharedSlots) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("cannot scan %T into SharedSlots", value)
	}
}

// AvailabilityMatch is a cached, directional compatibility record from one
// user to another. Unique per (user_id, matched_user_id); the mirror record
// is a separate row written when the other user is recomputed.
type AvailabilityMatch struct {
	ID            string      `json:"id" db:"id"`
	UserID        string      `json:"user_id" db:"user_id"`
	MatchedUserID string      `json:"matched_user_id" db:"matched_user_id"`
	SharedSlots   SharedSlots `json:"shared_slots" db:"shared_slots"`
	MatchScore    int         `json:"match_score" db:"match_score"`
	DistanceKm    *float64    `json:"distance_km" db:"distance_km"`
	CalculatedAt  time.Time   `json:"calculated_at" db:"calculated_at"`
}

// DadMatchStatus is the DadMatch relationship state machine. pending is the
// only state the scorer ever writes; accepted and declined are terminal and
// set by user action elsewhere.
type DadMatchStatus string

const (
	DadMatchPending  DadMatchStatus = "pending"
	DadMatchAccepted DadMatchStatus = "accepted"
	DadMatchDeclined DadMatchStatus = "declined"
)

// IsTerminal reports whether the status can no longer change.
func (s DadMatchStatus) IsTerminal() bool {
	return s == DadMatchAccepted || s == DadMatchDeclined
}

// CanTransitionTo validates a user-driven status transition.
func (s DadMatchStatus) CanTransitionTo(to DadMatchStatus) bool {
	return s == DadMatchPending && to.IsTerminal()
}

// AgeOverlaps stores children's age-range intersections as JSON.
type AgeOverlaps []matching.AgeOverlap

func (a AgeOverlaps) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return json.Marshal(a)
}

func (a *AgeOverlaps) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("cannot scan %T into AgeOverlaps", value)
	}
}

// DadMatch is the mutual profile/proximity compatibility record. One row per
// unordered pair, stored with dad_id1 < dad_id2.
type DadMatch struct {
	ID              string         `json:"id" db:"id"`
	DadID1          string         `json:"dad_id1" db:"dad_id1"`
	DadID2          string         `json:"dad_id2" db:"dad_id2"`
	MatchScore      int            `json:"match_score" db:"match_score"`
	DistanceKm      *float64       `json:"distance_km" db:"distance_km"`
	CommonAgeRanges AgeOverlaps    `json:"common_age_ranges" db:"common_age_ranges"`
	MatchStatus     DadMatchStatus `json:"match_status" db:"match_status"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// MatchPreferences are the per-user knobs read by the proximity scorer.
type MatchPreferences struct {
	UserID              string     `json:"user_id" db:"user_id"`
	MaxDistanceKm       float64    `json:"max_distance_km" db:"max_distance_km"`
	AgeFlexibilityYears int        `json:"age_flexibility_years" db:"age_flexibility_years"`
	IsEnabled           bool       `json:"is_enabled" db:"is_enabled"`
	LastMatchRun        *time.Time `json:"last_match_run" db:"last_match_run"`
}

// DefaultMatchPreferences returns the preferences applied to users without a
// stored row.
func DefaultMatchPreferences(userID string) *MatchPreferences {
	return &MatchPreferences{
		UserID:              userID,
		MaxDistanceKm:       matching.DefaultMaxDistanceKm,
		AgeFlexibilityYears: matching.DefaultAgeFlexibilityYears,
		IsEnabled:           true,
	}
}

// DadPreferences converts the row to the scorer's view.
func (p *MatchPreferences) DadPreferences() matching.DadPreferences {
	return matching.DadPreferences{
		MaxDistanceKm:       p.MaxDistanceKm,
		AgeFlexibilityYears: p.AgeFlexibilityYears,
		Enabled:             p.IsEnabled,
	}
}

// Child holds the age information used for compatibility.
type Child struct {
	Name     string `json:"name,omitempty"`
	AgeYears int    `json:"age_years"`
}

// Children stores a profile's children as JSON.
type Children []Child

func (c Children) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	return json.Marshal(c)
}

func (c *Children) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("cannot scan %T into Children", value)
	}
}

// Profile is the slice of a user the engine reads: identity, coordinates and
// children. Profile mutation is owned by the rest of the platform.
type Profile struct {
	UserID       string    `json:"user_id" db:"user_id"`
	Name         string    `json:"name" db:"name"`
	TelegramID   int64     `json:"telegram_id" db:"telegram_id"`
	LocationText string    `json:"location_text" db:"location_text"`
	Latitude     *float64  `json:"latitude" db:"latitude"`
	Longitude    *float64  `json:"longitude" db:"longitude"`
	Children     Children  `json:"children" db:"children"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// DadProfile converts the row to the scorer's view.
func (p *Profile) DadProfile() matching.DadProfile {
	ages := make([]int, 0, len(p.Children))
	for _, c := range p.Children {
		ages = append(ages, c.AgeYears)
	}
	return matching.DadProfile{
		ID:        p.UserID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		ChildAges: ages,
	}
}
