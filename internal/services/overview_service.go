package services

import (
	"context"
	"sort"
	"time"

	"github.com/dadlink/dadlink/internal/database"
	apperrors "github.com/dadlink/dadlink/internal/errors"
	"github.com/dadlink/dadlink/internal/matching"
	"github.com/dadlink/dadlink/internal/telemetry"
)

const topMatchLimit = 3

// UpcomingSlot is one availability slot annotated with its next calendar
// occurrence.
type UpcomingSlot struct {
	DayOfWeek  int               `json:"day_of_week"`
	TimeSlot   matching.TimeSlot `json:"time_slot"`
	NextDate   time.Time         `json:"next_date"`
	IsTomorrow bool              `json:"is_tomorrow"`
}

// MatchPreview is the trimmed match view embedded in an overview.
type MatchPreview struct {
	MatchedUserID string          `json:"matched_user_id"`
	MatchedName   string          `json:"matched_name,omitempty"`
	MatchScore    int             `json:"match_score"`
	SharedSlots   []matching.Slot `json:"shared_slots"`
	DistanceKm    *float64        `json:"distance_km,omitempty"`
}

// Overview is the digest view of one user's availability and matches.
type Overview struct {
	UserID       string         `json:"user_id"`
	Slots        []UpcomingSlot `json:"slots"`
	MatchesCount int            `json:"matches_count"`
	TopMatches   []MatchPreview `json:"top_matches"`
}

// ReminderSlot couples a tomorrow slot with the users available in it, the
// payload behind the daily reminder notification.
type ReminderSlot struct {
	Slot         matching.Slot
	MatchedUsers []MatchPreview
}

// OverviewService assembles read-side digests from the availability store
// and the match cache. It never writes.
type OverviewService struct {
	slots    AvailabilityReader
	profiles ProfileReader
	cache    MatchStore
	now      func() time.Time
}

// OverviewOption configures the service.
type OverviewOption func(*OverviewService)

// WithOverviewClock overrides time.Now, used in tests.
func WithOverviewClock(now func() time.Time) OverviewOption {
	return func(s *OverviewService) { s.now = now }
}

// NewOverviewService builds the digest assembler over the given stores.
func NewOverviewService(slots AvailabilityReader, profiles ProfileReader, cache MatchStore, opts ...OverviewOption) *OverviewService {
	s := &OverviewService{
		slots:    slots,
		profiles: profiles,
		cache:    cache,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildOverview returns the user's active slots ordered by next occurrence,
// the total cached match count and the top scored matches. Name lookups are
// best effort; a preview without a name is still a preview.
func (s *OverviewService) BuildOverview(ctx context.Context, userID string) (*Overview, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("user_id", "user id is required")
	}

	now := s.now()

	rows, err := s.slots.GetActiveSlots(ctx, userID)
	if err != nil {
		return nil, err
	}

	upcoming := make([]UpcomingSlot, 0, len(rows))
	for _, row := range rows {
		slot := row.Slot()
		upcoming = append(upcoming, UpcomingSlot{
			DayOfWeek:  slot.DayOfWeek,
			TimeSlot:   slot.TimeSlot,
			NextDate:   matching.NextSlotOccurrence(slot, now),
			IsTomorrow: matching.IsTomorrow(slot.DayOfWeek, now),
		})
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].NextDate.Before(upcoming[j].NextDate)
	})

	matches, err := s.cache.GetForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})

	overview := &Overview{
		UserID:       userID,
		Slots:        upcoming,
		MatchesCount: len(matches),
		TopMatches:   make([]MatchPreview, 0, topMatchLimit),
	}
	for _, m := range matches {
		if len(overview.TopMatches) == topMatchLimit {
			break
		}
		overview.TopMatches = append(overview.TopMatches, s.preview(ctx, m))
	}

	return overview, nil
}

// MatchesSince reports how many cached matches the user gained since the
// given time, the headline number of the weekly digest.
func (s *OverviewService) MatchesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	if userID == "" {
		return 0, apperrors.NewValidationError("user_id", "user id is required")
	}
	return s.cache.CountSince(ctx, userID, since)
}

// TomorrowSlotsWithMatches returns the user's slots that occur tomorrow,
// each with the matched users sharing that exact slot. Empty result means
// no reminder is due.
func (s *OverviewService) TomorrowSlotsWithMatches(ctx context.Context, userID string) ([]ReminderSlot, error) {
	rows, err := s.slots.GetActiveSlots(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var tomorrow []matching.Slot
	for _, row := range rows {
		if matching.IsTomorrow(row.DayOfWeek, now) {
			tomorrow = append(tomorrow, row.Slot())
		}
	}
	if len(tomorrow) == 0 {
		return nil, nil
	}

	matches, err := s.cache.GetForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var reminders []ReminderSlot
	for _, slot := range tomorrow {
		reminder := ReminderSlot{Slot: slot}
		for _, m := range matches {
			if sharesSlot(m.SharedSlots, slot) {
				reminder.MatchedUsers = append(reminder.MatchedUsers, s.preview(ctx, m))
			}
		}
		if len(reminder.MatchedUsers) > 0 {
			reminders = append(reminders, reminder)
		}
	}
	return reminders, nil
}

func (s *OverviewService) preview(ctx context.Context, m *database.AvailabilityMatch) MatchPreview {
	p := MatchPreview{
		MatchedUserID: m.MatchedUserID,
		MatchScore:    m.MatchScore,
		SharedSlots:   m.SharedSlots,
		DistanceKm:    m.DistanceKm,
	}
	if s.profiles != nil {
		if profile, err := s.profiles.GetProfile(ctx, m.MatchedUserID); err != nil {
			telemetry.LogFromContext(ctx).WithError(err).WithField("user_id", m.MatchedUserID).
				Debug("Name lookup failed for match preview")
		} else {
			p.MatchedName = profile.Name
		}
	}
	return p
}

func sharesSlot(shared []matching.Slot, slot matching.Slot) bool {
	for _, s := range shared {
		if s.DayOfWeek == slot.DayOfWeek && s.TimeSlot == slot.TimeSlot {
			return true
		}
	}
	return false
}
