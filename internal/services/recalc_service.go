// Package services hosts the batch recalculation engine and the read-side
// overview builder on top of the stores in internal/database.
package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dadlink/dadlink/internal/database"
	apperrors "github.com/dadlink/dadlink/internal/errors"
	"github.com/dadlink/dadlink/internal/geocode"
	"github.com/dadlink/dadlink/internal/matching"
	"github.com/dadlink/dadlink/internal/telemetry"
)

// AvailabilityReader is the read contract over weekly availability slots.
type AvailabilityReader interface {
	GetActiveSlots(ctx context.Context, userID string) ([]database.AvailabilitySlot, error)
	UserIDsWithActiveSlots(ctx context.Context) ([]string, error)
	ActiveSlotsByUser(ctx context.Context) (map[string][]database.AvailabilitySlot, error)
}

// ProfileReader is the read contract over profiles and match preferences.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*database.Profile, error)
	GetPreferences(ctx context.Context, userID string) (*database.MatchPreferences, error)
	EnabledDadIDs(ctx context.Context) ([]string, error)
	TouchLastMatchRun(ctx context.Context, userID string, at time.Time) error
}

// MatchStore is the persistence contract of the match cache.
type MatchStore interface {
	ReplaceOutgoing(ctx context.Context, userID string, matches []*database.AvailabilityMatch) error
	UpsertDadMatch(ctx context.Context, m *database.DadMatch) error
	GetForUser(ctx context.Context, userID string) ([]*database.AvailabilityMatch, error)
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// LocationResolver fills in coordinates for profiles carrying only a
// location text. Optional; without one such profiles count as no-location.
type LocationResolver interface {
	Resolve(ctx context.Context, locationText string) (*geocode.Coordinates, error)
}

// UserError couples a failed user to the error for run diagnostics.
type UserError struct {
	UserID string `json:"user_id"`
	Err    string `json:"error"`
}

// RecalcSummary is the aggregate result of a batch run. A run with errors is
// still a completed run; only configuration errors abort it.
type RecalcSummary struct {
	Processed      int         `json:"processed"`
	MatchesCreated int         `json:"matches_created"`
	Errors         []UserError `json:"errors,omitempty"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     time.Time   `json:"finished_at"`
}

// RecalcService drives match recomputation over the active population.
type RecalcService struct {
	slots    AvailabilityReader
	profiles ProfileReader
	cache    MatchStore
	locator  LocationResolver

	pauseEvery int
	pause      time.Duration
	now        func() time.Time
}

// RecalcOption configures the service.
type RecalcOption func(*RecalcService)

// WithRateLimit sets the cooperative pause: after every n processed users
// the run sleeps for d.
func WithRateLimit(n int, d time.Duration) RecalcOption {
	return func(s *RecalcService) {
		if n > 0 {
			s.pauseEvery = n
		}
		s.pause = d
	}
}

// WithLocationResolver installs the geocode fallback for text-only profiles.
func WithLocationResolver(r LocationResolver) RecalcOption {
	return func(s *RecalcService) { s.locator = r }
}

// WithClock overrides time.Now, used in tests.
func WithClock(now func() time.Time) RecalcOption {
	return func(s *RecalcService) { s.now = now }
}

// NewRecalcService builds the batch engine over the given stores.
func NewRecalcService(slots AvailabilityReader, profiles ProfileReader, cache MatchStore, opts ...RecalcOption) *RecalcService {
	s := &RecalcService{
		slots:      slots,
		profiles:   profiles,
		cache:      cache,
		pauseEvery: 10,
		pause:      100 * time.Millisecond,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunFullRecalculation recomputes availability matches for every user with
// an active slot and dad matches for every enabled pair. Per-user failures
// are collected in the summary; the run only aborts on configuration
// errors. Safe to re-run at any time: every write is a keyed upsert.
func (s *RecalcService) RunFullRecalculation(ctx context.Context) (*RecalcSummary, error) {
	logger := telemetry.LogFromContext(ctx).WithField("operation", "full_recalculation")
	summary := &RecalcSummary{StartedAt: s.now()}

	if s.slots == nil || s.cache == nil {
		return summary, apperrors.NewConfigurationError("recalc service missing required stores")
	}

	slotsByUser, err := s.slots.ActiveSlotsByUser(ctx)
	if err != nil {
		return summary, apperrors.NewConfigurationError("unable to enumerate active availability slots").
			WithMetadata("cause", err.Error())
	}

	userIDs := make([]string, 0, len(slotsByUser))
	for id := range slotsByUser {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	logger.WithField("population", len(userIDs)).Info("Starting availability recalculation")

	profiles := s.newProfileCache()
	for i, userID := range userIDs {
		created, err := s.recalcAvailabilityForUser(ctx, userID, slotsByUser[userID], slotsByUser, profiles)
		if err != nil {
			logger.WithError(err).WithField("user_id", userID).Error("Availability recompute failed for user")
			summary.Errors = append(summary.Errors, UserError{UserID: userID, Err: err.Error()})
		} else {
			summary.MatchesCreated += created
		}
		summary.Processed++

		if err := s.maybePause(ctx, i+1); err != nil {
			summary.FinishedAt = s.now()
			return summary, err
		}
	}

	dadCreated, dadErrors, err := s.recalcDadMatches(ctx, profiles)
	if err != nil {
		summary.FinishedAt = s.now()
		return summary, err
	}
	summary.MatchesCreated += dadCreated
	summary.Errors = append(summary.Errors, dadErrors...)

	summary.FinishedAt = s.now()
	logger.WithFields(map[string]interface{}{
		"processed":       summary.Processed,
		"matches_created": summary.MatchesCreated,
		"errors":          len(summary.Errors),
		"duration":        summary.FinishedAt.Sub(summary.StartedAt).String(),
	}).Info("Full recalculation finished")

	return summary, nil
}

// RunForUser recomputes one user's outgoing matches synchronously, the path
// behind "user toggled a slot". Returns the number of matches created for
// immediate feedback.
func (s *RecalcService) RunForUser(ctx context.Context, userID string) (int, error) {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"operation": "user_recalculation",
		"user_id":   userID,
	})

	if s.slots == nil || s.cache == nil {
		return 0, apperrors.NewConfigurationError("recalc service missing required stores")
	}

	slotsByUser, err := s.slots.ActiveSlotsByUser(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load availability slots: %w", err)
	}

	profiles := s.newProfileCache()
	created, err := s.recalcAvailabilityForUser(ctx, userID, slotsByUser[userID], slotsByUser, profiles)
	if err != nil {
		return 0, err
	}

	dadCreated, err := s.recalcDadMatchesForUser(ctx, userID, profiles)
	if err != nil {
		// Availability matches are already written; report what succeeded
		// and log the rest.
		logger.WithError(err).Error("Dad match recompute failed")
		return created, err
	}

	logger.WithField("matches_created", created+dadCreated).Info("User recalculation finished")
	return created + dadCreated, nil
}

// recalcAvailabilityForUser rebuilds one user's full outgoing availability
// match set against the rest of the active population.
func (s *RecalcService) recalcAvailabilityForUser(
	ctx context.Context,
	userID string,
	userSlots []database.AvailabilitySlot,
	slotsByUser map[string][]database.AvailabilitySlot,
	profiles *profileCache,
) (int, error) {
	mySlots := toSlots(userSlots)

	// No active slots: prune any outgoing rows and stop. They must not be
	// recreated until the user declares availability again.
	if len(mySlots) == 0 {
		if err := s.cache.ReplaceOutgoing(ctx, userID, nil); err != nil {
			return 0, err
		}
		return 0, nil
	}

	candidateIDs := make([]string, 0, len(slotsByUser))
	for id := range slotsByUser {
		if id != userID {
			candidateIDs = append(candidateIDs, id)
		}
	}
	sort.Strings(candidateIDs)

	myCoords := profiles.coordinates(ctx, userID)

	var outgoing []*database.AvailabilityMatch
	for _, candidateID := range candidateIDs {
		shared, score := matching.ComputeOverlap(mySlots, toSlots(slotsByUser[candidateID]))
		if score == 0 {
			continue
		}

		match := &database.AvailabilityMatch{
			UserID:        userID,
			MatchedUserID: candidateID,
			SharedSlots:   database.SharedSlots(shared),
			MatchScore:    score,
		}
		if myCoords != nil {
			if theirCoords := profiles.coordinates(ctx, candidateID); theirCoords != nil {
				distance := matching.Haversine(myCoords.Latitude, myCoords.Longitude, theirCoords.Latitude, theirCoords.Longitude)
				match.DistanceKm = &distance
			}
		}
		outgoing = append(outgoing, match)
	}

	if err := s.cache.ReplaceOutgoing(ctx, userID, outgoing); err != nil {
		return 0, err
	}

	if s.profiles != nil {
		if err := s.profiles.TouchLastMatchRun(ctx, userID, s.now()); err != nil {
			telemetry.LogFromContext(ctx).WithError(err).WithField("user_id", userID).
				Warn("Failed to stamp last match run")
		}
	}

	return len(outgoing), nil
}

// recalcDadMatches scores every enabled pair once. Pairs are partitioned by
// the lower user ID, so a parallel rendition would never write the same
// canonical key from two workers.
func (s *RecalcService) recalcDadMatches(ctx context.Context, profiles *profileCache) (int, []UserError, error) {
	if s.profiles == nil {
		return 0, nil, nil
	}

	dadIDs, err := s.profiles.EnabledDadIDs(ctx)
	if err != nil {
		return 0, nil, apperrors.NewConfigurationError("unable to enumerate enabled dads").
			WithMetadata("cause", err.Error())
	}
	sort.Strings(dadIDs)

	var created int
	var errs []UserError
	for i, dadID := range dadIDs {
		n, err := s.scoreDadAgainst(ctx, dadID, dadIDs[i+1:], profiles)
		if err != nil {
			errs = append(errs, UserError{UserID: dadID, Err: err.Error()})
			continue
		}
		created += n

		if err := s.maybePause(ctx, i+1); err != nil {
			return created, errs, err
		}
	}
	return created, errs, nil
}

// recalcDadMatchesForUser scores one user against the whole enabled
// population, both sides of each pair collapsing onto the canonical key.
func (s *RecalcService) recalcDadMatchesForUser(ctx context.Context, userID string, profiles *profileCache) (int, error) {
	if s.profiles == nil {
		return 0, nil
	}

	dadIDs, err := s.profiles.EnabledDadIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate enabled dads: %w", err)
	}

	others := make([]string, 0, len(dadIDs))
	isEnabled := false
	for _, id := range dadIDs {
		if id == userID {
			isEnabled = true
			continue
		}
		others = append(others, id)
	}
	if !isEnabled {
		return 0, nil
	}

	return s.scoreDadAgainst(ctx, userID, others, profiles)
}

func (s *RecalcService) scoreDadAgainst(ctx context.Context, dadID string, candidateIDs []string, profiles *profileCache) (int, error) {
	logger := telemetry.LogFromContext(ctx)

	profile, prefs, err := profiles.scoringView(ctx, dadID)
	if err != nil {
		return 0, err
	}

	var created int
	for _, candidateID := range candidateIDs {
		candidateProfile, candidatePrefs, err := profiles.scoringView(ctx, candidateID)
		if err != nil {
			// Candidate lookup failures exclude the pair for this run only.
			logger.WithError(err).WithFields(map[string]interface{}{
				"user_id":      dadID,
				"candidate_id": candidateID,
			}).Warn("Candidate lookup failed, pair skipped")
			continue
		}

		candidate, reason := matching.ComputeDadScore(profile, candidateProfile, prefs, candidatePrefs)
		if reason != matching.ReasonNone {
			continue
		}

		match := &database.DadMatch{
			DadID1:          candidate.DadID1,
			DadID2:          candidate.DadID2,
			MatchScore:      candidate.Score,
			DistanceKm:      &candidate.DistanceKm,
			CommonAgeRanges: database.AgeOverlaps(candidate.CommonAgeRanges),
			MatchStatus:     database.DadMatchPending,
		}
		if err := s.cache.UpsertDadMatch(ctx, match); err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"dad_id1": candidate.DadID1,
				"dad_id2": candidate.DadID2,
			}).Error("Dad match upsert failed, continuing")
			continue
		}
		created++
	}
	return created, nil
}

// maybePause implements the cooperative backpressure pause.
func (s *RecalcService) maybePause(ctx context.Context, processed int) error {
	if s.pause <= 0 || s.pauseEvery <= 0 || processed%s.pauseEvery != 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.pause):
		return nil
	}
}

func toSlots(rows []database.AvailabilitySlot) []matching.Slot {
	slots := make([]matching.Slot, 0, len(rows))
	for _, row := range rows {
		if !row.IsActive {
			continue
		}
		slots = append(slots, row.Slot())
	}
	return slots
}

// profileCache memoizes profile, preference and geocode lookups for the
// duration of one run.
type profileCache struct {
	svc     *RecalcService
	views   map[string]*scoringView
	coords  map[string]*geocode.Coordinates
	hasView map[string]bool
}

type scoringView struct {
	profile matching.DadProfile
	prefs   matching.DadPreferences
	err     error
}

func (s *RecalcService) newProfileCache() *profileCache {
	return &profileCache{
		svc:     s,
		views:   map[string]*scoringView{},
		coords:  map[string]*geocode.Coordinates{},
		hasView: map[string]bool{},
	}
}

// scoringView returns the cached scoring inputs for a user, fetching and
// geocoding on first use.
func (c *profileCache) scoringView(ctx context.Context, userID string) (matching.DadProfile, matching.DadPreferences, error) {
	if v, ok := c.views[userID]; ok {
		return v.profile, v.prefs, v.err
	}

	view := &scoringView{}
	defer func() { c.views[userID] = view }()

	if c.svc.profiles == nil {
		view.err = apperrors.NewConfigurationError("no profile store configured")
		return view.profile, view.prefs, view.err
	}

	profile, err := c.svc.profiles.GetProfile(ctx, userID)
	if err != nil {
		view.err = apperrors.NewTransientLookupError("profile", err)
		return view.profile, view.prefs, view.err
	}

	prefs, err := c.svc.profiles.GetPreferences(ctx, userID)
	if err != nil {
		view.err = apperrors.NewTransientLookupError("preferences", err)
		return view.profile, view.prefs, view.err
	}

	view.profile = profile.DadProfile()
	view.prefs = prefs.DadPreferences()

	// Fall back to geocoding when the profile has a location text but no
	// stored coordinates. A resolver failure leaves the coordinates empty,
	// which the scorer reports as no-location.
	if view.profile.Latitude == nil && profile.LocationText != "" && c.svc.locator != nil {
		if coords, err := c.svc.locator.Resolve(ctx, profile.LocationText); err != nil {
			telemetry.LogFromContext(ctx).WithError(err).WithField("user_id", userID).
				Debug("Geocode lookup failed, treating as no location")
		} else if coords != nil {
			view.profile.Latitude = &coords.Latitude
			view.profile.Longitude = &coords.Longitude
		}
	}

	c.coords[userID] = coordsOf(view.profile)
	c.hasView[userID] = true
	return view.profile, view.prefs, view.err
}

// coordinates returns a user's coordinates or nil, tolerating lookup
// failures (availability matches simply omit the distance).
func (c *profileCache) coordinates(ctx context.Context, userID string) *geocode.Coordinates {
	if c.hasView[userID] {
		return c.coords[userID]
	}
	profile, _, err := c.scoringView(ctx, userID)
	if err != nil {
		return nil
	}
	return coordsOf(profile)
}

func coordsOf(p matching.DadProfile) *geocode.Coordinates {
	if p.Latitude == nil || p.Longitude == nil {
		return nil
	}
	return &geocode.Coordinates{Latitude: *p.Latitude, Longitude: *p.Longitude}
}
