package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/dadlink/dadlink/internal/errors"
	"github.com/dadlink/dadlink/internal/matching"
)

// ProfileStore reads profile and preference data for the scorers.
type ProfileStore struct {
	db *DB
}

func NewProfileStore(db *DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// GetProfile returns one user's scoring view of their profile.
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	profile := &Profile{}
	query := `
		SELECT user_id, name, telegram_id, location_text, latitude, longitude,
		       children, is_active, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.UserID, &profile.Name, &profile.TelegramID, &profile.LocationText,
		&profile.Latitude, &profile.Longitude, &profile.Children,
		&profile.IsActive, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFoundError("profile")
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// GetPreferences returns the user's match preferences, falling back to the
// documented defaults when no row exists.
func (s *ProfileStore) GetPreferences(ctx context.Context, userID string) (*MatchPreferences, error) {
	prefs := &MatchPreferences{}
	query := `
		SELECT user_id, max_distance_km, age_flexibility_years, is_enabled, last_match_run
		FROM match_preferences
		WHERE user_id = $1
	`

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&prefs.UserID, &prefs.MaxDistanceKm, &prefs.AgeFlexibilityYears,
		&prefs.IsEnabled, &prefs.LastMatchRun,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return DefaultMatchPreferences(userID), nil
		}
		return nil, fmt.Errorf("failed to get match preferences: %w", err)
	}
	return prefs, nil
}

// EnabledDadIDs returns every active user eligible for dad matching: profile
// present and preferences not disabled.
func (s *ProfileStore) EnabledDadIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT p.user_id
		FROM profiles p
		LEFT JOIN match_preferences mp ON mp.user_id = p.user_id
		WHERE p.is_active = true
		  AND COALESCE(mp.is_enabled, true) = true
		ORDER BY p.user_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled dads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan dad id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dad ids: %w", err)
	}
	return ids, nil
}

// TouchLastMatchRun stamps the informational last_match_run field after a
// successful per-user recompute.
func (s *ProfileStore) TouchLastMatchRun(ctx context.Context, userID string, at time.Time) error {
	query := `
		INSERT INTO match_preferences (user_id, max_distance_km, age_flexibility_years, is_enabled, last_match_run)
		VALUES ($1, $2, $3, true, $4)
		ON CONFLICT (user_id) DO UPDATE SET last_match_run = EXCLUDED.last_match_run
	`
	_, err := s.db.ExecContext(ctx, query, userID,
		matching.DefaultMaxDistanceKm, matching.DefaultAgeFlexibilityYears, at)
	if err != nil {
		return fmt.Errorf("failed to stamp last match run: %w", err)
	}
	return nil
}

// GetTelegramID resolves the chat target for notification dispatch.
func (s *ProfileStore) GetTelegramID(ctx context.Context, userID string) (int64, error) {
	var telegramID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT telegram_id FROM profiles WHERE user_id = $1`, userID,
	).Scan(&telegramID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, apperrors.NewNotFoundError("profile")
		}
		return 0, fmt.Errorf("failed to get telegram id: %w", err)
	}
	return telegramID, nil
}
