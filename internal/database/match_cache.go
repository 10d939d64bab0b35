package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	apperrors "github.com/dadlink/dadlink/internal/errors"
)

// MatchCache persists the results of the two scorers. All writes are keyed
// upserts: calling them twice with identical input leaves exactly one row.
type MatchCache struct {
	db *DB
}

func NewMatchCache(db *DB) *MatchCache {
	return &MatchCache{db: db}
}

// UpsertAvailabilityMatch inserts or overwrites the directional record for
// (user_id, matched_user_id).
func (c *MatchCache) UpsertAvailabilityMatch(ctx context.Context, m *AvailabilityMatch) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CalculatedAt.IsZero() {
		m.CalculatedAt = time.Now()
	}

	query := `
		INSERT INTO availability_matches (id, user_id, matched_user_id, shared_slots, match_score, distance_km, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, matched_user_id) DO UPDATE SET
			shared_slots = EXCLUDED.shared_slots,
			match_score = EXCLUDED.match_score,
			distance_km = EXCLUDED.distance_km,
			calculated_at = EXCLUDED.calculated_at
	`
	_, err := c.db.ExecContext(ctx, query,
		m.ID, m.UserID, m.MatchedUserID, m.SharedSlots, m.MatchScore, m.DistanceKm, m.CalculatedAt,
	)
	if err != nil {
		return apperrors.NewPersistenceError(m.UserID, m.MatchedUserID, err)
	}
	return nil
}

// ReplaceOutgoing swaps a user's full outgoing availability match set in one
// transaction: rows no longer justified by current slots are deleted, the
// rest are upserted with a fresh calculated_at. An empty set prunes every
// outgoing row, which is how zero-slot users age out of the cache.
func (c *MatchCache) ReplaceOutgoing(ctx context.Context, userID string, matches []*AvailabilityMatch) error {
	now := time.Now()

	keep := make([]string, 0, len(matches))
	for _, m := range matches {
		keep = append(keep, m.MatchedUserID)
	}

	err := c.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM availability_matches WHERE user_id = $1 AND matched_user_id != ALL($2)`,
			userID, pq.Array(keep),
		)
		if err != nil {
			return fmt.Errorf("failed to prune stale matches: %w", err)
		}

		for _, m := range matches {
			if m.ID == "" {
				m.ID = uuid.New().String()
			}
			m.CalculatedAt = now
			_, err := tx.ExecContext(ctx, `
				INSERT INTO availability_matches (id, user_id, matched_user_id, shared_slots, match_score, distance_km, calculated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (user_id, matched_user_id) DO UPDATE SET
					shared_slots = EXCLUDED.shared_slots,
					match_score = EXCLUDED.match_score,
					distance_km = EXCLUDED.distance_km,
					calculated_at = EXCLUDED.calculated_at
			`, m.ID, m.UserID, m.MatchedUserID, m.SharedSlots, m.MatchScore, m.DistanceKm, m.CalculatedAt)
			if err != nil {
				return fmt.Errorf("failed to upsert match for %s: %w", m.MatchedUserID, err)
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewPersistenceError(userID, "", err)
	}
	return nil
}

// GetForUser returns the user's outgoing availability matches joined with
// the matched profile's public fields, best score first.
func (c *MatchCache) GetForUser(ctx context.Context, userID string) ([]*AvailabilityMatch, error) {
	query := `
		SELECT am.id, am.user_id, am.matched_user_id, am.shared_slots,
		       am.match_score, am.distance_km, am.calculated_at
		FROM availability_matches am
		JOIN profiles p ON p.user_id = am.matched_user_id
		WHERE am.user_id = $1 AND p.is_active = true
		ORDER BY am.match_score DESC, am.matched_user_id
	`

	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get matches for user: %w", err)
	}
	defer rows.Close()

	var matches []*AvailabilityMatch
	for rows.Next() {
		m := &AvailabilityMatch{}
		err := rows.Scan(
			&m.ID, &m.UserID, &m.MatchedUserID, &m.SharedSlots,
			&m.MatchScore, &m.DistanceKm, &m.CalculatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan availability match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating availability matches: %w", err)
	}
	return matches, nil
}

// CountSince counts a user's matches recalculated after the given time, the
// "matches found" number in digests.
func (c *MatchCache) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM availability_matches WHERE user_id = $1 AND calculated_at > $2`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return count, nil
}

// UpsertDadMatch creates a pending row for a canonical pair or refreshes the
// score and distance of the existing one. The row's match_status is never
// touched on update, so accepted and declined stay terminal.
func (c *MatchCache) UpsertDadMatch(ctx context.Context, m *DadMatch) error {
	if m.DadID1 > m.DadID2 {
		return apperrors.NewValidationError("dad_id1",
			fmt.Sprintf("pair not in canonical order: %s > %s", m.DadID1, m.DadID2))
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.MatchStatus == "" {
		m.MatchStatus = DadMatchPending
	}
	now := time.Now()

	query := `
		INSERT INTO dad_matches (id, dad_id1, dad_id2, match_score, distance_km, common_age_ranges, match_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (dad_id1, dad_id2) DO UPDATE SET
			match_score = EXCLUDED.match_score,
			distance_km = EXCLUDED.distance_km,
			common_age_ranges = EXCLUDED.common_age_ranges,
			updated_at = EXCLUDED.updated_at
	`
	_, err := c.db.ExecContext(ctx, query,
		m.ID, m.DadID1, m.DadID2, m.MatchScore, m.DistanceKm, m.CommonAgeRanges, m.MatchStatus, now,
	)
	if err != nil {
		return apperrors.NewPersistenceError(m.DadID1, m.DadID2, err)
	}
	return nil
}

// GetDadMatchesForUser returns the dad matches touching a user, best score
// first.
func (c *MatchCache) GetDadMatchesForUser(ctx context.Context, userID string) ([]*DadMatch, error) {
	query := `
		SELECT id, dad_id1, dad_id2, match_score, distance_km, common_age_ranges, match_status, created_at, updated_at
		FROM dad_matches
		WHERE dad_id1 = $1 OR dad_id2 = $1
		ORDER BY match_score DESC, id
	`

	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dad matches: %w", err)
	}
	defer rows.Close()

	var matches []*DadMatch
	for rows.Next() {
		m := &DadMatch{}
		err := rows.Scan(
			&m.ID, &m.DadID1, &m.DadID2, &m.MatchScore, &m.DistanceKm,
			&m.CommonAgeRanges, &m.MatchStatus, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dad match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dad matches: %w", err)
	}
	return matches, nil
}

// UpdateDadMatchStatus applies a user-driven transition. Only pending rows
// can move, and only to a terminal state.
func (c *MatchCache) UpdateDadMatchStatus(ctx context.Context, matchID string, to DadMatchStatus) error {
	if !DadMatchPending.CanTransitionTo(to) {
		return apperrors.NewValidationError("match_status",
			fmt.Sprintf("invalid target status %q", to))
	}

	result, err := c.db.ExecContext(ctx,
		`UPDATE dad_matches SET match_status = $1, updated_at = $2 WHERE id = $3 AND match_status = $4`,
		to, time.Now(), matchID, DadMatchPending,
	)
	if err != nil {
		return fmt.Errorf("failed to update dad match status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("pending dad match").WithMetadata("match_id", matchID)
	}
	return nil
}
