package database

import (
	"context"
	"fmt"
)

// AvailabilityStore reads users' weekly availability slots. The matching
// engine never writes them.
type AvailabilityStore struct {
	db *DB
}

func NewAvailabilityStore(db *DB) *AvailabilityStore {
	return &AvailabilityStore{db: db}
}

const slotColumns = `id, user_id, day_of_week, time_slot, recurrence_type, is_active, notes, created_at, updated_at`

// GetActiveSlots returns the user's active slots.
func (s *AvailabilityStore) GetActiveSlots(ctx context.Context, userID string) ([]AvailabilitySlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM availability_slots
		WHERE user_id = $1 AND is_active = true
		ORDER BY day_of_week, time_slot
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active slots: %w", err)
	}
	defer rows.Close()

	return scanSlots(rows)
}

// UserIDsWithActiveSlots returns every user owning at least one active slot,
// the population of a full availability recompute.
func (s *AvailabilityStore) UserIDsWithActiveSlots(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT user_id
		FROM availability_slots
		WHERE is_active = true
		ORDER BY user_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with active slots: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user ids: %w", err)
	}
	return userIDs, nil
}

// ActiveSlotsByUser loads all active slots grouped by owning user in one
// query, used by the batch engine to avoid one query per candidate.
func (s *AvailabilityStore) ActiveSlotsByUser(ctx context.Context) (map[string][]AvailabilitySlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM availability_slots
		WHERE is_active = true
		ORDER BY user_id, day_of_week, time_slot
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load active slots: %w", err)
	}
	defer rows.Close()

	slots, err := scanSlots(rows)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string][]AvailabilitySlot)
	for _, slot := range slots {
		byUser[slot.UserID] = append(byUser[slot.UserID], slot)
	}
	return byUser, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanSlots(rows rowScanner) ([]AvailabilitySlot, error) {
	var slots []AvailabilitySlot
	for rows.Next() {
		var slot AvailabilitySlot
		err := rows.Scan(
			&slot.ID, &slot.UserID, &slot.DayOfWeek, &slot.TimeSlot,
			&slot.RecurrenceType, &slot.IsActive, &slot.Notes,
			&slot.CreatedAt, &slot.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan availability slot: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating availability slots: %w", err)
	}
	return slots, nil
}
