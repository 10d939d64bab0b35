package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dadlink/dadlink/internal/config"
	apperrors "github.com/dadlink/dadlink/internal/errors"
	"github.com/dadlink/dadlink/internal/matching"
)

// Mirrors scripts/schema.sql, trimmed to the tables the store touches.
const testSchema = `
CREATE TABLE profiles (
    user_id        TEXT PRIMARY KEY,
    name           TEXT NOT NULL DEFAULT '',
    telegram_id    BIGINT NOT NULL DEFAULT 0,
    location_text  TEXT NOT NULL DEFAULT '',
    latitude       DOUBLE PRECISION,
    longitude      DOUBLE PRECISION,
    children       JSONB NOT NULL DEFAULT '[]',
    is_active      BOOLEAN NOT NULL DEFAULT TRUE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE availability_matches (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    matched_user_id TEXT NOT NULL,
    shared_slots    JSONB NOT NULL DEFAULT '[]',
    match_score     INTEGER NOT NULL,
    distance_km     DOUBLE PRECISION,
    calculated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (user_id, matched_user_id)
);

CREATE TABLE dad_matches (
    id                TEXT PRIMARY KEY,
    dad_id1           TEXT NOT NULL,
    dad_id2           TEXT NOT NULL,
    match_score       INTEGER NOT NULL,
    distance_km       DOUBLE PRECISION,
    common_age_ranges JSONB NOT NULL DEFAULT '[]',
    match_status      TEXT NOT NULL DEFAULT 'pending',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (dad_id1, dad_id2),
    CHECK (dad_id1 < dad_id2)
);
`

// PostgresContainer manages a Postgres test container.
type PostgresContainer struct {
	container testcontainers.Container
	host      string
	port      string
}

// StartPostgresContainer starts a Postgres container for testing.
func StartPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "dadlink",
			"POSTGRES_PASSWORD": "dadlink",
			"POSTGRES_DB":       "dadlink_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, err
	}

	return &PostgresContainer{container: container, host: host, port: mappedPort.Port()}, nil
}

// Stop terminates the Postgres container.
func (pc *PostgresContainer) Stop(ctx context.Context) error {
	return pc.container.Terminate(ctx)
}

func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()
	ctx := context.Background()

	pg, err := StartPostgresContainer(ctx)
	require.NoError(t, err)

	db, err := NewConnection(config.Database{
		Host:     pg.host,
		Port:     pg.port,
		User:     "dadlink",
		Password: "dadlink",
		DBName:   "dadlink_test",
		SSLMode:  "disable",
	})
	if err != nil {
		_ = pg.Stop(ctx)
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if _, err := db.ExecContext(ctx, testSchema); err != nil {
		db.Close()
		_ = pg.Stop(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	return db, func() {
		db.Close()
		_ = pg.Stop(ctx)
	}
}

func insertProfile(t *testing.T, db *DB, userID string, active bool) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO profiles (user_id, name, is_active) VALUES ($1, $2, $3)`,
		userID, "Dad "+userID, active,
	)
	require.NoError(t, err)
}

func TestMatchCacheIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	db, teardown := setupTestDB(t)
	defer teardown()

	cache := NewMatchCache(db)

	insertProfile(t, db, "alice", true)
	insertProfile(t, db, "bob", true)
	insertProfile(t, db, "carol", true)
	insertProfile(t, db, "dormant", false)

	shared := SharedSlots{{DayOfWeek: 1, TimeSlot: matching.TimeSlotMorning}}

	t.Run("upsert is idempotent and unique per pair", func(t *testing.T) {
		record := &AvailabilityMatch{
			UserID: "alice", MatchedUserID: "bob",
			SharedSlots: shared, MatchScore: 20,
		}
		require.NoError(t, cache.UpsertAvailabilityMatch(ctx, record))
		require.NoError(t, cache.UpsertAvailabilityMatch(ctx, record))

		matches, err := cache.GetForUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, 20, matches[0].MatchScore)

		// A second record for the same pair overwrites, never duplicates.
		require.NoError(t, cache.UpsertAvailabilityMatch(ctx, &AvailabilityMatch{
			UserID: "alice", MatchedUserID: "bob",
			SharedSlots: shared, MatchScore: 40,
		}))

		matches, err = cache.GetForUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, 40, matches[0].MatchScore)
	})

	t.Run("replace outgoing swaps the full set", func(t *testing.T) {
		err := cache.ReplaceOutgoing(ctx, "alice", []*AvailabilityMatch{
			{UserID: "alice", MatchedUserID: "bob", SharedSlots: shared, MatchScore: 20},
			{UserID: "alice", MatchedUserID: "carol", SharedSlots: shared, MatchScore: 40},
		})
		require.NoError(t, err)

		matches, err := cache.GetForUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "carol", matches[0].MatchedUserID, "best score first")
		assert.Equal(t, shared, matches[0].SharedSlots)

		// Carol drops out of the set; her row must go.
		err = cache.ReplaceOutgoing(ctx, "alice", []*AvailabilityMatch{
			{UserID: "alice", MatchedUserID: "bob", SharedSlots: shared, MatchScore: 60},
		})
		require.NoError(t, err)

		matches, err = cache.GetForUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "bob", matches[0].MatchedUserID)
		assert.Equal(t, 60, matches[0].MatchScore, "score refreshed in place")
	})

	t.Run("empty set prunes every outgoing row", func(t *testing.T) {
		require.NoError(t, cache.ReplaceOutgoing(ctx, "alice", nil))

		matches, err := cache.GetForUser(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("matches against inactive profiles are hidden", func(t *testing.T) {
		err := cache.ReplaceOutgoing(ctx, "bob", []*AvailabilityMatch{
			{UserID: "bob", MatchedUserID: "alice", SharedSlots: shared, MatchScore: 20},
			{UserID: "bob", MatchedUserID: "dormant", SharedSlots: shared, MatchScore: 80},
		})
		require.NoError(t, err)

		matches, err := cache.GetForUser(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "alice", matches[0].MatchedUserID)
	})

	t.Run("count since only sees fresh rows", func(t *testing.T) {
		err := cache.ReplaceOutgoing(ctx, "carol", []*AvailabilityMatch{
			{UserID: "carol", MatchedUserID: "alice", SharedSlots: shared, MatchScore: 20},
		})
		require.NoError(t, err)

		recent, err := cache.CountSince(ctx, "carol", time.Now().Add(-time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, recent)

		future, err := cache.CountSince(ctx, "carol", time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.Zero(t, future)
	})
}

func TestDadMatchIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	db, teardown := setupTestDB(t)
	defer teardown()

	cache := NewMatchCache(db)
	distance := 2.5
	ranges := AgeOverlaps{{MinAge: 4, MaxAge: 7, OverlapYears: 3}}

	t.Run("rejects non canonical pairs", func(t *testing.T) {
		err := cache.UpsertDadMatch(ctx, &DadMatch{DadID1: "zed", DadID2: "alice", MatchScore: 50})
		require.Error(t, err)
		assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
	})

	t.Run("upsert refreshes score but never status", func(t *testing.T) {
		match := &DadMatch{
			DadID1: "alice", DadID2: "bob",
			MatchScore: 90, DistanceKm: &distance, CommonAgeRanges: ranges,
		}
		require.NoError(t, cache.UpsertDadMatch(ctx, match))

		require.NoError(t, cache.UpdateDadMatchStatus(ctx, match.ID, DadMatchAccepted))

		// A rerun with a new score must not reopen the match.
		rerun := &DadMatch{DadID1: "alice", DadID2: "bob", MatchScore: 70, CommonAgeRanges: ranges}
		require.NoError(t, cache.UpsertDadMatch(ctx, rerun))

		matches, err := cache.GetDadMatchesForUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, 70, matches[0].MatchScore)
		assert.Equal(t, DadMatchAccepted, matches[0].MatchStatus)
		assert.Equal(t, ranges, matches[0].CommonAgeRanges)
	})

	t.Run("terminal rows cannot transition again", func(t *testing.T) {
		matches, err := cache.GetDadMatchesForUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, matches, 1)

		err = cache.UpdateDadMatchStatus(ctx, matches[0].ID, DadMatchDeclined)
		require.Error(t, err)
		assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
	})

	t.Run("pending is not a transition target", func(t *testing.T) {
		err := cache.UpdateDadMatchStatus(ctx, "whatever", DadMatchPending)
		require.Error(t, err)
		assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
	})

	t.Run("unknown match id", func(t *testing.T) {
		err := cache.UpdateDadMatchStatus(ctx, "missing-id", DadMatchAccepted)
		require.Error(t, err)
		assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
	})
}
