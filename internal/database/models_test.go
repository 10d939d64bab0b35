package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dadlink/dadlink/internal/matching"
)

func TestDadMatchStatusTransitions(t *testing.T) {
	tests := []struct {
		from    DadMatchStatus
		to      DadMatchStatus
		allowed bool
	}{
		{DadMatchPending, DadMatchAccepted, true},
		{DadMatchPending, DadMatchDeclined, true},
		{DadMatchPending, DadMatchPending, false},
		{DadMatchAccepted, DadMatchDeclined, false},
		{DadMatchAccepted, DadMatchPending, false},
		{DadMatchDeclined, DadMatchAccepted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.False(t, DadMatchPending.IsTerminal())
	assert.True(t, DadMatchAccepted.IsTerminal())
	assert.True(t, DadMatchDeclined.IsTerminal())
}

func TestSharedSlotsScan(t *testing.T) {
	t.Run("scans bytes and strings", func(t *testing.T) {
		payload := `[{"day_of_week":1,"time_slot":"morning"}]`
		want := SharedSlots{{DayOfWeek: 1, TimeSlot: matching.TimeSlotMorning}}

		var fromBytes SharedSlots
		require.NoError(t, fromBytes.Scan([]byte(payload)))
		assert.Equal(t, want, fromBytes)

		var fromString SharedSlots
		require.NoError(t, fromString.Scan(payload))
		assert.Equal(t, want, fromString)
	})

	t.Run("nil column scans to nil", func(t *testing.T) {
		s := SharedSlots{{DayOfWeek: 1, TimeSlot: matching.TimeSlotMorning}}
		require.NoError(t, s.Scan(nil))
		assert.Nil(t, s)
	})

	t.Run("rejects unexpected types", func(t *testing.T) {
		var s SharedSlots
		assert.Error(t, s.Scan(42))
	})

	t.Run("nil value writes an empty array", func(t *testing.T) {
		var s SharedSlots
		v, err := s.Value()
		require.NoError(t, err)
		assert.Equal(t, "[]", v)
	})
}

func TestProfileDadProfile(t *testing.T) {
	lat, lng := 52.37, 4.90
	p := &Profile{
		UserID:    "alice",
		Latitude:  &lat,
		Longitude: &lng,
		Children:  Children{{Name: "Mia", AgeYears: 5}, {AgeYears: 7}},
	}

	dad := p.DadProfile()
	assert.Equal(t, "alice", dad.ID)
	assert.Equal(t, &lat, dad.Latitude)
	assert.Equal(t, []int{5, 7}, dad.ChildAges)
}

func TestDefaultMatchPreferences(t *testing.T) {
	prefs := DefaultMatchPreferences("alice")

	assert.Equal(t, matching.DefaultMaxDistanceKm, prefs.MaxDistanceKm)
	assert.Equal(t, matching.DefaultAgeFlexibilityYears, prefs.AgeFlexibilityYears)
	assert.True(t, prefs.IsEnabled)

	view := prefs.DadPreferences()
	assert.True(t, view.Enabled)
	assert.Equal(t, 20.0, view.MaxDistanceKm)
}
