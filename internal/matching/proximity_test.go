package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }

func enabledPrefs() DadPreferences {
	return DadPreferences{
		MaxDistanceKm:       DefaultMaxDistanceKm,
		AgeFlexibilityYears: DefaultAgeFlexibilityYears,
		Enabled:             true,
	}
}

func TestHaversine_KnownDistance(t *testing.T) {
	// Amsterdam Centraal to Amsterdam Zuid, roughly 5 km
	dist := Haversine(52.3791, 4.9003, 52.3389, 4.8728)
	assert.InDelta(t, 4.9, dist, 0.5)
}

func TestHaversine_ZeroForSamePoint(t *testing.T) {
	assert.InDelta(t, 0, Haversine(52.37, 4.90, 52.37, 4.90), 0.0001)
}

func TestComputeDadScore_NearbyOverlappingChildren(t *testing.T) {
	a := DadProfile{ID: "dad-a", Latitude: floatPtr(52.37), Longitude: floatPtr(4.90), ChildAges: []int{5}}
	b := DadProfile{ID: "dad-b", Latitude: floatPtr(52.38), Longitude: floatPtr(4.91), ChildAges: []int{6}}

	candidate, reason := ComputeDadScore(a, b, enabledPrefs(), enabledPrefs())

	require.Equal(t, ReasonNone, reason)
	require.NotNil(t, candidate)
	assert.InDelta(t, 1.3, candidate.DistanceKm, 0.5)
	assert.Greater(t, candidate.Score, 90)
	require.Len(t, candidate.CommonAgeRanges, 1)
	// [3,7] x [4,8] intersect on [4,7]
	assert.Equal(t, AgeOverlap{MinAge: 4, MaxAge: 7, OverlapYears: 3}, candidate.CommonAgeRanges[0])
}

func TestComputeDadScore_Exclusions(t *testing.T) {
	base := func() (DadProfile, DadProfile, DadPreferences, DadPreferences) {
		a := DadProfile{ID: "dad-a", Latitude: floatPtr(52.37), Longitude: floatPtr(4.90), ChildAges: []int{5}}
		b := DadProfile{ID: "dad-b", Latitude: floatPtr(52.38), Longitude: floatPtr(4.91), ChildAges: []int{6}}
		return a, b, enabledPrefs(), enabledPrefs()
	}

	t.Run("disabled user", func(t *testing.T) {
		a, b, pa, pb := base()
		pb.Enabled = false
		_, reason := ComputeDadScore(a, b, pa, pb)
		assert.Equal(t, ReasonDisabled, reason)
	})

	t.Run("missing location", func(t *testing.T) {
		a, b, pa, pb := base()
		b.Latitude = nil
		_, reason := ComputeDadScore(a, b, pa, pb)
		assert.Equal(t, ReasonNoLocation, reason)
	})

	t.Run("too far", func(t *testing.T) {
		a, b, pa, pb := base()
		b.Latitude = floatPtr(53.2194) // Groningen, ~150 km away
		b.Longitude = floatPtr(6.5665)
		_, reason := ComputeDadScore(a, b, pa, pb)
		assert.Equal(t, ReasonTooFar, reason)
	})

	t.Run("no age overlap", func(t *testing.T) {
		a, b, pa, pb := base()
		a.ChildAges = []int{2}
		b.ChildAges = []int{14}
		_, reason := ComputeDadScore(a, b, pa, pb)
		assert.Equal(t, ReasonNoAgeOverlap, reason)
	})
}

func TestComputeDadScore_StricterDistancePreferenceWins(t *testing.T) {
	a := DadProfile{ID: "dad-a", Latitude: floatPtr(52.37), Longitude: floatPtr(4.90), ChildAges: []int{5}}
	// ~7 km away
	b := DadProfile{ID: "dad-b", Latitude: floatPtr(52.43), Longitude: floatPtr(4.93), ChildAges: []int{5}}

	pa := enabledPrefs()
	pb := enabledPrefs()
	pb.MaxDistanceKm = 5 // b only matches within 5 km

	_, reason := ComputeDadScore(a, b, pa, pb)
	assert.Equal(t, ReasonTooFar, reason)

	pb.MaxDistanceKm = 25
	candidate, reason := ComputeDadScore(a, b, pa, pb)
	assert.Equal(t, ReasonNone, reason)
	assert.NotNil(t, candidate)
}

func TestComputeDadScore_CanonicalOrdering(t *testing.T) {
	a := DadProfile{ID: "dad-z", Latitude: floatPtr(52.37), Longitude: floatPtr(4.90), ChildAges: []int{5}}
	b := DadProfile{ID: "dad-a", Latitude: floatPtr(52.38), Longitude: floatPtr(4.91), ChildAges: []int{6}}

	forward, reason := ComputeDadScore(a, b, enabledPrefs(), enabledPrefs())
	require.Equal(t, ReasonNone, reason)
	backward, reason := ComputeDadScore(b, a, enabledPrefs(), enabledPrefs())
	require.Equal(t, ReasonNone, reason)

	assert.Equal(t, "dad-a", forward.DadID1)
	assert.Equal(t, "dad-z", forward.DadID2)
	assert.Equal(t, forward.DadID1, backward.DadID1)
	assert.Equal(t, forward.DadID2, backward.DadID2)
	assert.Equal(t, forward.Score, backward.Score)
}

func TestComputeDadScore_CloserScoresHigher(t *testing.T) {
	a := DadProfile{ID: "dad-a", Latitude: floatPtr(52.37), Longitude: floatPtr(4.90), ChildAges: []int{5}}
	near := DadProfile{ID: "dad-n", Latitude: floatPtr(52.371), Longitude: floatPtr(4.901), ChildAges: []int{5}}
	far := DadProfile{ID: "dad-f", Latitude: floatPtr(52.43), Longitude: floatPtr(4.93), ChildAges: []int{5}}

	nearMatch, reason := ComputeDadScore(a, near, enabledPrefs(), enabledPrefs())
	require.Equal(t, ReasonNone, reason)
	farMatch, reason := ComputeDadScore(a, far, enabledPrefs(), enabledPrefs())
	require.Equal(t, ReasonNone, reason)

	assert.Greater(t, nearMatch.Score, farMatch.Score)
}

func TestCommonAgeRanges_PerParentFlexibility(t *testing.T) {
	// Parent A has flexibility 0, parent B flexibility 2: a 5yo and a 7yo
	// touch only through B's widened range.
	overlaps := commonAgeRanges([]int{5}, 0, []int{7}, 2)
	require.Len(t, overlaps, 1)
	assert.Equal(t, AgeOverlap{MinAge: 5, MaxAge: 5, OverlapYears: 0}, overlaps[0])

	// With zero flexibility on both sides there is no contact.
	overlaps = commonAgeRanges([]int{5}, 0, []int{7}, 0)
	assert.Empty(t, overlaps)
}

func TestCommonAgeRanges_AllPairsCollected(t *testing.T) {
	overlaps := commonAgeRanges([]int{3, 8}, 2, []int{4, 9}, 2)
	// (3,4), (3,9)? 3:[1,5] x 9:[7,11] -> none; (8,4): [6,10] x [2,6] -> touch; (8,9) overlap
	assert.Len(t, overlaps, 3)
}

func TestCommonAgeRanges_FloorsAtZero(t *testing.T) {
	overlaps := commonAgeRanges([]int{1}, 2, []int{1}, 2)
	require.Len(t, overlaps, 1)
	assert.Equal(t, 0, overlaps[0].MinAge, "flexible range must not dip below age zero")
}
