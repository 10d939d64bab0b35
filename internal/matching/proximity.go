package matching

import "math"

// ExclusionReason explains why a pair produced no dad match. Exclusions are
// expected filtering outcomes, not errors.
type ExclusionReason string

const (
	ReasonNone          ExclusionReason = ""
	ReasonDisabled      ExclusionReason = "disabled"
	ReasonNoLocation    ExclusionReason = "no-location"
	ReasonTooFar        ExclusionReason = "too-far"
	ReasonNoAgeOverlap  ExclusionReason = "no-age-overlap"
	ReasonNoSharedSlots ExclusionReason = "no-shared-slots"
)

// DadProfile is the scoring view of a user: coordinates plus children's ages.
type DadProfile struct {
	ID        string
	Latitude  *float64
	Longitude *float64
	ChildAges []int
}

// DadPreferences are the per-user knobs consumed read-only by the scorer.
type DadPreferences struct {
	MaxDistanceKm       float64
	AgeFlexibilityYears int
	Enabled             bool
}

// Defaults for users without a stored preference row.
const (
	DefaultMaxDistanceKm       = 20.0
	DefaultAgeFlexibilityYears = 2
)

// AgeOverlap is the intersection of two children's flexible age ranges.
type AgeOverlap struct {
	MinAge       int `json:"min_age"`
	MaxAge       int `json:"max_age"`
	OverlapYears int `json:"overlap_years"`
}

// DadMatchCandidate is a scored pair ready for the match cache. DadID1 and
// DadID2 are always in canonical order (DadID1 < DadID2).
type DadMatchCandidate struct {
	DadID1          string
	DadID2          string
	Score           int
	DistanceKm      float64
	CommonAgeRanges []AgeOverlap
}

// Score weights. Closer pairs and larger age overlaps score higher.
const (
	distancePenaltyPerKm  = 2.0
	ageOverlapBasePenalty = 15
	ageOverlapBonusPerYr  = 5
)

// Haversine returns the great-circle distance in kilometers between two
// coordinates.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// ComputeDadScore scores a pair of profiles on proximity and children's age
// compatibility. A non-empty ExclusionReason means the pair produced no
// candidate. The effective distance limit is the stricter of the two users'
// preferences; each child's range is widened by its own parent's flexibility.
func ComputeDadScore(a, b DadProfile, prefsA, prefsB DadPreferences) (*DadMatchCandidate, ExclusionReason) {
	if !prefsA.Enabled || !prefsB.Enabled {
		return nil, ReasonDisabled
	}

	if a.Latitude == nil || a.Longitude == nil || b.Latitude == nil || b.Longitude == nil {
		return nil, ReasonNoLocation
	}

	distance := Haversine(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)

	maxDistance := prefsA.MaxDistanceKm
	if prefsB.MaxDistanceKm < maxDistance {
		maxDistance = prefsB.MaxDistanceKm
	}
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistanceKm
	}
	if distance > maxDistance {
		return nil, ReasonTooFar
	}

	overlaps := commonAgeRanges(a.ChildAges, prefsA.AgeFlexibilityYears, b.ChildAges, prefsB.AgeFlexibilityYears)
	if len(overlaps) == 0 {
		return nil, ReasonNoAgeOverlap
	}

	score := scorePair(distance, overlaps)

	candidate := &DadMatchCandidate{
		DadID1:          a.ID,
		DadID2:          b.ID,
		Score:           score,
		DistanceKm:      distance,
		CommonAgeRanges: overlaps,
	}
	candidate.canonicalize()
	return candidate, ReasonNone
}

// commonAgeRanges intersects every child pair's flexible age range. A child
// of age N with flexibility F covers [N-F, N+F]; two children overlap when
// their intervals intersect, and the overlap width is recorded in years.
func commonAgeRanges(agesA []int, flexA int, agesB []int, flexB int) []AgeOverlap {
	if flexA < 0 {
		flexA = 0
	}
	if flexB < 0 {
		flexB = 0
	}

	var overlaps []AgeOverlap
	for _, ageA := range agesA {
		loA, hiA := ageA-flexA, ageA+flexA
		for _, ageB := range agesB {
			loB, hiB := ageB-flexB, ageB+flexB

			lo := loA
			if loB > lo {
				lo = loB
			}
			hi := hiA
			if hiB < hi {
				hi = hiB
			}
			if lo > hi {
				continue
			}
			if lo < 0 {
				lo = 0
			}
			overlaps = append(overlaps, AgeOverlap{
				MinAge:       lo,
				MaxAge:       hi,
				OverlapYears: hi - lo,
			})
		}
	}
	return overlaps
}

// scorePair starts from 100 and subtracts a distance penalty plus a penalty
// that shrinks as the best age overlap widens, clamped to [0, 100].
func scorePair(distanceKm float64, overlaps []AgeOverlap) int {
	best := 0
	for _, o := range overlaps {
		if o.OverlapYears > best {
			best = o.OverlapYears
		}
	}

	agePenalty := ageOverlapBasePenalty - ageOverlapBonusPerYr*best
	if agePenalty < 0 {
		agePenalty = 0
	}

	score := 100.0 - distanceKm*distancePenaltyPerKm - float64(agePenalty)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(math.Round(score))
}

func (c *DadMatchCandidate) canonicalize() {
	if c.DadID1 > c.DadID2 {
		c.DadID1, c.DadID2 = c.DadID2, c.DadID1
	}
}
