package facematch

import "math"

// FaceMatch is the outcome of comparing one detected face with the reference set.
type FaceMatch struct {
	FaceIndex int     `json:"face_index"`
	ID        string  `json:"id,omitempty"`       // closest reference, empty when the set is empty
	Distance  float64 `json:"distance,omitempty"` // distance to the closest reference
	Matched   bool    `json:"matched"`            // Distance < tolerance
}

// Matcher compares detected faces with references using a fixed tolerance.
type Matcher struct {
	Tolerance float64
	Metric    Metric
}

// NewMatcher returns a matcher, falling back to DefaultTolerance for non-positive values.
func NewMatcher(tolerance float64, metric Metric) Matcher {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if metric == "" {
		metric = MetricEuclidean
	}
	return Matcher{Tolerance: tolerance, Metric: metric}
}

// Best finds the reference closest to face.
// Ties keep the earlier reference. ok is false for an empty set.
func (m Matcher) Best(refs *ReferenceSet, face Descriptor) (ref Reference, distance float64, ok bool) {
	distance = math.Inf(1)
	for _, r := range refsOf(refs) {
		d := m.Metric.Distance(r.Descriptor, face)
		if !ok || d < distance {
			ref, distance, ok = r, d, true
		}
	}
	return ref, distance, ok
}

// Match compares every detected face with the reference set.
// The result has one entry per face in input order.
func (m Matcher) Match(refs *ReferenceSet, faces []Descriptor) []FaceMatch {
	results := make([]FaceMatch, len(faces))
	for i, face := range faces {
		results[i] = FaceMatch{FaceIndex: i}
		ref, d, ok := m.Best(refs, face)
		if !ok || math.IsInf(d, 1) {
			// No reference is comparable with this face.
			continue
		}
		results[i].ID = ref.ID
		results[i].Distance = d
		results[i].Matched = d < m.Tolerance
	}
	return results
}

// PresentSet returns the identifiers matched by at least one face.
func (m Matcher) PresentSet(refs *ReferenceSet, faces []Descriptor) PresentSet {
	return PresentFromMatches(m.Match(refs, faces))
}

// PresentFromMatches collects the identifiers of accepted matches.
func PresentFromMatches(matches []FaceMatch) PresentSet {
	present := make(PresentSet)
	for _, fm := range matches {
		if fm.Matched {
			present.Add(fm.ID)
		}
	}
	return present
}

// ComputePresentSet is a convenience wrapper around Matcher.PresentSet.
func ComputePresentSet(refs *ReferenceSet, faces []Descriptor, tolerance float64, metric Metric) PresentSet {
	return NewMatcher(tolerance, metric).PresentSet(refs, faces)
}

func refsOf(s *ReferenceSet) []Reference {
	if s == nil {
		return nil
	}
	return s.refs
}
