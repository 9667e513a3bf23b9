// Package facematch matches detected face descriptors against the reference faces of a roster.
// It is shared between the CLI, the web handlers and the roll-call controller.
package facematch

import (
	"fmt"
	"sort"
	"strings"
)

// Descriptor is a face embedding produced by the face service.
// dlib produces 128 values, InsightFace 512.
type Descriptor []float32

// Metric names the distance function used to compare descriptors.
type Metric string

const (
	MetricEuclidean Metric = "euclidean" // dlib / face_recognition embeddings
	MetricCosine    Metric = "cosine"    // InsightFace embeddings
)

// DefaultTolerance is the maximum distance accepted as the same person.
const DefaultTolerance = 0.5

// ParseMetric converts a config value to a Metric.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case MetricEuclidean, "":
		return MetricEuclidean, nil
	case MetricCosine:
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q (want euclidean or cosine)", s)
	}
}

// Distance returns the distance between a and b under the metric.
func (m Metric) Distance(a, b Descriptor) float64 {
	if m == MetricCosine {
		return CosineDistance(a, b)
	}
	return EuclideanDistance(a, b)
}

// Reference is the descriptor known for one roster identifier.
type Reference struct {
	ID         string     `json:"id"`
	Descriptor Descriptor `json:"-"`
}

// ReferenceSet holds at most one descriptor per identifier in insertion order.
// The order matters: equal distances resolve to the earlier reference.
type ReferenceSet struct {
	refs  []Reference
	index map[string]int
}

// NewReferenceSet creates an empty reference set.
func NewReferenceSet() *ReferenceSet {
	return &ReferenceSet{index: make(map[string]int)}
}

// Add stores the descriptor for id unless id already has one.
// Returns false when the identifier was already present (first one wins).
func (s *ReferenceSet) Add(id string, d Descriptor) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = len(s.refs)
	s.refs = append(s.refs, Reference{ID: id, Descriptor: d})
	return true
}

// Len returns the number of references. A nil set is empty.
func (s *ReferenceSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.refs)
}

// IDs returns the identifiers that have a reference, in insertion order.
func (s *ReferenceSet) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.refs))
	for i, r := range s.refs {
		ids[i] = r.ID
	}
	return ids
}

// PresentSet is the set of identifiers matched by at least one detected face.
type PresentSet map[string]struct{}

// Add marks id as present.
func (p PresentSet) Add(id string) {
	p[id] = struct{}{}
}

// Has reports whether id is present.
func (p PresentSet) Has(id string) bool {
	_, ok := p[id]
	return ok
}

// Sorted returns the identifiers in lexical order, for stable output.
func (p PresentSet) Sorted() []string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
