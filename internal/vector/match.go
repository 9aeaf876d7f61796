package vector

import (
	"errors"
	"fmt"
	"math"
)

var ErrDimensionMismatch = errors.New("face vector dimension mismatch")

// DimensionMismatchError names the stored identity whose embedding length
// differs from the query.
type DimensionMismatchError struct {
	IdentityID int64
	Want       int
	Got        int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("length of face vector not match at FaceID : %d (stored %d, got %d)",
		e.IdentityID, e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error {
	return ErrDimensionMismatch
}

// Candidate is one stored identity taking part in a scan.
type Candidate struct {
	ID        int64
	Embedding Embedding
}

// MatchResult is the outcome of one linear scan. IdentityID is only meaningful
// when Matched is true. Distances is aligned with the candidate order.
type MatchResult struct {
	IdentityID int64
	Matched    bool
	Distance   float64
	Distances  []float64
}

// Euclidean returns the L2 distance between a and b. Callers must check lengths.
func Euclidean(a, b Embedding) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CheckDimensions reports the first candidate whose length differs from query.
func CheckDimensions(query Embedding, candidates []Candidate) error {
	for _, c := range candidates {
		if len(c.Embedding) != len(query) {
			return &DimensionMismatchError{IdentityID: c.ID, Want: len(c.Embedding), Got: len(query)}
		}
	}
	return nil
}

// Match scans every candidate in order. The running minimum starts at the
// threshold and only a strictly smaller distance replaces it, so ties go to
// the earliest candidate and a distance equal to the threshold never matches.
func Match(query Embedding, candidates []Candidate, threshold float64) (MatchResult, error) {
	res := MatchResult{
		Distance:  threshold,
		Distances: make([]float64, 0, len(candidates)),
	}

	for _, c := range candidates {
		if len(c.Embedding) != len(query) {
			return MatchResult{}, &DimensionMismatchError{
				IdentityID: c.ID,
				Want:       len(c.Embedding),
				Got:        len(query),
			}
		}
		d := Euclidean(c.Embedding, query)
		res.Distances = append(res.Distances, d)
		if d < res.Distance {
			res.Distance = d
			res.IdentityID = c.ID
			res.Matched = true
		}
	}

	return res, nil
}
