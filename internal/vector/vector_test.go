package vector

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextCodec_Decode(t *testing.T) {
	var c TextCodec

	got, err := c.Decode("[0.1,0.2,0.3]")
	require.NoError(t, err)
	assert.Equal(t, Embedding{0.1, 0.2, 0.3}, got)

	got, err = c.Decode(" [ -1.5, 2e-3 ,4] ")
	require.NoError(t, err)
	assert.Equal(t, Embedding{-1.5, 0.002, 4}, got)
}

func TestTextCodec_DecodeMalformed(t *testing.T) {
	var c TextCodec

	tests := []struct {
		name  string
		input string
	}{
		{"non numeric token", "[0.1,abc,0.3]"},
		{"empty", "[]"},
		{"blank", "   "},
		{"trailing comma", "[0.1,0.2,]"},
		{"nan", "[NaN,0.2,0.3]"},
		{"infinity", "[0.1,Inf,0.3]"},
		{"negative infinity", "[0.1,0.2,-Inf]"},
		{"overflow", "[1e400,0.2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedVector)

			var mve *MalformedVectorError
			assert.True(t, errors.As(err, &mve))
		})
	}
}

func TestTextCodec_RoundTrip(t *testing.T) {
	var c TextCodec
	inputs := []Embedding{
		{0.1, 0.2, 0.3},
		{1.0 / 3.0, -2.718281828459045, 1e-300, 123456789.125},
		{0},
	}
	for _, v := range inputs {
		got, err := c.Decode(c.Encode(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestTextCodec_EncodeFormat(t *testing.T) {
	assert.Equal(t, "[0.1,0.2,0.3]", TextCodec{}.Encode(Embedding{0.1, 0.2, 0.3}))
}

func TestMatch_SelfDistanceIsZero(t *testing.T) {
	candidates := []Candidate{
		{ID: 1, Embedding: Embedding{0.5, 0.5, 0.5}},
		{ID: 2, Embedding: Embedding{0.1, 0.2, 0.3}},
	}

	for _, c := range candidates {
		res, err := Match(c.Embedding, candidates, 0.75)
		require.NoError(t, err)
		assert.True(t, res.Matched)
		assert.Equal(t, c.ID, res.IdentityID)
		assert.Zero(t, res.Distance)
	}
}

func TestMatch_NearVectorReusesIdentity(t *testing.T) {
	candidates := []Candidate{{ID: 1, Embedding: Embedding{0.1, 0.2, 0.3}}}

	res, err := Match(Embedding{0.1, 0.2, 0.31}, candidates, 1.062)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, int64(1), res.IdentityID)
	assert.InDelta(t, 0.01, res.Distance, 1e-9)
	assert.Len(t, res.Distances, 1)
}

func TestMatch_EmptySnapshot(t *testing.T) {
	res, err := Match(Embedding{0.1, 0.2, 0.3}, nil, 1.062)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, 1.062, res.Distance)
	assert.Empty(t, res.Distances)
}

func TestMatch_NoMatchIsSymmetric(t *testing.T) {
	a := Embedding{0, 0, 0}
	b := Embedding{1, 0, 0}
	threshold := 1.0 // distance is exactly 1: a tie with the threshold is no match

	ab, err := Match(a, []Candidate{{ID: 7, Embedding: b}}, threshold)
	require.NoError(t, err)
	ba, err := Match(b, []Candidate{{ID: 8, Embedding: a}}, threshold)
	require.NoError(t, err)

	assert.False(t, ab.Matched)
	assert.False(t, ba.Matched)
	assert.Equal(t, ab.Distances, ba.Distances)
}

func TestMatch_TieGoesToFirstCandidate(t *testing.T) {
	candidates := []Candidate{
		{ID: 3, Embedding: Embedding{1, 0}},
		{ID: 4, Embedding: Embedding{-1, 0}},
	}

	res, err := Match(Embedding{0, 0}, candidates, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.IdentityID)
	assert.Equal(t, []float64{1, 1}, res.Distances)
}

func TestMatch_PicksMinimum(t *testing.T) {
	candidates := []Candidate{
		{ID: 1, Embedding: Embedding{0.9, 0.9}},
		{ID: 2, Embedding: Embedding{0.2, 0.2}},
		{ID: 3, Embedding: Embedding{0.5, 0.5}},
	}

	res, err := Match(Embedding{0.25, 0.25}, candidates, 0.75)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.IdentityID)
	assert.InDelta(t, math.Sqrt(2*0.05*0.05), res.Distance, 1e-12)
	assert.Len(t, res.Distances, 3)
}

func TestMatch_DimensionMismatch(t *testing.T) {
	candidates := []Candidate{
		{ID: 1, Embedding: Embedding{0.1, 0.2, 0.3}},
		{ID: 2, Embedding: Embedding{0.1, 0.2}},
	}

	_, err := Match(Embedding{0.1, 0.2, 0.3}, candidates, 0.75)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	var dme *DimensionMismatchError
	require.True(t, errors.As(err, &dme))
	assert.Equal(t, int64(2), dme.IdentityID)
	assert.Contains(t, err.Error(), "FaceID : 2")
}

func TestCheckDimensions(t *testing.T) {
	cands := []Candidate{
		{ID: 1, Embedding: Embedding{1, 2}},
		{ID: 2, Embedding: Embedding{1, 2, 3}},
	}
	assert.NoError(t, CheckDimensions(Embedding{0, 0}, cands[:1]))
	assert.NoError(t, CheckDimensions(Embedding{0, 0}, nil))

	var dme *DimensionMismatchError
	require.ErrorAs(t, CheckDimensions(Embedding{0, 0}, cands), &dme)
	assert.Equal(t, int64(2), dme.IdentityID)
}
