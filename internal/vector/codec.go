package vector

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Embedding is a face feature vector. All embeddings compared against each
// other must share one dimensionality.
type Embedding []float64

var ErrMalformedVector = errors.New("malformed face vector")

// MalformedVectorError reports the token that could not be parsed.
type MalformedVectorError struct {
	Token    string
	Position int
}

func (e *MalformedVectorError) Error() string {
	if e.Position < 0 {
		return ErrMalformedVector.Error() + ": empty vector"
	}
	return fmt.Sprintf("%s: token %d %q is not a finite number", ErrMalformedVector, e.Position, e.Token)
}

func (e *MalformedVectorError) Unwrap() error {
	return ErrMalformedVector
}

// Codec converts embeddings to and from their persisted form.
type Codec interface {
	Decode(text string) (Embedding, error)
	Encode(e Embedding) string
}

// TextCodec reads and writes the "[v1,v2,...,vn]" form stored in
// face_identities.face_vector and sent by the cameras.
type TextCodec struct{}

// Decode strips one leading and one trailing character when they are
// brackets and parses the comma separated components.
func (TextCodec) Decode(text string) (Embedding, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if strings.TrimSpace(s) == "" {
		return nil, &MalformedVectorError{Position: -1}
	}

	parts := strings.Split(s, ",")
	out := make(Embedding, len(parts))
	for i, p := range parts {
		tok := strings.TrimSpace(p)
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &MalformedVectorError{Token: tok, Position: i}
		}
		out[i] = v
	}
	return out, nil
}

// Encode uses the shortest representation that parses back to the same float64.
func (TextCodec) Encode(e Embedding) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range e {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// Float32 converts the embedding for pgvector columns.
func (e Embedding) Float32() []float32 {
	out := make([]float32, len(e))
	for i, v := range e {
		out[i] = float32(v)
	}
	return out
}
