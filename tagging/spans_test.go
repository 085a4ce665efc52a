package tagging

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMapping: O=0, B-PER=1, I-PER=2, B-LOC=3, I-LOC=4.
var testMapping = MustNewLabelMapping("O", "B-PER", "I-PER", "B-LOC", "I-LOC")

func mustInverse(t *testing.T, m LabelMapping) InverseLabelMapping {
	inv, err := m.Inverse()
	require.NoError(t, err)
	return inv
}

func TestDecodeSpans(t *testing.T) {
	inv := mustInverse(t, testMapping)
	tests := []struct {
		name string
		ids  []int
		want []Span
	}{
		{"empty", nil, []Span{}},
		{"all outside", []int{0, 0, 0}, []Span{}},
		{"single entity", []int{1, 2}, []Span{{0, 2, "PER"}}},
		{"two entities", []int{1, 2, 0, 3}, []Span{{0, 2, "PER"}, {3, 4, "LOC"}}},
		{"entity at the end", []int{0, 0, 3, 4, 4}, []Span{{2, 5, "LOC"}}},
		{"adjacent begin tags of the same type", []int{1, 1}, []Span{{0, 1, "PER"}, {1, 2, "PER"}}},
		{"continuation without open span", []int{2, 2, 0}, []Span{}},
		{"continuation of another type", []int{1, 4, 4}, []Span{{0, 1, "PER"}}},
		{"begin right after continuation", []int{3, 4, 1, 2}, []Span{{0, 2, "LOC"}, {2, 4, "PER"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans, err := DecodeSpans(tt.ids, inv)
			require.NoError(t, err)
			assert.Equal(t, tt.want, spans.Sorted())
		})
	}
}

func TestDecodeSpansBIOES(t *testing.T) {
	mapping := MustNewLabelMapping("O", "S-PER", "B-LOC", "I-LOC", "E-LOC", "B-MISC-X", "E-MISC-X")
	inv := mustInverse(t, mapping)
	spans, err := DecodeSpans([]int{1, 2, 3, 4, 0, 5, 6}, inv)
	require.NoError(t, err)
	assert.Equal(t, []Span{{0, 1, "PER"}, {1, 4, "LOC"}, {5, 7, "MISC-X"}}, spans.Sorted())

	// Single and end tags close their span: whatever follows does not extend it.
	mapping = MustNewLabelMapping("O", "S-PER", "I-PER", "B-LOC", "E-LOC", "I-LOC")
	inv = mustInverse(t, mapping)
	for _, tt := range []struct {
		name string
		ids  []int
		want []Span
	}{
		{"single then inside", []int{1, 2}, []Span{{0, 1, "PER"}}},
		{"repeated end", []int{3, 4, 4}, []Span{{0, 2, "LOC"}}},
		{"inside after end", []int{3, 4, 5, 0}, []Span{{0, 2, "LOC"}}},
		{"single twice", []int{1, 1}, []Span{{0, 1, "PER"}, {1, 2, "PER"}}},
		{"single inside open span", []int{3, 1, 5}, []Span{{0, 1, "LOC"}, {1, 2, "PER"}}},
		{"end without begin", []int{0, 4}, []Span{}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			spans, err := DecodeSpans(tt.ids, inv)
			require.NoError(t, err)
			assert.Equal(t, tt.want, spans.Sorted())
		})
	}
}

func TestDecodeSpansErrors(t *testing.T) {
	inv := mustInverse(t, testMapping)

	_, err := DecodeSpans([]int{0, 1, 42}, inv)
	var mappingErr *LabelMappingError
	require.True(t, errors.As(err, &mappingErr), "got %v", err)
	assert.Equal(t, 42, mappingErr.ID)

	for _, tag := range []string{"PER", "X-PER", "B-"} {
		inv := mustInverse(t, MustNewLabelMapping("O", tag))
		_, err := DecodeSpans([]int{0, 1}, inv)
		assert.True(t, errors.Is(err, ErrMalformedTag), "tag %q: got %v", tag, err)
	}
}

func TestDecodeSpansDisjoint(t *testing.T) {
	inv := mustInverse(t, testMapping)
	rng := rand.New(rand.NewSource(7))
	for range 500 {
		ids := make([]int, rng.Intn(20))
		for i := range ids {
			ids[i] = rng.Intn(len(testMapping))
		}
		spans, err := DecodeSpans(ids, inv)
		require.NoError(t, err)
		covered := make([]bool, len(ids))
		for span := range spans {
			require.Less(t, span.Start, span.End, "empty span %s in %v", span, ids)
			for i := span.Start; i < span.End; i++ {
				require.False(t, covered[i], "position %d covered twice in %v", i, ids)
				covered[i] = true
			}
		}
	}
}

func TestSpanSetIntersection(t *testing.T) {
	a, b := make(SpanSet), make(SpanSet)
	a.Add(Span{0, 2, "PER"})
	a.Add(Span{0, 2, "PER"})
	a.Add(Span{3, 4, "LOC"})
	b.Add(Span{0, 2, "PER"})
	b.Add(Span{3, 4, "PER"})
	assert.Len(t, a, 2)
	assert.Equal(t, 1, a.IntersectionSize(b))
	assert.Equal(t, 1, b.IntersectionSize(a))
	assert.Equal(t, 0, a.IntersectionSize(SpanSet{}))
}
