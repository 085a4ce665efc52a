package tagging

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Span is a contiguous run of tokens [Start, End) labeled with a single entity type.
type Span struct {
	Start int
	End   int
	Type  string
}

func (s Span) String() string {
	return fmt.Sprintf("(%d,%d,%s)", s.Start, s.End, s.Type)
}

// SpanSet is a set of spans, compared structurally on (Start, End, Type).
type SpanSet map[Span]struct{}

// Add inserts span into the set. Duplicates collapse.
func (s SpanSet) Add(span Span) { s[span] = struct{}{} }

// Contains reports whether span is in the set.
func (s SpanSet) Contains(span Span) bool {
	_, found := s[span]
	return found
}

// IntersectionSize returns |s ∩ other|.
func (s SpanSet) IntersectionSize(other SpanSet) int {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	n := 0
	for span := range small {
		if large.Contains(span) {
			n++
		}
	}
	return n
}

// Sorted returns the spans ordered by start, end and type, handy for printing and tests.
func (s SpanSet) Sorted() []Span {
	spans := make([]Span, 0, len(s))
	for span := range s {
		spans = append(spans, span)
	}
	sort.Slice(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.Type < b.Type
	})
	return spans
}

type tagRole int

const (
	roleOutside tagRole = iota
	roleBegin
	roleInside
	roleSingle
	roleEnd
)

// parseTag splits a tag string into its segment role and entity type.
// "B" begins a span, "I" continues one, "E" continues and closes one, and
// "S" is a one-token span.
func parseTag(tag string) (tagRole, string, error) {
	if tag == OutsideTag {
		return roleOutside, "", nil
	}
	prefix, entityType, found := strings.Cut(tag, "-")
	if !found || entityType == "" {
		return roleOutside, "", errors.Wrapf(ErrMalformedTag, "%q", tag)
	}
	switch prefix {
	case "B":
		return roleBegin, entityType, nil
	case "I":
		return roleInside, entityType, nil
	case "E":
		return roleEnd, entityType, nil
	case "S":
		return roleSingle, entityType, nil
	}
	return roleOutside, "", errors.Wrapf(ErrMalformedTag, "%q has unknown prefix %q", tag, prefix)
}

// DecodeSpans turns a sequence of tag ids into the set of labeled spans it encodes.
//
// The sequence is scanned left to right keeping at most one open span:
//   - a begin tag closes the open span (if any) and opens a new one;
//   - a continuation tag of the open span's type extends it;
//   - an end tag of the open span's type extends it and then closes it;
//   - a single tag closes the open span and adds a one-token span;
//   - anything else (outside tag, continuation or end without an open span or of another type) closes it.
//
// Any span still open at the end of the sequence is closed there. An empty
// sequence yields an empty set.
func DecodeSpans(tagIDs []int, inv InverseLabelMapping) (SpanSet, error) {
	spans := make(SpanSet)
	open := false
	var start int
	var openType string
	closeAt := func(end int) {
		if open {
			spans.Add(Span{Start: start, End: end, Type: openType})
			open = false
		}
	}

	for i, id := range tagIDs {
		tag, err := inv.Tag(id)
		if err != nil {
			return nil, err
		}
		role, entityType, err := parseTag(tag)
		if err != nil {
			return nil, errors.WithMessagef(err, "position %d", i)
		}
		switch role {
		case roleBegin:
			closeAt(i)
			open, start, openType = true, i, entityType
		case roleInside:
			if open && openType == entityType {
				continue
			}
			closeAt(i)
		case roleEnd:
			if open && openType == entityType {
				closeAt(i + 1)
				continue
			}
			closeAt(i)
		case roleSingle:
			closeAt(i)
			spans.Add(Span{Start: i, End: i + 1, Type: entityType})
		default:
			closeAt(i)
		}
	}
	closeAt(len(tagIDs))
	return spans, nil
}
