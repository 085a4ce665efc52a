// Package conlleval scores tag-string sequences the way the CoNLL shared-task
// evaluation script does (the default mode of Python's seqeval), and serves as
// the reference scorer of tagging.CoNLLScorer.
//
// Sentences are concatenated with an "O" separator and chunks are detected
// with the conlleval start/end rules over the B, I, E, S and O prefixes: a
// chunk also ends (and a new one starts) whenever the entity type changes. This
// makes it more lenient than tagging.DecodeSpans for ill-formed sequences, e.g.
// a leading I- tag starts a chunk.
//
// Example:
//
//	result, err := conlleval.Evaluate(predictions, references)
//	if err != nil {
//		panic(err)
//	}
//	fmt.Printf("f1=%.2f\n", 100*result.Overall.F1)
//	for typ, scores := range result.PerType {
//		fmt.Printf("%s: f1=%.2f (%d)\n", typ, 100*scores.F1, scores.Support)
//	}
package conlleval

import (
	"sort"
	"strings"

	"github.com/gomlx/go-tagging-eval/tagging"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// ErrEmptyInput is returned when there are no tokens to score.
	ErrEmptyInput = errors.New("no tokens to score")

	// ErrLengthMismatch is returned when predictions and references are not aligned.
	ErrLengthMismatch = errors.New("predictions and references have different lengths")
)

// Chunk is an entity found in the concatenated sequence, covering tokens [Start, End).
type Chunk struct {
	Type       string
	Start, End int
}

// Scores for one entity type, or overall (micro-averaged), as fractions in [0, 1].
type Scores struct {
	Precision float64
	Recall    float64
	F1        float64

	// Support is the number of gold chunks.
	Support int
}

// Result of Evaluate.
type Result struct {
	// Accuracy is the fraction of tokens whose predicted tag equals the gold tag.
	Accuracy float64

	Overall Scores
	PerType map[string]Scores
}

// Types returns the entity types of PerType, sorted.
func (r *Result) Types() []string {
	types := make([]string, 0, len(r.PerType))
	for typ := range r.PerType {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// splitTag returns the one-letter prefix and the entity type of a tag.
// The type is "_" for tags without one (e.g. "O").
func splitTag(tag string) (prefix, entityType string) {
	if tag == "" {
		return "O", "_"
	}
	prefix, rest := tag[:1], tag[1:]
	if _, after, found := strings.Cut(rest, "-"); found {
		rest = after
	}
	if rest == "" {
		rest = "_"
	}
	return prefix, rest
}

func endOfChunk(prevTag, tag, prevType, entityType string) bool {
	switch {
	case prevTag == "E", prevTag == "S":
		return true
	case prevTag == "B" && (tag == "B" || tag == "S" || tag == "O"):
		return true
	case prevTag == "I" && (tag == "B" || tag == "S" || tag == "O"):
		return true
	case prevTag != "O" && prevTag != "." && prevType != entityType:
		return true
	}
	return false
}

func startOfChunk(prevTag, tag, prevType, entityType string) bool {
	switch {
	case tag == "B", tag == "S":
		return true
	case (prevTag == "E" || prevTag == "S" || prevTag == "O") && (tag == "E" || tag == "I"):
		return true
	case tag != "O" && tag != "." && prevType != entityType:
		return true
	}
	return false
}

// Chunks extracts the chunks of the sentences, concatenated with an "O"
// separator after each sentence. Offsets refer to the concatenated sequence.
func Chunks(sentences [][]string) []Chunk {
	var chunks []Chunk
	prevTag, prevType := "O", ""
	begin, pos := 0, 0
	step := func(tag string) {
		prefix, entityType := splitTag(tag)
		if endOfChunk(prevTag, prefix, prevType, entityType) {
			chunks = append(chunks, Chunk{Type: prevType, Start: begin, End: pos})
		}
		if startOfChunk(prevTag, prefix, prevType, entityType) {
			begin = pos
		}
		prevTag, prevType = prefix, entityType
		pos++
	}
	for _, sentence := range sentences {
		for _, tag := range sentence {
			step(tag)
		}
		step(tagging.OutsideTag)
	}
	step(tagging.OutsideTag)
	return chunks
}

func safeDiv(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func newScores(correct, predicted, gold int) Scores {
	s := Scores{
		Precision: safeDiv(correct, predicted),
		Recall:    safeDiv(correct, gold),
		Support:   gold,
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}

// Evaluate scores predictions against references, sentence by sentence.
func Evaluate(predictions, references [][]string) (*Result, error) {
	if len(predictions) != len(references) {
		return nil, errors.Wrapf(ErrLengthMismatch, "%d predicted sentences, %d reference sentences",
			len(predictions), len(references))
	}
	correctTokens, totalTokens := 0, 0
	for i := range references {
		if len(predictions[i]) != len(references[i]) {
			return nil, errors.Wrapf(ErrLengthMismatch, "sentence %d: %d predicted tags, %d reference tags",
				i, len(predictions[i]), len(references[i]))
		}
		for j, tag := range references[i] {
			totalTokens++
			if predictions[i][j] == tag {
				correctTokens++
			}
		}
	}
	if totalTokens == 0 {
		return nil, ErrEmptyInput
	}

	type tally struct{ correct, predicted, gold int }
	tallies := make(map[string]*tally)
	get := func(typ string) *tally {
		t, found := tallies[typ]
		if !found {
			t = &tally{}
			tallies[typ] = t
		}
		return t
	}
	gold := make(map[Chunk]struct{})
	for _, c := range Chunks(references) {
		gold[c] = struct{}{}
		get(c.Type).gold++
	}
	for _, c := range Chunks(predictions) {
		t := get(c.Type)
		t.predicted++
		if _, found := gold[c]; found {
			t.correct++
		}
	}

	result := &Result{
		Accuracy: float64(correctTokens) / float64(totalTokens),
		PerType:  make(map[string]Scores, len(tallies)),
	}
	var total tally
	for typ, t := range tallies {
		result.PerType[typ] = newScores(t.correct, t.predicted, t.gold)
		total.correct += t.correct
		total.predicted += t.predicted
		total.gold += t.gold
	}
	result.Overall = newScores(total.correct, total.predicted, total.gold)
	klog.V(1).Infof("conlleval: %d tokens, %d gold chunks, %d predicted chunks, %d correct",
		totalTokens, total.gold, total.predicted, total.correct)
	return result, nil
}

// Scorer adapts Evaluate to the tagging.ReferenceScorer interface.
type Scorer struct{}

var _ tagging.ReferenceScorer = Scorer{}

// New returns a reference scorer for tagging.NewCoNLLScorer.
func New() Scorer { return Scorer{} }

// Score implements tagging.ReferenceScorer.
func (Scorer) Score(predictions, references [][]string) (tagging.ReferenceMetrics, error) {
	result, err := Evaluate(predictions, references)
	if err != nil {
		return tagging.ReferenceMetrics{}, err
	}
	return tagging.ReferenceMetrics{
		Accuracy:  result.Accuracy,
		Precision: result.Overall.Precision,
		Recall:    result.Overall.Recall,
		F1:        result.Overall.F1,
	}, nil
}
