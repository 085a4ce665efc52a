package tagging

import (
	"github.com/pkg/errors"
)

// tokenCounts holds the per-position tally behind token accuracy.
type tokenCounts struct {
	Correct, Count int
}

func (c *tokenCounts) add(labels, predictions []int, autoFailLabel *int) {
	for i := range min(len(labels), len(predictions)) {
		c.Count++
		if predictions[i] == labels[i] && (autoFailLabel == nil || labels[i] != *autoFailLabel) {
			c.Correct++
		}
	}
}

// accuracy returns 100*Correct/Count, or ErrNoTokens if nothing was counted.
func (c tokenCounts) accuracy() (float64, error) {
	if c.Count == 0 {
		return 0, errors.Wrap(ErrNoTokens, "cannot compute token accuracy")
	}
	return 100.0 * float64(c.Correct) / float64(c.Count), nil
}

// tokenAccuracy tallies every stored position of acc. Positions whose gold
// label equals autoFailLabel (if set) are always counted as misses.
func tokenAccuracy(acc *Accumulator, autoFailLabel *int) tokenCounts {
	var c tokenCounts
	for i := range acc.NumExamples() {
		labels, predictions := acc.Example(i)
		c.add(labels, predictions, autoFailLabel)
	}
	return c
}

// spanCounts holds the running totals of entity-level scoring.
type spanCounts struct {
	Correct, Predicted, Gold int
}

func (c *spanCounts) add(labels, predictions []int, inv InverseLabelMapping) error {
	gold, err := DecodeSpans(labels, inv)
	if err != nil {
		return errors.WithMessage(err, "decoding gold spans")
	}
	predicted, err := DecodeSpans(predictions, inv)
	if err != nil {
		return errors.WithMessage(err, "decoding predicted spans")
	}
	c.Correct += gold.IntersectionSize(predicted)
	c.Gold += len(gold)
	c.Predicted += len(predicted)
	return nil
}

// entitySpanCounts decodes gold and predicted spans of every stored example and tallies them.
func entitySpanCounts(acc *Accumulator, inv InverseLabelMapping) (spanCounts, error) {
	var c spanCounts
	for i := range acc.NumExamples() {
		labels, predictions := acc.Example(i)
		if err := c.add(labels, predictions, inv); err != nil {
			return spanCounts{}, errors.WithMessagef(err, "example %d", i)
		}
	}
	return c, nil
}

// f1Report derives precision, recall and F1 (as percentages) from the span
// counts. With no correct span all three are 0.
func f1Report(c spanCounts, loss float64) Report {
	var p, r, f1 float64
	if c.Correct != 0 {
		p = 100.0 * float64(c.Correct) / float64(c.Predicted)
		r = 100.0 * float64(c.Correct) / float64(c.Gold)
		f1 = 2 * p * r / (p + r)
	}
	return Report{
		{MetricPrecision, p},
		{MetricRecall, r},
		{MetricF1, f1},
		{MetricLoss, loss},
	}
}

// ReferenceMetrics is the overall result of a ReferenceScorer, as fractions in [0, 1].
type ReferenceMetrics struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
}

// ReferenceScorer is an independent, standard implementation of entity-level
// scoring over tag strings (e.g. CoNLL's conlleval), used as a cross-check.
type ReferenceScorer interface {
	Score(predictions, references [][]string) (ReferenceMetrics, error)
}

// conllReference maps every stored example back to tag strings and delegates
// to ref. The returned metrics are scaled to percentages.
func conllReference(acc *Accumulator, inv InverseLabelMapping, ref ReferenceScorer) (Report, error) {
	references := make([][]string, acc.NumExamples())
	predictions := make([][]string, acc.NumExamples())
	for i := range acc.NumExamples() {
		labels, preds := acc.Example(i)
		var err error
		if references[i], err = inv.Tags(labels); err != nil {
			return nil, errors.WithMessagef(err, "example %d gold tags", i)
		}
		if predictions[i], err = inv.Tags(preds); err != nil {
			return nil, errors.WithMessagef(err, "example %d predicted tags", i)
		}
	}
	metrics, err := ref.Score(predictions, references)
	if err != nil {
		return nil, &ReferenceScorerError{Err: err}
	}
	return Report{
		{MetricConllAccuracy, 100 * metrics.Accuracy},
		{MetricConllF1, 100 * metrics.F1},
		{MetricConllPrecision, 100 * metrics.Precision},
		{MetricConllRecall, 100 * metrics.Recall},
	}, nil
}
