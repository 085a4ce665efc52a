package tagging

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Scorer accumulates evaluation batches and computes the final metrics of a run.
//
// A Scorer is created once per evaluation run, fed with Update, and queried with
// Results. Results can be called more than once: without further updates it
// returns identical reports. Scorers are not safe for concurrent use.
type Scorer interface {
	// Name identifies the scorer variant.
	Name() string

	// Update stores one batch. Invalid batches are rejected as a whole.
	Update(batch Batch) error

	// Loss returns the accumulated loss per word.
	Loss() float64

	// Results computes the metrics over everything accumulated so far.
	Results() (Report, error)
}

// Scorer names, as returned by Scorer.Name.
const (
	AccuracyScorerName         = "accuracy"
	EntityF1ScorerName         = "entity-f1"
	EntityF1AccuracyScorerName = "entity-f1-accuracy"
	CoNLLScorerName            = "conll"
)

// AccuracyScorer reports token accuracy and loss.
type AccuracyScorer struct {
	*Accumulator
	autoFailLabel *int
}

var _ Scorer = (*AccuracyScorer)(nil)

// NewAccuracyScorer creates a token accuracy scorer. See WithAutoFailLabel.
func NewAccuracyScorer(opts ...Option) *AccuracyScorer {
	o := newOptions(opts)
	return &AccuracyScorer{
		Accumulator:   NewAccumulator(opts...),
		autoFailLabel: o.autoFailLabel,
	}
}

// Name implements Scorer.
func (s *AccuracyScorer) Name() string { return AccuracyScorerName }

// Results returns [accuracy, loss]. It fails with ErrNoTokens if no token was accumulated.
func (s *AccuracyScorer) Results() (Report, error) {
	acc, err := tokenAccuracy(s.Accumulator, s.autoFailLabel).accuracy()
	if err != nil {
		return nil, err
	}
	return Report{
		{MetricAccuracy, acc},
		{MetricLoss, s.Loss()},
	}, nil
}

// entityScorer holds what all entity-aware scorers share: the accumulated
// examples and the inverse label mapping, built once at construction.
type entityScorer struct {
	*Accumulator
	inv InverseLabelMapping
}

func newEntityScorer(mapping LabelMapping, opts []Option) (entityScorer, error) {
	inv, err := mapping.Inverse()
	if err != nil {
		return entityScorer{}, errors.WithMessage(err, "invalid label mapping")
	}
	return entityScorer{Accumulator: NewAccumulator(opts...), inv: inv}, nil
}

// EntityF1Scorer reports entity-level precision, recall and F1 over decoded spans.
type EntityF1Scorer struct {
	entityScorer
}

var _ Scorer = (*EntityF1Scorer)(nil)

// NewEntityF1Scorer creates an entity-level F1 scorer for the given label mapping.
func NewEntityF1Scorer(mapping LabelMapping, opts ...Option) (*EntityF1Scorer, error) {
	base, err := newEntityScorer(mapping, opts)
	if err != nil {
		return nil, err
	}
	return &EntityF1Scorer{entityScorer: base}, nil
}

// Name implements Scorer.
func (s *EntityF1Scorer) Name() string { return EntityF1ScorerName }

// Results returns [precision, recall, f1, loss].
func (s *EntityF1Scorer) Results() (Report, error) {
	counts, err := entitySpanCounts(s.Accumulator, s.inv)
	if err != nil {
		return nil, err
	}
	return f1Report(counts, s.Loss()), nil
}

// EntityF1AccuracyScorer reports token accuracy followed by entity-level
// precision, recall and F1. Examples whose gold or predicted sequence is
// empty are left out of both.
type EntityF1AccuracyScorer struct {
	entityScorer
}

var _ Scorer = (*EntityF1AccuracyScorer)(nil)

// NewEntityF1AccuracyScorer creates an entity-level F1 plus token accuracy scorer.
func NewEntityF1AccuracyScorer(mapping LabelMapping, opts ...Option) (*EntityF1AccuracyScorer, error) {
	base, err := newEntityScorer(mapping, opts)
	if err != nil {
		return nil, err
	}
	return &EntityF1AccuracyScorer{entityScorer: base}, nil
}

// Name implements Scorer.
func (s *EntityF1AccuracyScorer) Name() string { return EntityF1AccuracyScorerName }

// Results returns [accuracy, precision, recall, f1, loss].
func (s *EntityF1AccuracyScorer) Results() (Report, error) {
	var tokens tokenCounts
	var spans spanCounts
	skipped := 0
	for i := range s.NumExamples() {
		labels, predictions := s.Example(i)
		if len(labels) == 0 || len(predictions) == 0 {
			skipped++
			continue
		}
		tokens.add(labels, predictions, nil)
		if err := spans.add(labels, predictions, s.inv); err != nil {
			return nil, errors.WithMessagef(err, "example %d", i)
		}
	}
	if skipped > 0 {
		klog.V(1).Infof("%s: skipped %d empty examples out of %d", s.Name(), skipped, s.NumExamples())
	}
	acc, err := tokens.accuracy()
	if err != nil {
		return nil, err
	}
	return append(Report{{MetricAccuracy, acc}}, f1Report(spans, s.Loss())...), nil
}

// CoNLLScorer extends EntityF1AccuracyScorer with the metrics of a reference
// CoNLL-style scorer, reported first as conll_acc, conll_f1, conll_p and conll_r.
type CoNLLScorer struct {
	EntityF1AccuracyScorer
	reference ReferenceScorer
}

var _ Scorer = (*CoNLLScorer)(nil)

// NewCoNLLScorer creates a scorer that cross-checks entity-level metrics with reference.
func NewCoNLLScorer(mapping LabelMapping, reference ReferenceScorer, opts ...Option) (*CoNLLScorer, error) {
	if reference == nil {
		return nil, errors.New("reference scorer is nil")
	}
	base, err := NewEntityF1AccuracyScorer(mapping, opts...)
	if err != nil {
		return nil, err
	}
	return &CoNLLScorer{EntityF1AccuracyScorer: *base, reference: reference}, nil
}

// Name implements Scorer.
func (s *CoNLLScorer) Name() string { return CoNLLScorerName }

// Results returns [conll_acc, conll_f1, conll_p, conll_r, accuracy, precision, recall, f1, loss].
// If the reference scorer fails, the error is a *ReferenceScorerError and no metric is reported.
func (s *CoNLLScorer) Results() (Report, error) {
	entityLevel, err := s.EntityF1AccuracyScorer.Results()
	if err != nil {
		return nil, err
	}
	conll, err := conllReference(s.Accumulator, s.inv, s.reference)
	if err != nil {
		return nil, err
	}
	return append(conll, entityLevel...), nil
}

// NewScorer creates the scorer variant with the given name.
// The label mapping is ignored by the accuracy scorer, and reference is only used by the CoNLL scorer.
func NewScorer(name string, mapping LabelMapping, reference ReferenceScorer, opts ...Option) (Scorer, error) {
	switch name {
	case AccuracyScorerName:
		return NewAccuracyScorer(opts...), nil
	case EntityF1ScorerName:
		return NewEntityF1Scorer(mapping, opts...)
	case EntityF1AccuracyScorerName:
		return NewEntityF1AccuracyScorer(mapping, opts...)
	case CoNLLScorerName:
		return NewCoNLLScorer(mapping, reference, opts...)
	}
	return nil, errors.Errorf("unknown scorer %q, valid values are %q, %q, %q and %q", name,
		AccuracyScorerName, EntityF1ScorerName, EntityF1AccuracyScorerName, CoNLLScorerName)
}
