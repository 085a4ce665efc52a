package tagging

import (
	"math"
	"slices"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Batch is one evaluation step's output: per-example loss, gold tag ids,
// predicted tag ids and the 0/1 mask marking real (1) vs padding (0) positions.
//
// All four fields are indexed by example and must have the same length;
// Labels[i], Predictions[i] and LabelsMask[i] must have the same length too.
type Batch struct {
	Loss        []float64
	Labels      [][]int
	Predictions [][]int
	LabelsMask  [][]int
}

// Size returns the number of examples in the batch.
func (b Batch) Size() int { return len(b.Labels) }

// Validate checks the batch shape invariants, returning an error wrapping ErrShapeMismatch.
func (b Batch) Validate() error {
	n := len(b.Labels)
	if len(b.Predictions) != n || len(b.LabelsMask) != n || len(b.Loss) != n {
		return errors.Wrapf(ErrShapeMismatch, "batch size: loss=%d, labels=%d, predictions=%d, labels_mask=%d",
			len(b.Loss), len(b.Labels), len(b.Predictions), len(b.LabelsMask))
	}
	for i := range n {
		length := len(b.Labels[i])
		if len(b.Predictions[i]) != length || len(b.LabelsMask[i]) != length {
			return errors.Wrapf(ErrShapeMismatch, "example %d: labels=%d, predictions=%d, labels_mask=%d",
				i, length, len(b.Predictions[i]), len(b.LabelsMask[i]))
		}
		for j, m := range b.LabelsMask[i] {
			if m != 0 && m != 1 {
				return errors.Wrapf(ErrShapeMismatch, "example %d: labels_mask[%d]=%d is not 0 or 1", i, j, m)
			}
		}
		if math.IsNaN(b.Loss[i]) {
			return errors.Errorf("example %d: loss is NaN", i)
		}
	}
	return nil
}

// trueLength returns the number of real tokens of an example: the sum of its mask.
func trueLength(mask []int) int {
	n := 0
	for _, m := range mask {
		n += m
	}
	return n
}

// Accumulator buffers the mask-trimmed label and prediction sequences of every
// example seen during an evaluation run, together with the running loss and word count.
//
// It retains every trimmed example until it is discarded, so memory grows with
// the total number of tokens evaluated. It is not safe for concurrent use.
type Accumulator struct {
	totalLoss       float64
	totalWords      int
	labels          [][]int
	predictions     [][]int
	doubleCountLoss bool
}

// NewAccumulator creates an empty Accumulator. See WithDoubleCountedLoss.
func NewAccumulator(opts ...Option) *Accumulator {
	o := newOptions(opts)
	return &Accumulator{doubleCountLoss: o.doubleCountLoss}
}

// Update validates the batch and stores each example's sequences trimmed to
// its true length. Nothing is stored if the batch is invalid.
func (a *Accumulator) Update(batch Batch) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	words := 0
	for i := range batch.Size() {
		n := trueLength(batch.LabelsMask[i])
		a.labels = append(a.labels, slices.Clone(batch.Labels[i][:n]))
		a.predictions = append(a.predictions, slices.Clone(batch.Predictions[i][:n]))
		a.totalLoss += batch.Loss[i]
		if a.doubleCountLoss {
			a.totalLoss += batch.Loss[i]
		}
		words += n
	}
	a.totalWords += words
	klog.V(2).Infof("accumulated batch of %d examples, %d words (total %d examples, %d words)",
		batch.Size(), words, len(a.labels), a.totalWords)
	return nil
}

// Merge appends the examples, loss and words accumulated by other, in order.
// It lets independent accumulators over partitions of a dataset be combined
// before computing results.
func (a *Accumulator) Merge(other *Accumulator) {
	a.labels = append(a.labels, other.labels...)
	a.predictions = append(a.predictions, other.predictions...)
	a.totalLoss += other.totalLoss
	a.totalWords += other.totalWords
}

// Loss returns the accumulated loss per word. It is 0 before any word is seen.
func (a *Accumulator) Loss() float64 {
	return a.totalLoss / float64(max(1, a.totalWords))
}

// NumExamples returns the number of examples accumulated so far.
func (a *Accumulator) NumExamples() int { return len(a.labels) }

// NumWords returns the number of real (unmasked) tokens accumulated so far.
func (a *Accumulator) NumWords() int { return a.totalWords }

// Example returns the trimmed gold and predicted tag ids of the i-th example.
// The returned slices must not be modified.
func (a *Accumulator) Example(i int) (labels, predictions []int) {
	return a.labels[i], a.predictions[i]
}
