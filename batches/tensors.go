// Package batches produces tagging.Batch values from the outputs of an
// evaluation step: GoMLX tensors, safetensors dumps and parquet files.
//
// Example: score a parquet file with columns loss, labels, predictions and labels_mask,
// holding at most 64 examples in memory at a time:
//
//	scorer := tagging.NewAccuracyScorer()
//	for batch, err := range batches.IterParquet("eval.parquet", 64) {
//		if err != nil {
//			panic(err)
//		}
//		if err := scorer.Update(batch); err != nil {
//			panic(err)
//		}
//	}
package batches

import (
	"math"

	"github.com/gomlx/go-tagging-eval/tagging"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// FromTensors builds a batch from the tensors of one evaluation step.
//
// labels, predictions and mask must share the shape [batch_size, seq_len]; the mask
// holds 0/1 values (any integer, float or bool dtype). loss may be shaped
// [batch_size] (one loss per example), [batch_size, seq_len] (per-token losses,
// summed per example) or be a scalar if batch_size is 1.
func FromTensors(loss, labels, predictions, mask *tensors.Tensor) (tagging.Batch, error) {
	if loss == nil || labels == nil || predictions == nil || mask == nil {
		return tagging.Batch{}, errors.New("FromTensors requires non-nil loss, labels, predictions and mask tensors")
	}
	dims := labels.Shape().Dimensions
	if len(dims) != 2 {
		return tagging.Batch{}, errors.Wrapf(tagging.ErrShapeMismatch, "labels must have rank 2, got shape %s", labels.Shape())
	}
	batchSize, seqLen := dims[0], dims[1]
	for name, t := range map[string]*tensors.Tensor{"predictions": predictions, "labels_mask": mask} {
		if !sameDims(t.Shape().Dimensions, dims) {
			return tagging.Batch{}, errors.Wrapf(tagging.ErrShapeMismatch, "%s shape %s differs from labels shape %s",
				name, t.Shape(), labels.Shape())
		}
	}

	flatLabels, err := intsFromTensor(labels)
	if err != nil {
		return tagging.Batch{}, errors.WithMessage(err, "labels")
	}
	flatPredictions, err := intsFromTensor(predictions)
	if err != nil {
		return tagging.Batch{}, errors.WithMessage(err, "predictions")
	}
	flatMask, err := intsFromTensor(mask)
	if err != nil {
		return tagging.Batch{}, errors.WithMessage(err, "labels_mask")
	}
	losses, err := exampleLosses(loss, batchSize)
	if err != nil {
		return tagging.Batch{}, err
	}

	batch := tagging.Batch{
		Loss:        losses,
		Labels:      make([][]int, batchSize),
		Predictions: make([][]int, batchSize),
		LabelsMask:  make([][]int, batchSize),
	}
	for i := range batchSize {
		lo, hi := i*seqLen, (i+1)*seqLen
		batch.Labels[i] = flatLabels[lo:hi:hi]
		batch.Predictions[i] = flatPredictions[lo:hi:hi]
		batch.LabelsMask[i] = flatMask[lo:hi:hi]
	}
	return batch, nil
}

func sameDims(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// exampleLosses reduces the loss tensor to one value per example.
func exampleLosses(loss *tensors.Tensor, batchSize int) ([]float64, error) {
	flat, err := floatsFromTensor(loss)
	if err != nil {
		return nil, errors.WithMessage(err, "loss")
	}
	dims := loss.Shape().Dimensions
	switch {
	case len(dims) == 0 && batchSize == 1:
		return flat, nil
	case len(dims) == 1 && dims[0] == batchSize:
		return flat, nil
	case len(dims) == 2 && dims[0] == batchSize:
		losses := make([]float64, batchSize)
		for i := range batchSize {
			for _, v := range flat[i*dims[1] : (i+1)*dims[1]] {
				losses[i] += v
			}
		}
		return losses, nil
	}
	return nil, errors.Wrapf(tagging.ErrShapeMismatch, "loss shape %s incompatible with batch size %d", loss.Shape(), batchSize)
}

func convertInts[T int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64](values []T) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}

// intsFromTensor copies the tensor's flat data as ints. Floats are rounded, bools map to 0/1.
func intsFromTensor(t *tensors.Tensor) ([]int, error) {
	switch t.DType() {
	case dtypes.Int8:
		return convertInts(tensors.MustCopyFlatData[int8](t)), nil
	case dtypes.Int16:
		return convertInts(tensors.MustCopyFlatData[int16](t)), nil
	case dtypes.Int32:
		return convertInts(tensors.MustCopyFlatData[int32](t)), nil
	case dtypes.Int64:
		return convertInts(tensors.MustCopyFlatData[int64](t)), nil
	case dtypes.Uint8:
		return convertInts(tensors.MustCopyFlatData[uint8](t)), nil
	case dtypes.Uint16:
		return convertInts(tensors.MustCopyFlatData[uint16](t)), nil
	case dtypes.Uint32:
		return convertInts(tensors.MustCopyFlatData[uint32](t)), nil
	case dtypes.Uint64:
		return convertInts(tensors.MustCopyFlatData[uint64](t)), nil
	case dtypes.Bool:
		values := tensors.MustCopyFlatData[bool](t)
		out := make([]int, len(values))
		for i, v := range values {
			if v {
				out[i] = 1
			}
		}
		return out, nil
	case dtypes.Float32, dtypes.Float64:
		values, err := floatsFromTensor(t)
		if err != nil {
			return nil, err
		}
		out := make([]int, len(values))
		for i, v := range values {
			out[i] = int(math.Round(v))
		}
		return out, nil
	}
	return nil, errors.Errorf("unsupported dtype %s for integer data", t.DType())
}

// floatsFromTensor copies the tensor's flat data as float64.
func floatsFromTensor(t *tensors.Tensor) ([]float64, error) {
	switch t.DType() {
	case dtypes.Float64:
		return tensors.MustCopyFlatData[float64](t), nil
	case dtypes.Float32:
		values := tensors.MustCopyFlatData[float32](t)
		out := make([]float64, len(values))
		for i, v := range values {
			out[i] = float64(v)
		}
		return out, nil
	}
	return nil, errors.Errorf("unsupported dtype %s for loss, expected Float32 or Float64", t.DType())
}
