package batches

import (
	"testing"

	"github.com/gomlx/go-tagging-eval/tagging"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromTensors(t *testing.T) {
	loss := tensors.FromFlatDataAndDimensions([]float32{1.5, 2.5}, 2)
	labels := tensors.FromFlatDataAndDimensions([]int32{1, 2, 0, 3, 0, 0}, 2, 3)
	predictions := tensors.FromFlatDataAndDimensions([]int64{1, 0, 0, 3, 4, 4}, 2, 3)
	mask := tensors.FromFlatDataAndDimensions([]bool{true, true, true, true, false, false}, 2, 3)

	batch, err := FromTensors(loss, labels, predictions, mask)
	require.NoError(t, err)
	assert.Equal(t, tagging.Batch{
		Loss:        []float64{1.5, 2.5},
		Labels:      [][]int{{1, 2, 0}, {3, 0, 0}},
		Predictions: [][]int{{1, 0, 0}, {3, 4, 4}},
		LabelsMask:  [][]int{{1, 1, 1}, {1, 0, 0}},
	}, batch)
	require.NoError(t, batch.Validate())
}

func TestFromTensorsPerTokenLoss(t *testing.T) {
	loss := tensors.FromFlatDataAndDimensions([]float64{0.5, 0.25, 0, 1, 1, 1}, 2, 3)
	labels := tensors.FromFlatDataAndDimensions([]int32{1, 2, 0, 3, 0, 0}, 2, 3)
	mask := tensors.FromFlatDataAndDimensions([]float32{1, 1, 0, 1, 1, 1}, 2, 3)

	batch, err := FromTensors(loss, labels, labels, mask)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.75, 3}, batch.Loss)
	assert.Equal(t, [][]int{{1, 1, 0}, {1, 1, 1}}, batch.LabelsMask)
}

func TestFromTensorsErrors(t *testing.T) {
	labels := tensors.FromFlatDataAndDimensions([]int32{1, 2, 0, 3}, 2, 2)
	loss := tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2)

	_, err := FromTensors(loss, labels, tensors.FromFlatDataAndDimensions([]int32{1, 2, 0}, 1, 3), labels)
	assert.True(t, errors.Is(err, tagging.ErrShapeMismatch), "got %v", err)

	_, err = FromTensors(tensors.FromFlatDataAndDimensions([]float32{1, 2, 3}, 3), labels, labels, labels)
	assert.True(t, errors.Is(err, tagging.ErrShapeMismatch), "got %v", err)

	_, err = FromTensors(tensors.FromFlatDataAndDimensions([]int32{1, 2}, 2), labels, labels, labels)
	assert.Error(t, err)

	_, err = FromTensors(loss, tensors.FromFlatDataAndDimensions([]int32{1, 2}, 2), labels, labels)
	assert.True(t, errors.Is(err, tagging.ErrShapeMismatch), "got %v", err)

	_, err = FromTensors(nil, labels, labels, labels)
	assert.Error(t, err)
}
