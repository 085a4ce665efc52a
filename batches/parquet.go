package batches

import (
	"io"
	"os"

	"github.com/gomlx/go-tagging-eval/tagging"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Row is one evaluated example as stored in a parquet file.
type Row struct {
	Loss        float64 `parquet:"loss"`
	Labels      []int64 `parquet:"labels"`
	Predictions []int64 `parquet:"predictions"`
	LabelsMask  []int64 `parquet:"labels_mask"`
}

func toInts(values []int64) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}

// RowsToBatch converts rows into a batch. The row slices are copied.
func RowsToBatch(rows []Row) tagging.Batch {
	batch := tagging.Batch{
		Loss:        make([]float64, len(rows)),
		Labels:      make([][]int, len(rows)),
		Predictions: make([][]int, len(rows)),
		LabelsMask:  make([][]int, len(rows)),
	}
	for i, row := range rows {
		batch.Loss[i] = row.Loss
		batch.Labels[i] = toInts(row.Labels)
		batch.Predictions[i] = toInts(row.Predictions)
		batch.LabelsMask[i] = toInts(row.LabelsMask)
	}
	return batch
}

// WriteParquet writes rows to a parquet file at path.
func WriteParquet(path string, rows []Row) error {
	if err := parquet.WriteFile(path, rows); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// IterParquet streams the rows of the parquet file at path as batches of up to
// batchSize examples. Only one batch of rows is held in memory at a time.
func IterParquet(path string, batchSize int) func(yield func(tagging.Batch, error) bool) {
	return func(yield func(tagging.Batch, error) bool) {
		if batchSize <= 0 {
			yield(tagging.Batch{}, errors.Errorf("invalid batch size %d", batchSize))
			return
		}
		f, err := os.Open(path)
		if err != nil {
			yield(tagging.Batch{}, errors.Wrapf(err, "failed to open %s", path))
			return
		}
		defer f.Close()

		reader := parquet.NewGenericReader[Row](f)
		defer reader.Close()
		klog.V(1).Infof("reading %d rows from %s in batches of %d", reader.NumRows(), path, batchSize)

		rows := make([]Row, batchSize)
		for {
			n, err := reader.Read(rows)
			if n > 0 {
				if !yield(RowsToBatch(rows[:n]), nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(tagging.Batch{}, errors.Wrapf(err, "failed to read rows from %s", path))
				return
			}
		}
	}
}
