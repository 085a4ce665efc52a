// tagging-eval scores the predictions of a sequence-tagging model.
//
// Inputs are parquet files (columns loss, labels, predictions, labels_mask) or
// safetensors dumps (tensors with the same names), one evaluation batch each.
//
// Usage:
//
//	go run ./cmd/tagging-eval -labels labels.json -scorer conll eval.parquet
//	go run ./cmd/tagging-eval -config eval.yaml -results ~/tagging/results.jsonl dump-*.safetensors
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/go-tagging-eval/batches"
	"github.com/gomlx/go-tagging-eval/report"
	"github.com/gomlx/go-tagging-eval/tagging"
	"github.com/gomlx/go-tagging-eval/tagging/conlleval"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <input.parquet|input.safetensors>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	defer klog.Flush()

	cfg, err := configFromFlags()
	if err != nil {
		klog.Exitf("invalid configuration: %+v", err)
	}
	r, err := evaluate(cfg, os.Stdout)
	if err != nil {
		klog.Exitf("evaluation failed: %+v", err)
	}
	if cfg.Results != "" {
		rec := report.NewRecord(cfg.Scorer, strings.Join(cfg.Inputs, ","), r)
		if err := report.AppendJSONL(cfg.Results, rec); err != nil {
			klog.Exitf("failed to save results: %+v", err)
		}
		klog.Infof("appended run %s to %s", rec.RunID, cfg.Results)
	}
}

// iterInput returns the batches of one input file, chosen by its extension.
func iterInput(path string, batchSize int) (func(yield func(tagging.Batch, error) bool), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return batches.IterParquet(path, batchSize), nil
	case ".safetensors":
		return batches.IterSafetensors(path), nil
	}
	return nil, errors.Errorf("unsupported input %q: expected a .parquet or .safetensors file", path)
}

// evaluate feeds every input to the configured scorer and writes the rendered report to out.
func evaluate(cfg Config, out io.Writer) (tagging.Report, error) {
	var mapping tagging.LabelMapping
	if cfg.Labels != "" {
		var err error
		if mapping, err = tagging.LoadLabelMapping(cfg.Labels); err != nil {
			return nil, err
		}
		klog.V(1).Infof("loaded %d labels from %s", len(mapping), cfg.Labels)
	}
	scorer, err := tagging.NewScorer(cfg.Scorer, mapping, conlleval.New(), cfg.Options()...)
	if err != nil {
		return nil, err
	}

	numBatches := 0
	for _, input := range cfg.Inputs {
		iter, err := iterInput(input, cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		for batch, err := range iter {
			if err != nil {
				return nil, err
			}
			if err := scorer.Update(batch); err != nil {
				return nil, errors.WithMessagef(err, "batch %d (from %s)", numBatches, input)
			}
			numBatches++
		}
		klog.Infof("%s: %d batches so far", input, numBatches)
	}

	r, err := scorer.Results()
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintln(out, report.Render(scorer.Name(), r)); err != nil {
		return nil, errors.Wrap(err, "failed to write report")
	}
	return r, nil
}
