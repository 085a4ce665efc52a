package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/go-tagging-eval/batches"
	"github.com/gomlx/go-tagging-eval/tagging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInputs(t *testing.T) (labelsPath, inputPath string) {
	dir := t.TempDir()
	labelsPath = filepath.Join(dir, "labels.json")
	require.NoError(t, os.WriteFile(labelsPath, []byte(`["O", "B-PER", "I-PER", "B-LOC", "I-LOC"]`), 0o644))
	inputPath = filepath.Join(dir, "eval.parquet")
	require.NoError(t, batches.WriteParquet(inputPath, []batches.Row{
		{Loss: 2, Labels: []int64{1, 2, 0, 0}, Predictions: []int64{1, 2, 0, 3}, LabelsMask: []int64{1, 1, 1, 0}},
		{Loss: 2, Labels: []int64{3, 4, 0}, Predictions: []int64{3, 0, 0}, LabelsMask: []int64{1, 1, 1}},
	}))
	return
}

func TestEvaluate(t *testing.T) {
	labelsPath, inputPath := writeInputs(t)
	cfg := DefaultConfig()
	cfg.Labels = labelsPath
	cfg.Inputs = []string{inputPath}
	cfg.Scorer = tagging.CoNLLScorerName
	cfg.BatchSize = 1
	require.NoError(t, cfg.Validate())

	var out bytes.Buffer
	r, err := evaluate(cfg, &out)
	require.NoError(t, err)
	require.Len(t, r, 9)
	f1, _ := r.Get(tagging.MetricF1)
	conllF1, _ := r.Get(tagging.MetricConllF1)
	assert.InDelta(t, 50.0, f1, 1e-9)
	assert.InDelta(t, 50.0, conllF1, 1e-9)
	accuracy, _ := r.Get(tagging.MetricAccuracy)
	assert.InDelta(t, 500.0/6.0, accuracy, 1e-9)
	assert.Contains(t, out.String(), tagging.MetricConllAccuracy)
}

func TestEvaluateErrors(t *testing.T) {
	labelsPath, _ := writeInputs(t)
	cfg := DefaultConfig()
	cfg.Labels = labelsPath
	cfg.Inputs = []string{"eval.csv"}
	_, err := evaluate(cfg, &bytes.Buffer{})
	assert.Error(t, err)

	cfg.Inputs = []string{filepath.Join(t.TempDir(), "missing.parquet")}
	_, err = evaluate(cfg, &bytes.Buffer{})
	assert.Error(t, err)

	cfg.Scorer = "bleu"
	_, err = evaluate(cfg, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
labels: labels.json
inputs: [a.parquet, b.safetensors]
scorer: accuracy
auto_fail_label: 0
double_count_loss: true
`), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "labels.json", cfg.Labels)
	assert.Equal(t, []string{"a.parquet", "b.safetensors"}, cfg.Inputs)
	assert.Equal(t, tagging.AccuracyScorerName, cfg.Scorer)
	require.NotNil(t, cfg.AutoFailLabel)
	assert.Equal(t, 0, *cfg.AutoFailLabel)
	assert.True(t, cfg.DoubleCountLoss)
	assert.Equal(t, 64, cfg.BatchSize, "defaults are kept")
	assert.Len(t, cfg.Options(), 2)
	require.NoError(t, cfg.Validate())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate(), "no inputs")
	cfg.Inputs = []string{"eval.parquet"}
	assert.Error(t, cfg.Validate(), "entity scorer without labels")
	cfg.Scorer = tagging.AccuracyScorerName
	assert.NoError(t, cfg.Validate())
	cfg.BatchSize = 0
	assert.Error(t, cfg.Validate())
}
