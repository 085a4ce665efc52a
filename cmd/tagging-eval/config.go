package main

import (
	"flag"
	"os"

	"github.com/gomlx/go-tagging-eval/internal/files"
	"github.com/gomlx/go-tagging-eval/tagging"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config of an evaluation run. It can be loaded from a YAML file with -config;
// flags set on the command line take precedence.
type Config struct {
	Labels          string   `yaml:"labels"`
	Inputs          []string `yaml:"inputs"`
	Scorer          string   `yaml:"scorer"`
	AutoFailLabel   *int     `yaml:"auto_fail_label"`
	DoubleCountLoss bool     `yaml:"double_count_loss"`
	BatchSize       int      `yaml:"batch_size"`
	Results         string   `yaml:"results"`
}

// DefaultConfig returns the configuration used when neither file nor flags set a value.
func DefaultConfig() Config {
	return Config{
		Scorer:    tagging.EntityF1AccuracyScorerName,
		BatchSize: 64,
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	path, err := files.ReplaceTildeInDir(path)
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return cfg, nil
}

// Validate checks the configuration is complete.
func (c Config) Validate() error {
	if len(c.Inputs) == 0 {
		return errors.New("no input files given")
	}
	if c.Labels == "" && c.Scorer != tagging.AccuracyScorerName {
		return errors.Errorf("scorer %q requires a label mapping (-labels)", c.Scorer)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("invalid batch size %d", c.BatchSize)
	}
	return nil
}

// Options returns the scorer options of the configuration.
func (c Config) Options() []tagging.Option {
	var opts []tagging.Option
	if c.AutoFailLabel != nil {
		opts = append(opts, tagging.WithAutoFailLabel(*c.AutoFailLabel))
	}
	if c.DoubleCountLoss {
		opts = append(opts, tagging.WithDoubleCountedLoss())
	}
	return opts
}

var (
	flagConfig          = flag.String("config", "", "YAML configuration file. Flags override its values.")
	flagLabels          = flag.String("labels", "", "JSON label mapping: list of tags, or object tag -> id.")
	flagScorer          = flag.String("scorer", "", "Scorer: accuracy, entity-f1, entity-f1-accuracy or conll (default entity-f1-accuracy).")
	flagAutoFailLabel   = flag.Int("auto_fail_label", -1, "Gold tag id always scored as wrong by the accuracy scorer. Negative to disable.")
	flagDoubleCountLoss = flag.Bool("double_count_loss", false, "Count each example's loss twice, for comparison with older evaluation logs.")
	flagBatchSize       = flag.Int("batch_size", 0, "Number of parquet rows per batch (default 64).")
	flagResults         = flag.String("results", "", "If set, append the report to this JSONL results log.")
)

// configFromFlags loads -config if given and overrides it with the flags set
// in the command line. Positional arguments are the input files.
func configFromFlags() (Config, error) {
	cfg := DefaultConfig()
	if *flagConfig != "" {
		var err error
		if cfg, err = LoadConfig(*flagConfig); err != nil {
			return cfg, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "labels":
			cfg.Labels = *flagLabels
		case "scorer":
			cfg.Scorer = *flagScorer
		case "auto_fail_label":
			if *flagAutoFailLabel >= 0 {
				cfg.AutoFailLabel = flagAutoFailLabel
			} else {
				cfg.AutoFailLabel = nil
			}
		case "double_count_loss":
			cfg.DoubleCountLoss = *flagDoubleCountLoss
		case "batch_size":
			cfg.BatchSize = *flagBatchSize
		case "results":
			cfg.Results = *flagResults
		}
	})
	if flag.NArg() > 0 {
		cfg.Inputs = flag.Args()
	}
	return cfg, cfg.Validate()
}
