package tagging

import (
	"strconv"
	"strings"
)

// Metric names, in the order scorers report them.
const (
	MetricConllAccuracy  = "conll_acc"
	MetricConllF1        = "conll_f1"
	MetricConllPrecision = "conll_p"
	MetricConllRecall    = "conll_r"
	MetricAccuracy       = "accuracy"
	MetricPrecision      = "precision"
	MetricRecall         = "recall"
	MetricF1             = "f1"
	MetricLoss           = "loss"
)

// Metric is one named value of a Report.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Report is the ordered list of metrics produced by a Scorer.
// The order is part of the contract: it is fixed per scorer variant.
type Report []Metric

// Get returns the value of the first metric with the given name.
func (r Report) Get(name string) (float64, bool) {
	for _, m := range r {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

// Names returns the metric names in report order.
func (r Report) Names() []string {
	names := make([]string, len(r))
	for i, m := range r {
		names[i] = m.Name
	}
	return names
}

// String formats the report as space separated name=value pairs.
func (r Report) String() string {
	var sb strings.Builder
	for i, m := range r {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(m.Name)
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatFloat(m.Value, 'f', 4, 64))
	}
	return sb.String()
}
