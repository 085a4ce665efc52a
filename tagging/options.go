package tagging

// Option configures scorers and accumulators.
type Option func(*options)

type options struct {
	autoFailLabel   *int
	doubleCountLoss bool
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithAutoFailLabel sets a gold tag id that always counts as a miss for token
// accuracy, even when the prediction matches. Only used by the accuracy scorer.
func WithAutoFailLabel(id int) Option {
	return func(o *options) {
		o.autoFailLabel = &id
	}
}

// WithDoubleCountedLoss adds each example's loss twice to the running total.
// Use it only to compare against evaluation logs produced with that accounting.
func WithDoubleCountedLoss() Option {
	return func(o *options) {
		o.doubleCountLoss = true
	}
}
