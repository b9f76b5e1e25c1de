package shape

// Option configures the shape builders.
type Option func(*config)

type config struct {
	classifier Classifier
}

func newConfig(opts []Option) *config {
	cfg := &config{classifier: DefaultClassifier{}}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithClassifier replaces the default value/by-ref classifier.
func WithClassifier(c Classifier) Option {
	return func(cfg *config) { cfg.classifier = c }
}

// WithByRefPolicy keeps the default classifier but changes its by-ref policy.
func WithByRefPolicy(p ByRefPolicy) Option {
	return func(cfg *config) { cfg.classifier = DefaultClassifier{Policy: p} }
}
