package config

// WithModelType sets the model family.
func WithModelType(t ModelType) Option {
	return func(c *Config) { c.ModelType = t }
}

// WithEnsembleSize sets the number of ensemble members.
func WithEnsembleSize(n int) Option {
	return func(c *Config) { c.EnsembleSize = n }
}

// WithThreads sets the worker count; <= 0 means GOMAXPROCS.
func WithThreads(n int) Option {
	return func(c *Config) { c.Threads = n }
}

// WithSeed sets the seed of every random generator.
func WithSeed(seed int64) Option {
	return func(c *Config) { c.Seed = seed }
}

// WithTree sets the tree construction, arity and leaf fallback size.
func WithTree(t TreeType, arity, maxLeaves int) Option {
	return func(c *Config) {
		c.TreeType = t
		c.Arity = arity
		c.MaxLeaves = maxLeaves
	}
}

// WithKMeans sets the k-means distance and stopping criteria.
func WithKMeans(d Distance, eps float64, maxIter int) Option {
	return func(c *Config) {
		c.KMeansDistance = d
		c.KMeansEps = eps
		c.KMeansMaxIter = maxIter
	}
}

// WithLearning sets the base classifier learning rate, iterations and L2 strength.
func WithLearning(eta float64, iter int, l2 float64) Option {
	return func(c *Config) {
		c.Eta = eta
		c.Iter = iter
		c.L2 = l2
	}
}

// WithEpochs sets the passes of online training.
func WithEpochs(n int) Option {
	return func(c *Config) { c.Epochs = n }
}

// WithWeightsThreshold sets the magnitude below which weights are dropped on save.
func WithWeightsThreshold(v float64) Option {
	return func(c *Config) { c.WeightsThreshold = v }
}

// WithTopK sets the number of predicted labels.
func WithTopK(k int) Option {
	return func(c *Config) { c.TopK = k }
}

// WithThreshold sets the pruning probability.
func WithThreshold(v float64) Option {
	return func(c *Config) { c.Threshold = v }
}

// WithUtility sets the delta and gamma of set-valued prediction.
func WithUtility(delta, gamma float64) Option {
	return func(c *Config) {
		c.Delta = delta
		c.Gamma = gamma
	}
}

// WithMeasures sets the evaluation measures, e.g. "p@1,r@5".
func WithMeasures(spec string) Option {
	return func(c *Config) { c.Measures = spec }
}

// WithOutput sets the model directory.
func WithOutput(dir string) Option {
	return func(c *Config) { c.Output = dir }
}
