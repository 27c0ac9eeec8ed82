package log

// Model and operation context.
const (
	// ModelNameKey identifies the model variant, e.g. "plt" or "ensemble".
	ModelNameKey = "model.name"

	// OperationKey is one of the Operation* values below.
	OperationKey = "ml.operation"

	// ComponentKey is set by GetLoggerWithName.
	ComponentKey = "ml.component"

	PhaseKey = "ml.phase"

	// MemberKey is the ensemble member index.
	MemberKey = "ensemble.member"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	LabelsKey   = "data.labels"
	PathKey     = "data.path"
)

// Tree shape.
const (
	TreeTypeKey   = "tree.type"
	TreeNodesKey  = "tree.nodes"
	TreeLabelsKey = "tree.labels"
	TreeDepthKey  = "tree.depth"
	ArityKey      = "tree.arity"
)

// Training engine.
const (
	JobsKey         = "jobs.count"
	ThreadsKey      = "jobs.threads"
	CompletedKey    = "jobs.completed"
	NotConvergedKey = "jobs.not_converged"
	DurationMsKey   = "perf.duration_ms"
	IterationKey    = "training.iteration"
	EpochKey        = "training.epoch"
)

// Prediction and evaluation.
const (
	TopKKey      = "preds.top_k"
	ThresholdKey = "preds.threshold"
	PredsKey     = "preds.count"
	MeasureKey   = "metrics.measure"
	ValueKey     = "metrics.value"
)

// Configuration.
const (
	RandomSeedKey   = "config.random_seed"
	LearningRateKey = "hyperparams.learning_rate"
	ErrorTypeKey    = "error.type"
)

// Standard attribute values.
const (
	OperationTrain    = "train"
	OperationPredict  = "predict"
	OperationTest     = "test"
	OperationBuild    = "build_tree"
	OperationLoad     = "load"
	OperationSave     = "save"
	OperationAssign   = "assign"
	OperationOnline   = "online_update"
	PhaseTraining     = "training"
	PhaseInference    = "inference"
	PhaseEvaluation   = "evaluation"
	PhasePersistence  = "persistence"
	PhaseConstruction = "construction"
)
