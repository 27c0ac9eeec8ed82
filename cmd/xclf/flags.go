package main

import (
	"github.com/YuminosukeSato/xclf/config"

	"github.com/urfave/cli/v2"
)

var defaults = config.Default()

var ioFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "input",
		Aliases: []string{"i"},
		Usage:   "dataset in LIBSVM multi-label format",
		EnvVars: []string{"XCLF_INPUT"},
	},
	&cli.StringFlag{
		Name:     "output",
		Aliases:  []string{"o"},
		Usage:    "model directory",
		Required: true,
		EnvVars:  []string{"XCLF_OUTPUT"},
	},
	&cli.IntFlag{
		Name:    "threads",
		Usage:   "worker count, 0 uses GOMAXPROCS",
		Value:   defaults.Threads,
		EnvVars: []string{"XCLF_THREADS"},
	},
}

var predictionFlags = []cli.Flag{
	&cli.IntFlag{
		Name:    "top-k",
		Usage:   "number of labels to predict per example, 0 for all",
		Value:   defaults.TopK,
		EnvVars: []string{"XCLF_TOP_K"},
	},
	&cli.Float64Flag{
		Name:    "threshold",
		Usage:   "minimum probability of a predicted label",
		Value:   defaults.Threshold,
		EnvVars: []string{"XCLF_THRESHOLD"},
	},
	&cli.Float64Flag{
		Name:    "delta",
		Usage:   "utility delta of set-valued predictions",
		Value:   defaults.Delta,
		EnvVars: []string{"XCLF_DELTA"},
	},
	&cli.Float64Flag{
		Name:    "gamma",
		Usage:   "utility gamma of set-valued predictions",
		Value:   defaults.Gamma,
		EnvVars: []string{"XCLF_GAMMA"},
	},
	&cli.BoolFlag{
		Name:    "ens-missing-scores",
		Usage:   "score labels missing from some ensemble members",
		Value:   defaults.EnsMissingScores,
		EnvVars: []string{"XCLF_ENS_MISSING_SCORES"},
	},
	&cli.StringFlag{
		Name:    "measures",
		Usage:   "comma separated measures, e.g. p@1,r@5,ndcg@5,acc",
		Value:   defaults.Measures,
		EnvVars: []string{"XCLF_MEASURES"},
	},
}

var trainingFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "args.json to start from; flags override its values",
		EnvVars: []string{"XCLF_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "model-type",
		Aliases: []string{"t"},
		Usage:   "ovr, br, hsm, plt, oplt, ubop, rbop or ubopHsm",
		Value:   string(defaults.ModelType),
		EnvVars: []string{"XCLF_MODEL_TYPE"},
	},
	&cli.IntFlag{
		Name:    "ensemble",
		Usage:   "number of ensemble members, values above 1 train an ensemble",
		Value:   defaults.EnsembleSize,
		EnvVars: []string{"XCLF_ENSEMBLE"},
	},
	&cli.Int64Flag{
		Name:    "seed",
		Usage:   "random seed",
		Value:   defaults.Seed,
		EnvVars: []string{"XCLF_SEED"},
	},
	&cli.StringFlag{
		Name:    "tree-type",
		Usage:   "complete, random or kmeans",
		Value:   string(defaults.TreeType),
		EnvVars: []string{"XCLF_TREE_TYPE"},
	},
	&cli.IntFlag{
		Name:    "arity",
		Usage:   "children per internal node",
		Value:   defaults.Arity,
		EnvVars: []string{"XCLF_ARITY"},
	},
	&cli.IntFlag{
		Name:    "max-leaves",
		Usage:   "largest label group clustered into leaves directly",
		Value:   defaults.MaxLeaves,
		EnvVars: []string{"XCLF_MAX_LEAVES"},
	},
	&cli.StringFlag{
		Name:    "kmeans-distance",
		Usage:   "cosine or euclidean",
		Value:   string(defaults.KMeansDistance),
		EnvVars: []string{"XCLF_KMEANS_DISTANCE"},
	},
	&cli.Float64Flag{
		Name:    "kmeans-eps",
		Usage:   "k-means stopping tolerance",
		Value:   defaults.KMeansEps,
		EnvVars: []string{"XCLF_KMEANS_EPS"},
	},
	&cli.IntFlag{
		Name:    "kmeans-max-iter",
		Value:   defaults.KMeansMaxIter,
		EnvVars: []string{"XCLF_KMEANS_MAX_ITER"},
	},
	&cli.Float64Flag{
		Name:    "eta",
		Usage:   "learning rate",
		Value:   defaults.Eta,
		EnvVars: []string{"XCLF_ETA"},
	},
	&cli.IntFlag{
		Name:    "iter",
		Usage:   "passes over each node's examples",
		Value:   defaults.Iter,
		EnvVars: []string{"XCLF_ITER"},
	},
	&cli.IntFlag{
		Name:    "epochs",
		Usage:   "passes over the data in online training",
		Value:   defaults.Epochs,
		EnvVars: []string{"XCLF_EPOCHS"},
	},
	&cli.Float64Flag{
		Name:    "l2",
		Usage:   "L2 regularisation strength",
		Value:   defaults.L2,
		EnvVars: []string{"XCLF_L2"},
	},
	&cli.Float64Flag{
		Name:    "tol",
		Value:   defaults.Tol,
		EnvVars: []string{"XCLF_TOL"},
	},
	&cli.Float64Flag{
		Name:    "weights-threshold",
		Usage:   "weights below this magnitude are not saved",
		Value:   defaults.WeightsThreshold,
		EnvVars: []string{"XCLF_WEIGHTS_THRESHOLD"},
	},
	&cli.BoolFlag{
		Name:    "norm",
		Usage:   "scale feature rows to unit length",
		Value:   defaults.Norm,
		EnvVars: []string{"XCLF_NORM"},
	},
}

func concat(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// applyFlags copies every flag set on the command line or in the
// environment onto cfg. Flags not defined for the command are skipped.
func applyFlags(cctx *cli.Context, cfg *config.Config) error {
	if cctx.IsSet("model-type") {
		t, err := config.ParseModelType(cctx.String("model-type"))
		if err != nil {
			return err
		}
		cfg.ModelType = t
	}
	if cctx.IsSet("tree-type") {
		t, err := config.ParseTreeType(cctx.String("tree-type"))
		if err != nil {
			return err
		}
		cfg.TreeType = t
	}
	if cctx.IsSet("kmeans-distance") {
		d, err := config.ParseDistance(cctx.String("kmeans-distance"))
		if err != nil {
			return err
		}
		cfg.KMeansDistance = d
	}

	ints := map[string]*int{
		"ensemble":        &cfg.EnsembleSize,
		"threads":         &cfg.Threads,
		"arity":           &cfg.Arity,
		"max-leaves":      &cfg.MaxLeaves,
		"kmeans-max-iter": &cfg.KMeansMaxIter,
		"iter":            &cfg.Iter,
		"epochs":          &cfg.Epochs,
		"top-k":           &cfg.TopK,
	}
	for name, dst := range ints {
		if cctx.IsSet(name) {
			*dst = cctx.Int(name)
		}
	}

	floats := map[string]*float64{
		"kmeans-eps":        &cfg.KMeansEps,
		"eta":               &cfg.Eta,
		"l2":                &cfg.L2,
		"tol":               &cfg.Tol,
		"weights-threshold": &cfg.WeightsThreshold,
		"threshold":         &cfg.Threshold,
		"delta":             &cfg.Delta,
		"gamma":             &cfg.Gamma,
	}
	for name, dst := range floats {
		if cctx.IsSet(name) {
			*dst = cctx.Float64(name)
		}
	}

	if cctx.IsSet("seed") {
		cfg.Seed = cctx.Int64("seed")
	}
	if cctx.IsSet("norm") {
		cfg.Norm = cctx.Bool("norm")
	}
	if cctx.IsSet("ens-missing-scores") {
		cfg.EnsMissingScores = cctx.Bool("ens-missing-scores")
	}
	if cctx.IsSet("measures") {
		cfg.Measures = cctx.String("measures")
	}
	if cctx.IsSet("input") {
		cfg.Input = cctx.String("input")
	}
	if cctx.IsSet("output") {
		cfg.Output = cctx.String("output")
	}
	if cctx.IsSet("log-level") {
		cfg.LogLevel = cctx.String("log-level")
	}
	return cfg.Validate()
}
