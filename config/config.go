// Package config defines the flat set of options read by every model
// variant, with defaults, validation and JSON persistence as args.json.
package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/YuminosukeSato/xclf/core/parallel"
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// ArgsFile is the name of the persisted configuration inside a model directory.
const ArgsFile = "args.json"

// ModelType selects the model family.
type ModelType string

const (
	OVR     ModelType = "ovr"
	BR      ModelType = "br"
	HSM     ModelType = "hsm"
	PLT     ModelType = "plt"
	OPLT    ModelType = "oplt"
	UBOP    ModelType = "ubop"
	RBOP    ModelType = "rbop"
	UBOPHSM ModelType = "ubopHsm"
)

var modelTypes = []ModelType{OVR, BR, HSM, PLT, OPLT, UBOP, RBOP, UBOPHSM}

// TreeType selects the label tree construction.
type TreeType string

const (
	TreeComplete TreeType = "complete"
	TreeRandom   TreeType = "random"
	TreeKMeans   TreeType = "kmeans"
)

// Distance is the k-means similarity.
type Distance string

const (
	Cosine    Distance = "cosine"
	Euclidean Distance = "euclidean"
)

// ParseModelType matches s case-insensitively against the known families.
func ParseModelType(s string) (ModelType, error) {
	for _, t := range modelTypes {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", errors.NewModelError("config.ParseModelType", "unsupported model", errors.Newf("unknown model type %q", s))
}

// ParseTreeType matches s case-insensitively.
func ParseTreeType(s string) (TreeType, error) {
	for _, t := range []TreeType{TreeComplete, TreeRandom, TreeKMeans} {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", errors.NewValidationError("treeType", "must be complete, random or kmeans", s)
}

// ParseDistance matches s case-insensitively.
func ParseDistance(s string) (Distance, error) {
	for _, d := range []Distance{Cosine, Euclidean} {
		if strings.EqualFold(s, string(d)) {
			return d, nil
		}
	}
	return "", errors.NewValidationError("kmeansDistance", "must be cosine or euclidean", s)
}

// Config is the full option set. Field names follow the command-line flags.
type Config struct {
	ModelType    ModelType `json:"modelType"`
	EnsembleSize int       `json:"ensembleSize"`
	Threads      int       `json:"threads"`
	Seed         int64     `json:"seed"`

	// Tree construction.
	TreeType       TreeType `json:"treeType"`
	Arity          int      `json:"arity"`
	MaxLeaves      int      `json:"maxLeaves"`
	KMeansDistance Distance `json:"kmeansDistance"`
	KMeansEps      float64  `json:"kmeansEps"`
	KMeansMaxIter  int      `json:"kmeansMaxIter"`

	// Base classifiers.
	Eta              float64 `json:"eta"`
	Iter             int     `json:"iter"`
	Epochs           int     `json:"epochs"`
	L2               float64 `json:"l2"`
	Tol              float64 `json:"tol"`
	WeightsThreshold float64 `json:"weightsThreshold"`

	// Prediction.
	TopK             int     `json:"topK"`
	Threshold        float64 `json:"threshold"`
	Delta            float64 `json:"delta"`
	Gamma            float64 `json:"gamma"`
	EnsMissingScores bool    `json:"ensMissingScores"`
	Measures         string  `json:"measures"`

	// Input and output.
	Input    string `json:"input"`
	Output   string `json:"output"`
	Norm     bool   `json:"norm"`
	LogLevel string `json:"logLevel"`
}

// Option mutates a Config.
type Option func(*Config)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ModelType:        PLT,
		EnsembleSize:     0,
		Threads:          0,
		Seed:             1,
		TreeType:         TreeKMeans,
		Arity:            2,
		MaxLeaves:        100,
		KMeansDistance:   Cosine,
		KMeansEps:        1e-4,
		KMeansMaxIter:    100,
		Eta:              1.0,
		Iter:             100,
		Epochs:           1,
		L2:               1e-4,
		Tol:              1e-4,
		WeightsThreshold: 0.1,
		TopK:             5,
		Threshold:        0,
		Delta:            1.6,
		Gamma:            0.6,
		EnsMissingScores: true,
		Measures:         "p@1,p@3,p@5",
		Norm:             true,
		LogLevel:         "info",
	}
}

// New returns Default() with opts applied.
func New(opts ...Option) *Config {
	c := Default()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clone returns a copy that can be modified independently.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Workers resolves Threads: values <= 0 mean GOMAXPROCS.
func (c *Config) Workers() int {
	return parallel.Workers(c.Threads)
}

// IsEnsemble reports whether several members are trained.
func (c *Config) IsEnsemble() bool {
	return c.EnsembleSize > 1
}

// Validate checks every option. It never modifies c.
func (c *Config) Validate() error {
	if _, err := ParseModelType(string(c.ModelType)); err != nil {
		return err
	}
	if _, err := ParseTreeType(string(c.TreeType)); err != nil {
		return err
	}
	if _, err := ParseDistance(string(c.KMeansDistance)); err != nil {
		return err
	}

	switch {
	case c.EnsembleSize < 0:
		return errors.NewValidationError("ensembleSize", "must be non-negative", c.EnsembleSize)
	case c.Arity < 2:
		return errors.NewValidationError("arity", "must be at least 2", c.Arity)
	case c.MaxLeaves < 1:
		return errors.NewValidationError("maxLeaves", "must be positive", c.MaxLeaves)
	case c.KMeansEps < 0:
		return errors.NewValidationError("kmeansEps", "must be non-negative", c.KMeansEps)
	case c.KMeansMaxIter < 1:
		return errors.NewValidationError("kmeansMaxIter", "must be positive", c.KMeansMaxIter)
	case c.Eta <= 0:
		return errors.NewValidationError("eta", "must be positive", c.Eta)
	case c.Iter < 1:
		return errors.NewValidationError("iter", "must be positive", c.Iter)
	case c.Epochs < 1:
		return errors.NewValidationError("epochs", "must be positive", c.Epochs)
	case c.L2 < 0:
		return errors.NewValidationError("l2", "must be non-negative", c.L2)
	case c.Tol < 0:
		return errors.NewValidationError("tol", "must be non-negative", c.Tol)
	case c.WeightsThreshold < 0:
		return errors.NewValidationError("weightsThreshold", "must be non-negative", c.WeightsThreshold)
	case c.TopK < 0:
		return errors.NewValidationError("topK", "must be non-negative", c.TopK)
	case c.Threshold < 0 || c.Threshold > 1:
		return errors.NewValidationError("threshold", "must be in [0, 1]", c.Threshold)
	case c.Delta <= 0:
		return errors.NewValidationError("delta", "must be positive", c.Delta)
	case c.Gamma < 0:
		return errors.NewValidationError("gamma", "must be non-negative", c.Gamma)
	}

	if c.IsEnsemble() && c.ModelType != PLT && c.ModelType != HSM {
		return errors.NewModelError("config.Validate", "unsupported model",
			errors.Newf("ensemble of %q is not supported, only plt and hsm", c.ModelType))
	}
	return nil
}

// Write encodes c as indented JSON.
func (c *Config) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return errors.Wrap(err, "failed to encode configuration")
	}
	return nil
}

// Read decodes JSON into a copy of the defaults, so missing keys keep their
// default values.
func Read(r io.Reader) (*Config, error) {
	c := Default()
	if err := json.NewDecoder(r).Decode(c); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	return c, nil
}

// Load reads an args.json written by Write.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	return Read(f)
}
