package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/xclf/config"
	"github.com/YuminosukeSato/xclf/data"
	"github.com/YuminosukeSato/xclf/metrics"
	"github.com/YuminosukeSato/xclf/models"
	"github.com/YuminosukeSato/xclf/pkg/errors"
	"github.com/YuminosukeSato/xclf/pkg/log"
	"github.com/YuminosukeSato/xclf/tree"

	"github.com/urfave/cli/v2"
)

var cmdTrain = &cli.Command{
	Name:   "train",
	Usage:  "train a model and write it to the output directory",
	Flags:  concat(ioFlags, trainingFlags, predictionFlags),
	Action: runTrain,
}

var cmdTest = &cli.Command{
	Name:  "test",
	Usage: "evaluate a trained model on a labelled dataset",
	Flags: concat(ioFlags, predictionFlags, []cli.Flag{
		&cli.StringFlag{
			Name:  "plot",
			Usage: "save a precision/recall at k plot to this file (png, svg, pdf)",
		},
	}),
	Action: runTest,
}

var cmdPredict = &cli.Command{
	Name:  "predict",
	Usage: "write ranked label predictions for every example",
	Flags: concat(ioFlags, predictionFlags, []cli.Flag{
		&cli.StringFlag{
			Name:    "prediction",
			Aliases: []string{"p"},
			Usage:   "file to write predictions to, stdout if empty",
		},
	}),
	Action: runPredict,
}

var cmdTree = &cli.Command{
	Name:  "tree",
	Usage: "print the label tree of a model, or build one with --input",
	Flags: concat(ioFlags, trainingFlags, []cli.Flag{
		&cli.IntFlag{
			Name:  "depth",
			Usage: "deepest level printed",
			Value: 3,
		},
	}),
	Action: runTree,
}

// trainingConfig starts from --config, or the defaults, and applies flags.
func trainingConfig(cctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := cctx.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := applyFlags(cctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runTrain(cctx *cli.Context) error {
	cfg, err := trainingConfig(cctx)
	if err != nil {
		return err
	}
	if cfg.Input == "" {
		return errors.NewValidationError("input", "training data is required", cfg.Input)
	}

	ds, err := data.ReadFile(cfg.Input, data.Options{Norm: cfg.Norm})
	if err != nil {
		return err
	}
	m, err := models.New(cfg)
	if err != nil {
		return err
	}
	return m.Train(cctx.Context, ds.Labels, ds.Features, cfg)
}

// loadForEval opens the model named by --output and reads --input with the
// normalisation the model was trained with.
func loadForEval(cctx *cli.Context) (models.Model, *config.Config, *data.Dataset, error) {
	m, cfg, err := models.Load(cctx.String("output"))
	if err != nil {
		return nil, nil, nil, err
	}
	if err := applyFlags(cctx, cfg); err != nil {
		return nil, nil, nil, err
	}
	if !cctx.IsSet("input") {
		return nil, nil, nil, errors.NewValidationError("input", "dataset is required", "")
	}
	ds, err := data.ReadFile(cfg.Input, data.Options{Norm: cfg.Norm, Labels: m.OutputSize()})
	if err != nil {
		return nil, nil, nil, err
	}
	return m, cfg, ds, nil
}

func runTest(cctx *cli.Context) error {
	m, cfg, ds, err := loadForEval(cctx)
	if err != nil {
		return err
	}
	results, err := m.Test(cctx.Context, ds.Labels, ds.Features, cfg)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintf(cctx.App.Writer, "%s: %.5f\n", r.Name, r.Value)
	}

	path := cctx.String("plot")
	if path == "" {
		return nil
	}
	preds, err := models.PredictBatch(cctx.Context, m, ds.Features, cfg)
	if err != nil {
		return err
	}
	labels := make([][]int, ds.Labels.Rows())
	for i := range labels {
		labels[i] = ds.Labels.Row(i)
	}
	maxK := cfg.TopK
	if maxK < 1 {
		maxK = 10
	}
	if err := metrics.PlotPrecisionCurve(path, labels, preds, maxK); err != nil {
		return err
	}
	log.GetLoggerWithName("xclf").Info("Plot saved", log.PathKey, path)
	return nil
}

func runPredict(cctx *cli.Context) error {
	m, cfg, ds, err := loadForEval(cctx)
	if err != nil {
		return err
	}
	preds, err := models.PredictBatch(cctx.Context, m, ds.Features, cfg)
	if err != nil {
		return err
	}

	path := cctx.String("prediction")
	if path == "" {
		return data.WritePredictions(cctx.App.Writer, preds)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := data.WritePredictions(f, preds); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func runTree(cctx *cli.Context) error {
	dir := cctx.String("output")
	path := filepath.Join(dir, tree.FileName)

	var t *tree.Tree
	if cctx.IsSet("input") {
		cfg, err := trainingConfig(cctx)
		if err != nil {
			return err
		}
		ds, err := data.ReadFile(cfg.Input, data.Options{Norm: cfg.Norm})
		if err != nil {
			return err
		}
		t, err = tree.Build(cctx.Context, cfg, ds.Labels, ds.Features)
		if err != nil {
			return err
		}
		if err := t.SaveFile(path); err != nil {
			return err
		}
	} else {
		var err error
		if t, err = tree.LoadFile(path); err != nil {
			return err
		}
	}
	return printTree(cctx.App.Writer, t, cctx.Int("depth"))
}

func printTree(w io.Writer, t *tree.Tree, depth int) error {
	if _, err := fmt.Fprintf(w, "nodes: %d, labels: %d, depth: %d\n", t.Size(), t.Labels(), t.Depth()); err != nil {
		return err
	}
	_, err := io.WriteString(w, t.Render(depth))
	return err
}
