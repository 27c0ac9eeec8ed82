// Package xclf provides extreme multi-label classification for Go: models
// that rank a handful of relevant labels out of a label space too large to
// score exhaustively.
//
// Labels are placed at the leaves of a tree. Every tree node owns a binary
// logistic classifier, trained concurrently, and prediction walks the tree
// best-first so that only the branches leading to likely labels are scored.
//
// # Features
//
//   - Probabilistic label trees (plt), their online variant (oplt) and
//     hierarchical softmax (hsm)
//   - Flat baselines: binary relevance (br) and one-vs-rest (ovr)
//   - Set-valued predictions maximising a utility (ubop, rbop, ubopHsm)
//   - Ensembles of plt or hsm trees with averaged scores
//   - Complete, random and hierarchical balanced k-means label trees
//   - Deterministic training: identical weights for any thread count
//
// # Installation
//
//	go get github.com/YuminosukeSato/xclf
//
// # Quick Start
//
//	cfg := config.New(
//	    config.WithModelType(config.PLT),
//	    config.WithTree(config.TreeKMeans, 2, 100),
//	    config.WithTopK(5),
//	    config.WithOutput("model"),
//	)
//	ds, err := data.ReadFile("train.txt", data.Options{Norm: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	m, err := models.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := m.Train(ctx, ds.Labels, ds.Features, cfg); err != nil {
//	    log.Fatal(err)
//	}
//	preds, err := m.Predict(ds.Features.Row(0), cfg)
//
// The same is available from the command line:
//
//	xclf train -i train.txt -o model -t plt --tree-type kmeans
//	xclf test -i test.txt -o model --measures p@1,p@3,p@5
//	xclf predict -i test.txt -o model --top-k 5
//	xclf tree -o model --depth 2
//
// # Packages
//
//   - models: model families, ensembles, batch prediction and evaluation
//   - tree: label tree construction, persistence and best-first search
//   - base: logistic base classifiers and the concurrent training engine
//   - data: LIBSVM-style multi-label dataset reader and writer
//   - metrics: precision, recall, coverage and nDCG at k, accuracy
//   - preprocessing: row normalisation
//   - config: options, validation and args.json persistence
//   - core/sparse, core/parallel, core/model: shared building blocks
//   - pkg/errors, pkg/log: structured errors and logging
package xclf
