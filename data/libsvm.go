// Package data reads and writes multi-label datasets in the LIBSVM style
// used by extreme classification benchmarks:
//
//	[rows features labels]
//	l1,l2,... idx:val idx:val ...
//
// The optional first line is the XMLC header. An example without labels
// starts directly with its first feature.
package data

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/YuminosukeSato/xclf/core/model"
	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/pkg/errors"
	"github.com/YuminosukeSato/xclf/pkg/log"
	"github.com/YuminosukeSato/xclf/preprocessing"
)

// Options control how a dataset is read.
type Options struct {
	// Norm scales every feature row to unit L2 norm.
	Norm bool
	// Features and Labels set minimum dimensions, e.g. those of a trained
	// model, when the test file is narrower.
	Features int
	Labels   int
}

// Dataset is a parsed dataset.
type Dataset struct {
	Labels   *sparse.LabelMatrix
	Features *sparse.Matrix
}

// Rows returns the number of examples.
func (d *Dataset) Rows() int { return d.Features.Rows() }

const maxLine = 64 << 20

// ReadFile reads the dataset at path.
func ReadFile(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset %s", path)
	}
	defer f.Close()

	start := time.Now()
	ds, err := Read(f, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	log.GetLoggerWithName("data").Info("Dataset loaded",
		log.PathKey, path,
		log.SamplesKey, ds.Rows(),
		log.FeaturesKey, ds.Features.Cols(),
		log.LabelsKey, ds.Labels.Cols(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return ds, nil
}

// Read parses a dataset from r. Lines are numbered from 1 in errors.
func Read(r io.Reader, opts Options) (*Dataset, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	ds := &Dataset{
		Labels:   sparse.NewLabelMatrix(opts.Labels),
		Features: sparse.NewMatrix(opts.Features),
	}
	headerRows := -1
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if lineNo == 1 {
			if rows, features, labels, ok := parseHeader(line); ok {
				headerRows = rows
				ds.Labels = sparse.NewLabelMatrix(max(labels, opts.Labels))
				ds.Features = sparse.NewMatrix(max(features, opts.Features))
				continue
			}
		}
		labels, row, err := parseLine(line)
		if err != nil {
			return nil, errors.NewValueError("data.Read", fmt.Sprintf("line %d: %v", lineNo, err))
		}
		ds.Labels.AppendRow(labels)
		ds.Features.AppendRow(row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan dataset")
	}
	if headerRows >= 0 && headerRows != ds.Rows() {
		return nil, errors.NewValueError("data.Read", fmt.Sprintf("header declares %d rows, found %d", headerRows, ds.Rows()))
	}

	if opts.Norm {
		n, _ := preprocessing.NewNormalizer(preprocessing.L2)
		n.Transform(ds.Features)
	}
	return ds, nil
}

func parseHeader(line string) (rows, features, labels int, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return 0, 0, 0, false
	}
	var vals [3]int
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil || v < 0 {
			return 0, 0, 0, false
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], true
}

func parseLine(line string) ([]int, sparse.Row, error) {
	fields := strings.Fields(line)
	var labels []int
	if len(fields) > 0 && !strings.Contains(fields[0], ":") {
		for _, s := range strings.Split(fields[0], ",") {
			if s == "" {
				continue
			}
			l, err := strconv.Atoi(s)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid label %q", s)
			}
			if l < 0 {
				return nil, nil, fmt.Errorf("negative label %d", l)
			}
			labels = append(labels, l)
		}
		fields = fields[1:]
	}

	features := make([]sparse.Feature, 0, len(fields))
	for _, f := range fields {
		idx, val, found := strings.Cut(f, ":")
		if !found {
			return nil, nil, fmt.Errorf("feature %q is not idx:val", f)
		}
		i, err := strconv.Atoi(idx)
		if err != nil || i < 0 {
			return nil, nil, fmt.Errorf("invalid feature index %q", idx)
		}
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid feature value %q", val)
		}
		features = append(features, sparse.Feature{Index: i, Value: v})
	}
	return labels, sparse.NewRow(features...), nil
}

// Write writes ds in the format read by Read, header included.
func Write(w io.Writer, ds *Dataset) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d %d\n", ds.Rows(), ds.Features.Cols(), ds.Labels.Cols())
	for i := 0; i < ds.Rows(); i++ {
		for j, l := range ds.Labels.Row(i) {
			if j > 0 {
				bw.WriteByte(',')
			}
			bw.WriteString(strconv.Itoa(l))
		}
		for _, f := range ds.Features.Row(i) {
			bw.WriteByte(' ')
			bw.WriteString(strconv.Itoa(f.Index))
			bw.WriteByte(':')
			bw.WriteString(strconv.FormatFloat(f.Value, 'g', -1, 64))
		}
		bw.WriteByte('\n')
	}
	return errors.Wrap(bw.Flush(), "failed to write dataset")
}

// WritePredictions writes one line per row: space separated label:score
// pairs in rank order.
func WritePredictions(w io.Writer, preds [][]model.Prediction) error {
	bw := bufio.NewWriter(w)
	for _, row := range preds {
		for j, p := range row {
			if j > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.Itoa(p.Label))
			bw.WriteByte(':')
			bw.WriteString(strconv.FormatFloat(p.Value, 'f', 6, 64))
		}
		bw.WriteByte('\n')
	}
	return errors.Wrap(bw.Flush(), "failed to write predictions")
}
