package base

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

var byteOrder = binary.LittleEndian

// Encode writes c in its binary form. Logistic weights whose magnitude is
// below threshold are omitted.
func (c *Classifier) Encode(w io.Writer, threshold float64) error {
	if err := binary.Write(w, byteOrder, uint8(c.kind)); err != nil {
		return errors.Wrap(err, "failed to write classifier kind")
	}
	if c.kind == KindConstant {
		return errors.Wrap(binary.Write(w, byteOrder, c.prob), "failed to write constant")
	}

	kept := c.kept(threshold)
	header := struct {
		Bias float64
		Dims int32
		NNZ  int32
	}{c.bias, int32(c.dims), int32(len(kept))}
	if err := binary.Write(w, byteOrder, header); err != nil {
		return errors.Wrap(err, "failed to write classifier header")
	}

	buf := make([]byte, 12)
	for _, f := range kept {
		byteOrder.PutUint32(buf[0:4], uint32(int32(f.Index)))
		byteOrder.PutUint64(buf[4:12], math.Float64bits(f.Value))
		if _, err := w.Write(buf); err != nil {
			return errors.Wrap(err, "failed to write weights")
		}
	}
	return nil
}

func (c *Classifier) kept(threshold float64) sparse.Row {
	var out sparse.Row
	if c.dense == nil {
		for _, f := range c.sparse {
			if math.Abs(f.Value) >= threshold && f.Value != 0 {
				out = append(out, f)
			}
		}
		return out
	}
	for i, v := range c.dense {
		if v != 0 && math.Abs(v) >= threshold {
			out = append(out, sparse.Feature{Index: i, Value: v})
		}
	}
	return out
}

// maxPrealloc caps allocations sized by counts read from a file; larger
// inputs grow while they are read.
const maxPrealloc = 1 << 16

// Decode reads one classifier written by Encode. Truncated or inconsistent
// input is reported as *errors.StructuralError.
func Decode(r io.Reader) (*Classifier, error) {
	var kind uint8
	if err := binary.Read(r, byteOrder, &kind); err != nil {
		return nil, structural(err, "classifier kind")
	}

	switch Kind(kind) {
	case KindConstant:
		var p float64
		if err := binary.Read(r, byteOrder, &p); err != nil {
			return nil, structural(err, "constant probability")
		}
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, errors.NewStructuralError("base.Decode", "constant probability %v outside [0, 1]", p)
		}
		return NewConstant(p), nil

	case KindLogistic:
		var header struct {
			Bias float64
			Dims int32
			NNZ  int32
		}
		if err := binary.Read(r, byteOrder, &header); err != nil {
			return nil, structural(err, "logistic header")
		}
		if header.Dims < 0 || header.NNZ < 0 || header.NNZ > header.Dims {
			return nil, errors.NewStructuralError("base.Decode", "invalid sizes dims=%d nnz=%d", header.Dims, header.NNZ)
		}

		weights := make(sparse.Row, 0, min(int(header.NNZ), maxPrealloc))
		buf := make([]byte, 12)
		prev := -1
		for i := 0; i < int(header.NNZ); i++ {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, structural(err, "weights")
			}
			idx := int(int32(byteOrder.Uint32(buf[0:4])))
			if idx <= prev || idx >= int(header.Dims) {
				return nil, errors.NewStructuralError("base.Decode", "weight index %d out of order or range (dims %d)", idx, header.Dims)
			}
			weights = append(weights, sparse.Feature{Index: idx, Value: math.Float64frombits(byteOrder.Uint64(buf[4:12]))})
			prev = idx
		}
		return &Classifier{
			kind:      KindLogistic,
			bias:      header.Bias,
			dims:      int(header.Dims),
			sparse:    weights,
			converged: true,
		}, nil

	default:
		return nil, errors.NewStructuralError("base.Decode", "unknown classifier kind %d", kind)
	}
}

func structural(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.NewStructuralError("base.Decode", "truncated input reading %s", what)
	}
	return errors.Wrapf(err, "failed to read %s", what)
}
