// Package preprocessing は疎な特徴行の正規化を提供します。
package preprocessing

import (
	"math"

	"github.com/YuminosukeSato/xclf/core/parallel"
	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// Norm は行ベクトルのノルムの種類
type Norm string

const (
	// L2 はユークリッドノルム
	L2 Norm = "l2"
	// L1 は絶対値の和
	L1 Norm = "l1"
	// Max は絶対値の最大値
	Max Norm = "max"
)

// parallelRows を超える行数の行列は並列に変換する
const parallelRows = 4096

// Normalizer は各行を指定されたノルムで1にスケーリングする。
// 状態を持たないので Fit は不要です。ゼロ行はそのまま残ります。
//
// 使用例:
//
//	n, err := preprocessing.NewNormalizer(preprocessing.L2)
//	n.Transform(features)
type Normalizer struct {
	Norm Norm
}

// NewNormalizer は新しいNormalizerを作成する
func NewNormalizer(norm Norm) (*Normalizer, error) {
	switch norm {
	case L2, L1, Max:
		return &Normalizer{Norm: norm}, nil
	}
	return nil, errors.NewValidationError("norm", "must be l2, l1 or max", norm)
}

// TransformRow は行をその場でスケーリングする
func (n *Normalizer) TransformRow(r sparse.Row) {
	var s float64
	switch n.Norm {
	case L1:
		for _, f := range r {
			s += math.Abs(f.Value)
		}
	case Max:
		for _, f := range r {
			s = math.Max(s, math.Abs(f.Value))
		}
	default:
		s = r.Norm()
	}
	if s == 0 {
		return
	}
	for i := range r {
		r[i].Value /= s
	}
}

// Transform は行列のすべての行をその場でスケーリングする
// 行数が多い場合は行ブロックごとに並列処理する
func (n *Normalizer) Transform(m *sparse.Matrix) {
	parallel.ParallelizeWithThreshold(m.Rows(), parallelRows, func(start, end int) {
		for i := start; i < end; i++ {
			n.TransformRow(m.Row(i))
		}
	})
}
