package engine

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/cogkernel/tensorlogic/internal/atomspace"
	"github.com/cogkernel/tensorlogic/internal/truth"
)

// HiddenDim is the projection dimension of the attention layer.
const HiddenDim = 128

// attentionGradScale damps the output gradient distributed onto atom truth
// values in the backward pass.
const attentionGradScale = 0.1

// Attention is a single scaled dot-product attention layer with learned
// query/key/value projections (EmbedDim x HiddenDim) and an output
// projection (HiddenDim x EmbedDim).
type Attention struct {
	Query  blas64.General
	Key    blas64.General
	Value  blas64.General
	Output blas64.General

	Temperature float64
}

// newWeightMatrix allocates a rows x cols matrix with Xavier initialization.
func newWeightMatrix(rng *rand.Rand, rows, cols int) blas64.General {
	data := make([]float64, rows*cols)
	scale := math.Sqrt(2 / float64(len(data)))
	for i := range data {
		data[i] = (rng.Float64() - 0.5) * 2 * scale
	}
	return blas64.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// NewAttention creates an attention layer with Xavier-initialized weights
// and unit temperature.
func NewAttention(rng *rand.Rand) *Attention {
	return &Attention{
		Query:       newWeightMatrix(rng, truth.EmbedDim, HiddenDim),
		Key:         newWeightMatrix(rng, truth.EmbedDim, HiddenDim),
		Value:       newWeightMatrix(rng, truth.EmbedDim, HiddenDim),
		Output:      newWeightMatrix(rng, HiddenDim, truth.EmbedDim),
		Temperature: 1,
	}
}

// project computes w^T x for every atom embedding, yielding per-atom hidden
// vectors.
func project(w blas64.General, atoms []*atomspace.Atom) []blas64.Vector {
	out := make([]blas64.Vector, len(atoms))
	for i, a := range atoms {
		y := blas64.Vector{N: w.Cols, Inc: 1, Data: make([]float64, w.Cols)}
		x := blas64.Vector{N: w.Rows, Inc: 1, Data: a.Embedding}
		blas64.Gemv(blas.Trans, 1, w, x, 0, y)
		out[i] = y
	}
	return out
}

// Forward runs batch attention over the atoms: each embedding is projected
// to Q/K/V, all-pairs scores are softmaxed per row, and the output embedding
// for atom i is the score-weighted sum of output-projected values. Returns
// one EmbedDim vector per atom.
func (at *Attention) Forward(atoms []*atomspace.Atom) [][]float64 {
	n := len(atoms)
	if n == 0 {
		return nil
	}

	queries := project(at.Query, atoms)
	keys := project(at.Key, atoms)
	values := project(at.Value, atoms)

	// Output-projected values, computed once per atom.
	projected := make([]blas64.Vector, n)
	for i := range values {
		y := blas64.Vector{N: truth.EmbedDim, Inc: 1, Data: make([]float64, truth.EmbedDim)}
		blas64.Gemv(blas.Trans, 1, at.Output, values[i], 0, y)
		projected[i] = y
	}

	scale := 1 / (math.Sqrt(HiddenDim) * at.Temperature)
	out := make([][]float64, n)
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			scores[j] = blas64.Dot(queries[i], keys[j]) * scale
		}
		atomspace.Softmax(scores)

		row := make([]float64, truth.EmbedDim)
		for k := 0; k < n; k++ {
			for j := 0; j < truth.EmbedDim; j++ {
				row[j] += scores[k] * projected[k].Data[j]
			}
		}
		out[i] = row
	}
	return out
}

// Backward distributes the output gradient onto each atom's truth-value
// gradient buffer, damped by a fixed factor. Gradients do not propagate
// through the projection matrices; those are trained via the rule-weight
// path instead.
func (at *Attention) Backward(gradOut [][]float64, atoms []*atomspace.Atom) {
	for i, a := range atoms {
		if i >= len(gradOut) || a == nil {
			continue
		}
		g := gradOut[i]
		for j := 0; j < truth.EmbedDim && j < len(g); j++ {
			a.TV.Gradient[j] += g[j] * attentionGradScale
		}
	}
}
