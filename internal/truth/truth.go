// Package truth implements the probabilistic truth-value algebra used by the
// tensor logic engine. A Value carries a (strength, confidence, evidence)
// triple in the style of probabilistic logic networks, extended with a dense
// embedding so every combinator has a distributed analog.
package truth

import (
	"fmt"
	"math"
)

// EmbedDim is the fixed embedding dimension for truth values and atoms.
const EmbedDim = 64

const evidenceEps = 1e-10

// Value is a probabilistic truth value with an embedding-space shadow.
// Strength is the degree of truth, Confidence the certainty in that degree,
// and Evidence a pseudo-count derived from confidence. Embedding and
// Gradient are always EmbedDim long.
type Value struct {
	Strength   float64
	Confidence float64
	Evidence   float64
	Embedding  []float64
	Gradient   []float64
}

// New creates a truth value from strength and confidence. Inputs outside
// [0,1] are accepted as-is; callers own range discipline. The embedding
// encodes strength and confidence as a phase-rotated vector.
func New(strength, confidence float64) *Value {
	v := &Value{
		Strength:   strength,
		Confidence: confidence,
		Evidence:   confidence / (1 - confidence + evidenceEps),
		Embedding:  make([]float64, EmbedDim),
		Gradient:   make([]float64, EmbedDim),
	}
	for i := 0; i < EmbedDim; i++ {
		angle := float64(i) * math.Pi / EmbedDim
		v.Embedding[i] = strength*math.Cos(angle) + confidence*math.Sin(angle)
	}
	return v
}

// Clone returns a deep copy of v.
func (v *Value) Clone() *Value {
	c := &Value{
		Strength:   v.Strength,
		Confidence: v.Confidence,
		Evidence:   v.Evidence,
		Embedding:  make([]float64, len(v.Embedding)),
		Gradient:   make([]float64, len(v.Gradient)),
	}
	copy(c.Embedding, v.Embedding)
	copy(c.Gradient, v.Gradient)
	return c
}

func blank() *Value {
	return &Value{
		Embedding: make([]float64, EmbedDim),
		Gradient:  make([]float64, EmbedDim),
	}
}

func checkPair(a, b *Value) error {
	if a == nil || b == nil {
		return fmt.Errorf("truth: nil operand")
	}
	return nil
}

// Merge combines two independent opinions with confidence-weighted averaging.
// The result's confidence exceeds either input when both agree, modelling
// evidence accumulation.
func Merge(a, b *Value) (*Value, error) {
	if err := checkPair(a, b); err != nil {
		return nil, err
	}
	w1, w2 := a.Confidence, b.Confidence
	total := w1 + w2 + evidenceEps

	r := blank()
	r.Strength = (w1*a.Strength + w2*b.Strength) / total
	r.Confidence = (w1 + w2) / (1 + w1 + w2)
	r.Evidence = a.Evidence + b.Evidence
	for i := range r.Embedding {
		r.Embedding[i] = (w1*a.Embedding[i] + w2*b.Embedding[i]) / total
	}
	return r, nil
}

// Revision merges two observations of the same proposition, weighting each
// by its share of the total evidence.
func Revision(a, b *Value) (*Value, error) {
	if err := checkPair(a, b); err != nil {
		return nil, err
	}
	k := a.Evidence + b.Evidence
	w1 := a.Evidence / k
	w2 := b.Evidence / k

	r := blank()
	r.Strength = w1*a.Strength + w2*b.Strength
	r.Evidence = k
	r.Confidence = k / (k + 1)
	for i := range r.Embedding {
		r.Embedding[i] = w1*a.Embedding[i] + w2*b.Embedding[i]
	}
	return r, nil
}

// Deduction chains two implications: (A->B), (B->C) => (A->C).
// Strength is the probabilistic AND; the embedding analog is the
// elementwise product.
func Deduction(a, b *Value) (*Value, error) {
	if err := checkPair(a, b); err != nil {
		return nil, err
	}
	s1, s2 := a.Strength, b.Strength

	r := blank()
	r.Strength = s1 * s2
	r.Confidence = a.Confidence * b.Confidence * (s1*s2 + (1-s1)*(1-s2))
	r.Evidence = math.Min(a.Evidence, b.Evidence)
	for i := range r.Embedding {
		r.Embedding[i] = a.Embedding[i] * b.Embedding[i]
	}
	return r, nil
}

// Induction generalizes: (A->B), (A->C) => (B->C).
func Induction(a, b *Value) (*Value, error) {
	if err := checkPair(a, b); err != nil {
		return nil, err
	}
	s1 := a.Strength

	r := blank()
	r.Strength = b.Strength
	r.Confidence = a.Confidence * b.Confidence * s1
	r.Evidence = math.Min(a.Evidence, b.Evidence) * s1
	for i := range r.Embedding {
		r.Embedding[i] = (a.Embedding[i] + b.Embedding[i]) * 0.5 * s1
	}
	return r, nil
}

// Abduction hypothesizes: (A->B), (C->B) => (A->C). The embedding analog
// scales a's embedding by the sigmoid similarity of the two embeddings.
func Abduction(a, b *Value) (*Value, error) {
	if err := checkPair(a, b); err != nil {
		return nil, err
	}
	s2 := b.Strength

	r := blank()
	r.Strength = a.Strength
	r.Confidence = a.Confidence * b.Confidence * s2
	r.Evidence = math.Min(a.Evidence, b.Evidence) * s2

	var dot float64
	for i := range a.Embedding {
		dot += a.Embedding[i] * b.Embedding[i]
	}
	sim := Sigmoid(dot)
	for i := range r.Embedding {
		r.Embedding[i] = a.Embedding[i] * sim
	}
	return r, nil
}

// Sigmoid is the logistic function with clamping for extreme inputs.
func Sigmoid(x float64) float64 {
	if x > 20 {
		return 1
	}
	if x < -20 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}
