package engine

import "math"

// Adam hyperparameters, fixed by contract.
const (
	adamLearningRate = 0.001
	adamBeta1        = 0.9
	adamBeta2        = 0.999
	adamEpsilon      = 1e-8
)

// GradientContext accumulates gradients into a flat shared buffer and
// applies Adam updates to arbitrary weight buffers. One context lives per
// engine and is reused across training steps; moments and the step counter
// persist across Zero calls, as Adam requires.
type GradientContext struct {
	Grad []float64
	Loss float64

	m     []float64
	v     []float64
	steps int
}

// NewGradientContext creates a context with the given buffer size.
func NewGradientContext(size int) *GradientContext {
	return &GradientContext{
		Grad: make([]float64, size),
		m:    make([]float64, size),
		v:    make([]float64, size),
	}
}

// Zero clears the gradient buffer and loss. Moments and the step counter are
// deliberately left intact.
func (g *GradientContext) Zero() {
	for i := range g.Grad {
		g.Grad[i] = 0
	}
	g.Loss = 0
}

// Accumulate adds external gradients into the shared buffer, clamped to the
// smaller of the two lengths.
func (g *GradientContext) Accumulate(grads []float64) {
	n := len(grads)
	if n > len(g.Grad) {
		n = len(g.Grad)
	}
	for i := 0; i < n; i++ {
		g.Grad[i] += grads[i]
	}
}

// Steps returns how many Adam updates have been applied.
func (g *GradientContext) Steps() int { return g.steps }

// ApplyAdam performs one bias-corrected Adam update on weights using the
// shared gradient buffer, over the smaller of the two lengths.
func (g *GradientContext) ApplyAdam(weights []float64) {
	g.steps++

	bias1 := 1 - math.Pow(adamBeta1, float64(g.steps))
	bias2 := 1 - math.Pow(adamBeta2, float64(g.steps))

	n := len(weights)
	if n > len(g.Grad) {
		n = len(g.Grad)
	}
	for i := 0; i < n; i++ {
		grad := g.Grad[i]
		g.m[i] = adamBeta1*g.m[i] + (1-adamBeta1)*grad
		g.v[i] = adamBeta2*g.v[i] + (1-adamBeta2)*grad*grad

		mHat := g.m[i] / bias1
		vHat := g.v[i] / bias2
		weights[i] -= adamLearningRate * mHat / (math.Sqrt(vHat) + adamEpsilon)
	}
}
