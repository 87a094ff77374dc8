package engine

import (
	"fmt"
	"math"

	"github.com/cogkernel/tensorlogic/internal/atomspace"
	"github.com/cogkernel/tensorlogic/internal/truth"
)

// Contract limits for rules.
const (
	MaxRules    = 512
	MaxPremises = 16
	MaxBatch    = 32
)

// Weight-update constants: the rule weight stays in [0,2], premise weights
// are floored and renormalized to sum to 1.
const (
	ruleWeightStep    = 0.01
	premiseWeightStep = 0.001
	ruleWeightMax     = 2.0
	premiseWeightMin  = 0.01
)

// Rule is a weighted inference rule: premise atoms with learnable mixing
// weights and a conclusion atom. The hidden-state pair is reserved for
// recurrent extensions and is not read by the current algebra.
type Rule struct {
	ID         uint64
	Name       string
	Weight     float64
	Confidence float64

	Premises       []*atomspace.Atom
	Conclusion     *atomspace.Atom
	PremiseWeights []float64

	hidden   []float64
	gradient []float64
}

// NewRule creates a rule over the given premises and conclusion. Premise
// mixing weights start uniform. The id is assigned when the rule is added to
// an engine.
func NewRule(name string, premises []*atomspace.Atom, conclusion *atomspace.Atom) (*Rule, error) {
	if name == "" {
		return nil, fmt.Errorf("engine: rule name required")
	}
	if len(premises) == 0 {
		return nil, fmt.Errorf("engine: rule %q needs at least one premise", name)
	}
	if len(premises) > MaxPremises {
		return nil, fmt.Errorf("engine: rule %q has %d premises, max %d", name, len(premises), MaxPremises)
	}
	if conclusion == nil {
		return nil, fmt.Errorf("engine: rule %q needs a conclusion", name)
	}

	weights := make([]float64, len(premises))
	for i := range weights {
		weights[i] = 1 / float64(len(premises))
	}

	return &Rule{
		Name:           name,
		Weight:         1.0,
		Confidence:     0.8,
		Premises:       append([]*atomspace.Atom(nil), premises...),
		Conclusion:     conclusion,
		PremiseWeights: weights,
		hidden:         make([]float64, HiddenDim),
		gradient:       make([]float64, HiddenDim),
	}, nil
}

// Apply fires the rule: the weighted mix of premise strengths (scaled by the
// rule weight) is averaged into the conclusion's strength, the product of
// premise confidences (scaled by the rule confidence) into its confidence,
// and the conclusion embedding takes a 10% step toward the tanh of the
// weighted premise embedding mix. Returns the new pre-average strength,
// which the inference loop uses as its step confidence signal.
func (r *Rule) Apply() float64 {
	var combinedStrength float64
	combinedConfidence := 1.0
	for i, p := range r.Premises {
		if p == nil {
			continue
		}
		combinedStrength += r.PremiseWeights[i] * p.TV.Strength
		combinedConfidence *= p.TV.Confidence
	}

	newStrength := combinedStrength * r.Weight
	newConfidence := combinedConfidence * r.Confidence

	c := r.Conclusion
	c.TV.Strength = (c.TV.Strength + newStrength) / 2
	c.TV.Confidence = (c.TV.Confidence + newConfidence) / 2

	combined := make([]float64, truth.EmbedDim)
	for i, p := range r.Premises {
		if p == nil {
			continue
		}
		for j := range combined {
			combined[j] += r.PremiseWeights[i] * p.Embedding[j]
		}
	}
	for j := range combined {
		c.Embedding[j] = 0.9*c.Embedding[j] + 0.1*math.Tanh(combined[j])
	}

	return newStrength
}

// updateWeights nudges the rule weight from the first gradient-buffer slot
// and the premise weights from the following slots, then clamps and
// renormalizes.
func (r *Rule) updateWeights(ctx *GradientContext) {
	if len(ctx.Grad) == 0 {
		return
	}

	r.Weight -= ctx.Grad[0] * ruleWeightStep
	if r.Weight < 0 {
		r.Weight = 0
	}
	if r.Weight > ruleWeightMax {
		r.Weight = ruleWeightMax
	}

	for i := range r.PremiseWeights {
		if i+1 >= len(ctx.Grad) {
			break
		}
		r.PremiseWeights[i] -= ctx.Grad[i+1] * premiseWeightStep
		if r.PremiseWeights[i] < premiseWeightMin {
			r.PremiseWeights[i] = premiseWeightMin
		}
	}

	var sum float64
	for _, w := range r.PremiseWeights {
		sum += w
	}
	for i := range r.PremiseWeights {
		r.PremiseWeights[i] /= sum
	}
}
