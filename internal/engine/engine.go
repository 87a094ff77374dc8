// Package engine implements the tensor logic inference engine: weighted
// rules over an atomspace, a learned attention layer, and an Adam-based
// training loop with hand-derived gradients. The engine is single-threaded;
// callers serialize access to a shared instance.
package engine

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/cogkernel/tensorlogic/internal/atomspace"
	"github.com/cogkernel/tensorlogic/internal/truth"
)

const (
	// relevantK is the working-set size retrieved per inference call.
	relevantK = 10
	// premiseMatchThreshold is the minimum similarity between a premise
	// and some retrieved atom for the rule to be applicable.
	premiseMatchThreshold = 0.5
	// satisfiedThreshold ends inference when the query matches a fired
	// rule's conclusion this closely.
	satisfiedThreshold = 0.9
	// trainInferSteps bounds the forward pass inside a training step.
	trainInferSteps = 5
)

// Step records one rule application in an inference chain: the rule, the
// conclusion it produced, a confidence signal, and a snapshot of the
// attention distribution over the retrieved working set.
type Step struct {
	Rule       *Rule
	Conclusion *atomspace.Atom
	Confidence float64
	Attention  []float64
}

// Engine owns one atomspace, a rule list, the attention layer's projection
// matrices, and a gradient context shared across training steps.
type Engine struct {
	space *atomspace.Space
	rules []*Rule
	chain []Step

	attn       *Attention
	grad       *GradientContext
	nextRuleID uint64
}

// New creates an engine with a fresh atomspace of the given capacity.
func New(capacity int) (*Engine, error) {
	return NewSeeded(capacity, time.Now().UnixNano())
}

// NewSeeded is New with a deterministic weight initialization seed.
func NewSeeded(capacity int, seed int64) (*Engine, error) {
	space, err := atomspace.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	rng := rand.New(rand.NewSource(seed))
	return &Engine{
		space:      space,
		attn:       NewAttention(rng),
		grad:       NewGradientContext(truth.EmbedDim * HiddenDim * 4),
		nextRuleID: 1,
	}, nil
}

// Space returns the engine's knowledge store.
func (e *Engine) Space() *atomspace.Space { return e.space }

// Rules returns the current rule list in insertion order.
func (e *Engine) Rules() []*Rule {
	out := make([]*Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Gradients returns the engine's gradient context.
func (e *Engine) Gradients() *GradientContext { return e.grad }

// Attn returns the engine's attention layer.
func (e *Engine) Attn() *Attention { return e.attn }

// Chain returns the inference chain from the most recent Infer call.
func (e *Engine) Chain() []Step { return e.chain }

// AddRule registers a rule and assigns its id.
func (e *Engine) AddRule(r *Rule) error {
	if r == nil {
		return fmt.Errorf("engine: nil rule")
	}
	if len(e.rules) >= MaxRules {
		return fmt.Errorf("engine: rule limit %d reached", MaxRules)
	}
	r.ID = e.nextRuleID
	e.nextRuleID++
	e.rules = append(e.rules, r)
	return nil
}

// Infer runs the inference loop against a query embedding: attention is
// computed once over the whole store, the top-k atoms become the working
// set, and each step selects and fires the best-matching satisfied rule.
// The loop ends when no rule applies, the step bound is hit, or a fired
// conclusion matches the query closely enough. Returns the (possibly empty)
// inference chain, which replaces any previous chain.
func (e *Engine) Infer(query []float64, maxSteps int) []Step {
	e.chain = nil
	if len(query) == 0 {
		return nil
	}

	e.space.ComputeAttention(query)
	relevant := e.space.TopK(relevantK)
	if len(relevant) == 0 {
		return nil
	}

	for step := 0; step < maxSteps; step++ {
		best := e.selectRule(relevant)
		if best == nil {
			break
		}

		resultStrength := best.Apply()

		snapshot := make([]float64, len(relevant))
		for i, a := range relevant {
			snapshot[i] = a.AttentionWeight
		}
		e.chain = append(e.chain, Step{
			Rule:       best,
			Conclusion: best.Conclusion,
			Confidence: resultStrength * best.Confidence,
			Attention:  snapshot,
		})

		if atomspace.Cosine(query, best.Conclusion.Embedding) > satisfiedThreshold {
			break
		}
	}
	return e.chain
}

// selectRule scans every rule for one whose premises all have a
// sufficiently similar atom in the working set, and returns the satisfied
// rule with the highest weighted similarity score.
func (e *Engine) selectRule(relevant []*atomspace.Atom) *Rule {
	var best *Rule
	var bestScore float64

	for _, rule := range e.rules {
		score := 0.0
		satisfied := true
		for i, premise := range rule.Premises {
			maxSim := 0.0
			for _, a := range relevant {
				if sim := e.space.Similarity(premise, a); sim > maxSim {
					maxSim = sim
				}
			}
			if maxSim < premiseMatchThreshold {
				satisfied = false
				break
			}
			score += maxSim * rule.PremiseWeights[i]
		}
		if satisfied && score > bestScore {
			bestScore = score
			best = rule
		}
	}
	return best
}

// TrainStep runs one bounded inference against the query, computes the
// squared-error loss between the final conclusion's strength and the target
// strength, and backpropagates through the rule weights and the four
// projection matrices.
func (e *Engine) TrainStep(query []float64, target *truth.Value) error {
	if len(query) == 0 {
		return fmt.Errorf("engine: train step: query required")
	}
	if target == nil {
		return fmt.Errorf("engine: train step: target required")
	}

	chain := e.Infer(query, trainInferSteps)
	if len(chain) == 0 {
		return nil
	}

	predicted := chain[len(chain)-1].Conclusion.TV.Strength
	e.backward(chain, predicted, target.Strength)
	return nil
}

// backward seeds the shared gradient buffer with the hand-derived loss
// gradients, updates every rule used in the chain, and applies one Adam
// step to each projection matrix. Gradients are approximate and scoped to
// rule weights and the four matrices; there is no autodiff graph.
func (e *Engine) backward(chain []Step, predicted, target float64) {
	e.grad.Zero()

	diff := predicted - target
	e.grad.Loss = diff * diff

	// d(loss)/d(pred); premise-weight slots follow from
	// pred = (old + weight * sum(w_i * s_i)) / 2.
	g0 := 2 * diff
	seed := make([]float64, 1+MaxPremises)
	for _, step := range chain {
		seed[0] = g0
		for i, p := range step.Rule.Premises {
			if p == nil {
				seed[1+i] = 0
				continue
			}
			seed[1+i] = g0 * 0.5 * step.Rule.Weight * p.TV.Strength
		}
		e.grad.Accumulate(seed[:1+len(step.Rule.Premises)])
	}

	for _, step := range chain {
		step.Rule.updateWeights(e.grad)
	}

	e.grad.ApplyAdam(e.attn.Query.Data)
	e.grad.ApplyAdam(e.attn.Key.Data)
	e.grad.ApplyAdam(e.attn.Value.Data)
	e.grad.ApplyAdam(e.attn.Output.Data)

	e.space.TrainingSteps++
}

// AttentionForward runs the batch attention transform over up to MaxBatch
// atoms and returns one output embedding per atom.
func (e *Engine) AttentionForward(atoms []*atomspace.Atom) ([][]float64, error) {
	if len(atoms) > MaxBatch {
		return nil, fmt.Errorf("engine: batch of %d exceeds maximum %d", len(atoms), MaxBatch)
	}
	return e.attn.Forward(atoms), nil
}

// AttentionBackward distributes output gradients onto the atoms' truth-value
// gradient buffers.
func (e *Engine) AttentionBackward(gradOut [][]float64, atoms []*atomspace.Atom) {
	e.attn.Backward(gradOut, atoms)
}
