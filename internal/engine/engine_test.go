package engine

import (
	"math"
	"testing"

	"github.com/cogkernel/tensorlogic/internal/atomspace"
	"github.com/cogkernel/tensorlogic/internal/truth"
)

func testEngine(t *testing.T, capacity int) *Engine {
	t.Helper()
	e, err := NewSeeded(capacity, 1)
	if err != nil {
		t.Fatalf("NewSeeded(%d): %v", capacity, err)
	}
	return e
}

func TestNewInvalidCapacity(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("New(0): expected error")
	}
}

func TestAddRuleAssignsIDs(t *testing.T) {
	e := testEngine(t, 10)
	p, _ := e.Space().CreateAtom(0, "premise", nil)
	c, _ := e.Space().CreateAtom(0, "conclusion", nil)

	r1, err := NewRule("first", []*atomspace.Atom{p}, c)
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}
	r2, _ := NewRule("second", []*atomspace.Atom{p}, c)

	if err := e.AddRule(r1); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := e.AddRule(r2); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if r1.ID != 1 || r2.ID != 2 {
		t.Errorf("rule ids = %d, %d, want 1, 2", r1.ID, r2.ID)
	}
	if err := e.AddRule(nil); err == nil {
		t.Error("AddRule(nil): expected error")
	}
}

func TestNewRuleValidation(t *testing.T) {
	s, _ := atomspace.New(20)
	p, _ := s.CreateAtom(0, "p", nil)
	c, _ := s.CreateAtom(0, "c", nil)

	if _, err := NewRule("", []*atomspace.Atom{p}, c); err == nil {
		t.Error("empty name: expected error")
	}
	if _, err := NewRule("r", nil, c); err == nil {
		t.Error("no premises: expected error")
	}
	if _, err := NewRule("r", []*atomspace.Atom{p}, nil); err == nil {
		t.Error("nil conclusion: expected error")
	}

	many := make([]*atomspace.Atom, MaxPremises+1)
	for i := range many {
		many[i] = p
	}
	if _, err := NewRule("r", many, c); err == nil {
		t.Error("too many premises: expected error")
	}

	r, err := NewRule("r", []*atomspace.Atom{p, p}, c)
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}
	for _, w := range r.PremiseWeights {
		if math.Abs(w-0.5) > 1e-9 {
			t.Errorf("premise weight = %v, want 0.5", w)
		}
	}
}

func TestRuleApply(t *testing.T) {
	s, _ := atomspace.New(20)
	p, _ := s.CreateAtom(0, "premise", truth.New(0.8, 0.5))
	c, _ := s.CreateAtom(0, "conclusion", truth.New(0.5, 0.5))

	r, err := NewRule("modus", []*atomspace.Atom{p}, c)
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}

	got := r.Apply()
	if math.Abs(got-0.8) > 1e-9 {
		t.Errorf("Apply returned %v, want 0.8 (combined strength x unit weight)", got)
	}
	if math.Abs(c.TV.Strength-0.65) > 1e-9 {
		t.Errorf("conclusion strength = %v, want 0.65", c.TV.Strength)
	}
	wantConf := (0.5 + 0.5*0.8) / 2
	if math.Abs(c.TV.Confidence-wantConf) > 1e-9 {
		t.Errorf("conclusion confidence = %v, want %v", c.TV.Confidence, wantConf)
	}
}

func TestInferSingleRule(t *testing.T) {
	e := testEngine(t, 100)
	s := e.Space()

	p, _ := s.CreateAtom(0, "premise", truth.New(0.8, 0.5))
	c, _ := s.CreateAtom(0, "conclusion", truth.New(0.5, 0.5))
	r, _ := NewRule("modus", []*atomspace.Atom{p}, c)
	if err := e.AddRule(r); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	chain := e.Infer(p.Embedding, 1)
	if len(chain) != 1 {
		t.Fatalf("chain length = %d, want 1", len(chain))
	}
	step := chain[0]
	if step.Rule != r {
		t.Error("chain step references the wrong rule")
	}
	if step.Conclusion != c {
		t.Error("chain step references the wrong conclusion")
	}
	// Conclusion strength moves toward 0.8*weight, averaged with prior 0.5.
	if math.Abs(c.TV.Strength-0.65) > 1e-4 {
		t.Errorf("conclusion strength = %v, want 0.65", c.TV.Strength)
	}
	wantConfidence := 0.8 * r.Confidence
	if math.Abs(step.Confidence-wantConfidence) > 1e-9 {
		t.Errorf("step confidence = %v, want %v", step.Confidence, wantConfidence)
	}
	if len(step.Attention) != 2 {
		t.Errorf("attention snapshot length = %d, want 2 (whole working set)", len(step.Attention))
	}
	if got := e.Chain(); len(got) != 1 {
		t.Errorf("Chain() length = %d, want 1", len(got))
	}
}

func TestInferNoRules(t *testing.T) {
	e := testEngine(t, 10)
	a, _ := e.Space().CreateAtom(0, "lonely", nil)

	if chain := e.Infer(a.Embedding, 5); len(chain) != 0 {
		t.Errorf("chain length = %d with no rules, want 0", len(chain))
	}
}

func TestInferEmptyQueryAndStore(t *testing.T) {
	e := testEngine(t, 10)
	if chain := e.Infer(nil, 5); chain != nil {
		t.Error("nil query should produce no chain")
	}

	q := make([]float64, truth.EmbedDim)
	if chain := e.Infer(q, 5); chain != nil {
		t.Error("empty store should produce no chain")
	}
}

func TestInferRebuildsChain(t *testing.T) {
	e := testEngine(t, 100)
	s := e.Space()
	p, _ := s.CreateAtom(0, "premise", truth.New(0.8, 0.5))
	c, _ := s.CreateAtom(0, "conclusion", truth.New(0.5, 0.5))
	r, _ := NewRule("modus", []*atomspace.Atom{p}, c)
	e.AddRule(r)

	e.Infer(p.Embedding, 1)
	// A second call with an unanswerable query discards the old chain.
	if chain := e.Infer(nil, 1); chain != nil {
		t.Error("expected empty chain")
	}
	if got := e.Chain(); got != nil {
		t.Errorf("old chain survived: %v", got)
	}
}

func TestTrainStep(t *testing.T) {
	e := testEngine(t, 100)
	s := e.Space()
	p, _ := s.CreateAtom(0, "premise", truth.New(0.8, 0.5))
	c, _ := s.CreateAtom(0, "conclusion", truth.New(0.5, 0.5))
	r, _ := NewRule("modus", []*atomspace.Atom{p}, c)
	e.AddRule(r)

	if err := e.TrainStep(p.Embedding, truth.New(0.2, 0.9)); err != nil {
		t.Fatalf("TrainStep: %v", err)
	}

	// Prediction overshoots the 0.2 target, so the loss gradient is
	// positive and the rule weight must come down.
	if r.Weight >= 1.0 {
		t.Errorf("rule weight = %v, want < 1.0", r.Weight)
	}
	if e.Gradients().Loss <= 0 {
		t.Errorf("loss = %v, want > 0", e.Gradients().Loss)
	}
	if s.TrainingSteps != 1 {
		t.Errorf("training steps = %d, want 1", s.TrainingSteps)
	}
	// One Adam step per projection matrix.
	if got := e.Gradients().Steps(); got != 4 {
		t.Errorf("adam steps = %d, want 4", got)
	}
}

func TestTrainStepValidation(t *testing.T) {
	e := testEngine(t, 10)
	if err := e.TrainStep(nil, truth.New(0.5, 0.5)); err == nil {
		t.Error("nil query: expected error")
	}
	q := make([]float64, truth.EmbedDim)
	if err := e.TrainStep(q, nil); err == nil {
		t.Error("nil target: expected error")
	}
	// No applicable rules is a valid no-op, not an error.
	if err := e.TrainStep(q, truth.New(0.5, 0.5)); err != nil {
		t.Errorf("empty-chain train step: %v", err)
	}
}

func TestGradientContextZeroPreservesMoments(t *testing.T) {
	g := NewGradientContext(4)
	g.Accumulate([]float64{1, 2, 3, 4})
	w := []float64{1, 1, 1, 1}
	g.ApplyAdam(w)
	if g.Steps() != 1 {
		t.Fatalf("steps = %d, want 1", g.Steps())
	}

	g.Zero()
	if g.Steps() != 1 {
		t.Errorf("Zero reset the step counter")
	}
	for i, v := range g.Grad {
		if v != 0 {
			t.Errorf("Grad[%d] = %v after Zero, want 0", i, v)
		}
	}
	if g.Loss != 0 {
		t.Errorf("Loss = %v after Zero, want 0", g.Loss)
	}

	// Moments persist: the next zero-gradient update still moves weights
	// along the decayed first moment.
	before := append([]float64(nil), w...)
	g.ApplyAdam(w)
	if g.Steps() != 2 {
		t.Errorf("steps = %d, want 2", g.Steps())
	}
	moved := false
	for i := range w {
		if w[i] != before[i] {
			moved = true
		}
	}
	if !moved {
		t.Error("persisted moments produced no update")
	}
}

func TestApplyAdamStepCounter(t *testing.T) {
	g := NewGradientContext(2)
	w := []float64{0.5, 0.5}
	g.ApplyAdam(w)
	g.ApplyAdam(w)
	if g.Steps() != 2 {
		t.Errorf("steps = %d after two applies, want 2", g.Steps())
	}
}

func TestApplyAdamDirection(t *testing.T) {
	g := NewGradientContext(1)
	g.Accumulate([]float64{1.0})
	w := []float64{0.5}
	g.ApplyAdam(w)
	if w[0] >= 0.5 {
		t.Errorf("weight = %v, want decreased for positive gradient", w[0])
	}
}

func TestAccumulateClamps(t *testing.T) {
	g := NewGradientContext(2)
	g.Accumulate([]float64{1, 2, 3, 4})
	if g.Grad[0] != 1 || g.Grad[1] != 2 {
		t.Errorf("Grad = %v, want [1 2]", g.Grad)
	}
}

func TestAttentionForward(t *testing.T) {
	e := testEngine(t, 50)
	s := e.Space()
	var atoms []*atomspace.Atom
	for _, name := range []string{"alpha", "beta", "gamma"} {
		a, err := s.CreateAtom(0, name, truth.New(0.6, 0.5))
		if err != nil {
			t.Fatalf("CreateAtom: %v", err)
		}
		atoms = append(atoms, a)
	}

	out, err := e.AttentionForward(atoms)
	if err != nil {
		t.Fatalf("AttentionForward: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("output rows = %d, want 3", len(out))
	}
	for i, row := range out {
		if len(row) != truth.EmbedDim {
			t.Fatalf("row %d length = %d, want %d", i, len(row), truth.EmbedDim)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("row %d col %d is not finite: %v", i, j, v)
			}
		}
	}
}

func TestAttentionForwardBatchLimit(t *testing.T) {
	e := testEngine(t, 100)
	s := e.Space()
	atoms := make([]*atomspace.Atom, MaxBatch+1)
	for i := range atoms {
		a, _ := s.CreateAtom(0, "bulk", nil)
		atoms[i] = a
	}
	if _, err := e.AttentionForward(atoms); err == nil {
		t.Errorf("batch of %d: expected error", MaxBatch+1)
	}
}

func TestAttentionBackward(t *testing.T) {
	e := testEngine(t, 10)
	a, _ := e.Space().CreateAtom(0, "atom", truth.New(0.5, 0.5))

	grad := make([][]float64, 1)
	grad[0] = make([]float64, truth.EmbedDim)
	grad[0][0] = 1.0

	e.AttentionBackward(grad, []*atomspace.Atom{a})
	if math.Abs(a.TV.Gradient[0]-0.1) > 1e-9 {
		t.Errorf("tv gradient = %v, want 0.1 (damped)", a.TV.Gradient[0])
	}
	if a.TV.Gradient[1] != 0 {
		t.Errorf("tv gradient[1] = %v, want 0", a.TV.Gradient[1])
	}
}
