// Package atomspace implements the bounded knowledge store: a hypergraph of
// atoms with dense embedding/relation matrices and attention-weighted
// retrieval. The store holds no locks; callers serialize access.
package atomspace

import (
	"errors"
	"fmt"
	"math"

	"github.com/cogkernel/tensorlogic/internal/truth"
)

// MaxAtoms is the contract ceiling on store capacity.
const MaxAtoms = 4096

// unifyDepthCap bounds structural unification so hyperedge cycles terminate.
const unifyDepthCap = 32

// unifyThreshold is the embedding-similarity floor for a structural match.
const unifyThreshold = 0.7

// ErrFull is returned by CreateAtom when the store is at capacity.
var ErrFull = errors.New("atomspace: capacity exhausted")

// Space is a fixed-capacity atom store. Atoms live in an id-indexed arena
// (ids are dense from 1), with dense per-atom embedding rows, a lazily
// populated pairwise relation matrix, and a per-atom attention score array.
type Space struct {
	arena    []*Atom
	capacity int
	nextID   uint64

	embeddings []float64 // capacity x EmbedDim, row id-1
	relation   []float64 // capacity x capacity
	attention  []float64 // capacity

	// Learning hyperparameters read by training.
	LearningRate  float64
	Momentum      float64
	TrainingSteps int
}

// New creates a store with the given capacity.
func New(capacity int) (*Space, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("atomspace: capacity must be positive, got %d", capacity)
	}
	if capacity > MaxAtoms {
		return nil, fmt.Errorf("atomspace: capacity %d exceeds maximum %d", capacity, MaxAtoms)
	}
	return &Space{
		arena:        make([]*Atom, 0, capacity),
		capacity:     capacity,
		nextID:       1,
		embeddings:   make([]float64, capacity*truth.EmbedDim),
		relation:     make([]float64, capacity*capacity),
		attention:    make([]float64, capacity),
		LearningRate: 0.001,
		Momentum:     0.9,
	}, nil
}

// Len is the number of atoms currently stored.
func (s *Space) Len() int { return len(s.arena) }

// Cap is the fixed capacity.
func (s *Space) Cap() int { return s.capacity }

// Atoms returns the stored atoms in id order. The slice is a copy; the atoms
// are shared.
func (s *Space) Atoms() []*Atom {
	out := make([]*Atom, len(s.arena))
	copy(out, s.arena)
	return out
}

// CreateAtom adds an atom with the given type, name, and optional truth
// value (nil gets the default 0.5/0.1). The atom embedding blends the name
// hash bytes 50/50 with the truth-value embedding. Duplicate names are
// permitted.
func (s *Space) CreateAtom(typ int, name string, tv *truth.Value) (*Atom, error) {
	if name == "" {
		return nil, fmt.Errorf("atomspace: atom name required")
	}
	if len(s.arena) >= s.capacity {
		return nil, ErrFull
	}

	if tv == nil {
		tv = truth.New(0.5, 0.1)
	} else {
		tv = tv.Clone()
	}

	atom := &Atom{
		ID:              s.nextID,
		Type:            typ,
		Name:            name,
		TV:              tv,
		Embedding:       make([]float64, truth.EmbedDim),
		AttentionWeight: 1 / float64(s.capacity),
	}
	s.nextID++

	h := hashName(name)
	for i := 0; i < truth.EmbedDim; i++ {
		hb := float64((h>>(i%32))&0xFF) / 255.0
		atom.Embedding[i] = tv.Embedding[i]*0.5 + hb*0.5
	}

	s.arena = append(s.arena, atom)
	s.mirrorEmbedding(atom)
	return atom, nil
}

// mirrorEmbedding copies an atom's embedding into its dense matrix row.
func (s *Space) mirrorEmbedding(a *Atom) {
	row := int(a.ID-1) * truth.EmbedDim
	copy(s.embeddings[row:row+truth.EmbedDim], a.Embedding)
}

// FindByName returns the first atom with the given name, or nil.
func (s *Space) FindByName(name string) *Atom {
	for _, a := range s.arena {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// FindByID returns the atom with the given id, or nil.
func (s *Space) FindByID(id uint64) *Atom {
	if id == 0 || id > uint64(len(s.arena)) {
		return nil
	}
	return s.arena[id-1]
}

// AddLink appends a directed hyperedge from atom to target and nudges the
// source embedding toward the running mean of its targets.
func (s *Space) AddLink(atomID, targetID uint64) error {
	atom := s.FindByID(atomID)
	target := s.FindByID(targetID)
	if atom == nil || target == nil {
		return fmt.Errorf("atomspace: add link %d->%d: atom not found", atomID, targetID)
	}

	oldArity := float64(atom.Arity())
	atom.Outgoing = append(atom.Outgoing, targetID)
	for i := range atom.Embedding {
		atom.Embedding[i] = (atom.Embedding[i]*oldArity + target.Embedding[i]) / (oldArity + 1)
	}
	s.mirrorEmbedding(atom)
	return nil
}

// UpdateEmbedding overwrites an atom's embedding in place.
func (s *Space) UpdateEmbedding(id uint64, embedding []float64) error {
	atom := s.FindByID(id)
	if atom == nil {
		return fmt.Errorf("atomspace: update embedding: atom %d not found", id)
	}
	if len(embedding) != truth.EmbedDim {
		return fmt.Errorf("atomspace: update embedding: dimension %d, want %d", len(embedding), truth.EmbedDim)
	}
	copy(atom.Embedding, embedding)
	s.mirrorEmbedding(atom)
	return nil
}

// Similarity is the cosine similarity of two atom embeddings; 0 when either
// atom is nil.
func (s *Space) Similarity(a, b *Atom) float64 {
	if a == nil || b == nil {
		return 0
	}
	return Cosine(a.Embedding, b.Embedding)
}

// Unify reports whether target structurally matches pattern: same type,
// embedding similarity above threshold, same arity, and every outgoing pair
// recursively unifies. This is approximate matching; no variable bindings
// are produced. Recursion is depth-capped so cyclic hyperedges terminate.
func (s *Space) Unify(pattern, target *Atom) bool {
	return s.unify(pattern, target, 0)
}

func (s *Space) unify(pattern, target *Atom, depth int) bool {
	if pattern == nil || target == nil || depth >= unifyDepthCap {
		return false
	}
	if pattern.Type != target.Type {
		return false
	}
	if s.Similarity(pattern, target) < unifyThreshold {
		return false
	}
	if pattern.Arity() != target.Arity() {
		return false
	}
	for i := range pattern.Outgoing {
		p := s.FindByID(pattern.Outgoing[i])
		t := s.FindByID(target.Outgoing[i])
		if !s.unify(p, t, depth+1) {
			return false
		}
	}
	return true
}

// UpdateEmbeddings recomputes the pairwise relation matrix from current atom
// embeddings. O(n^2); intended after a batch of insertions, not per atom.
func (s *Space) UpdateEmbeddings() {
	n := len(s.arena)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim := s.Similarity(s.arena[i], s.arena[j])
			s.relation[i*s.capacity+j] = sim
			s.relation[j*s.capacity+i] = sim
		}
	}
}

// Relation returns the cached pairwise similarity between two atoms by id,
// as last computed by UpdateEmbeddings.
func (s *Space) Relation(aID, bID uint64) float64 {
	if aID == 0 || bID == 0 || aID > uint64(len(s.arena)) || bID > uint64(len(s.arena)) {
		return 0
	}
	return s.relation[int(aID-1)*s.capacity+int(bID-1)]
}

// ComputeAttention scores every atom against the query embedding with scaled
// dot-product attention, softmax-normalizes across the store, and writes the
// normalized score back onto each atom's attention weight.
func (s *Space) ComputeAttention(query []float64) {
	n := len(s.arena)
	if n == 0 || len(query) == 0 {
		return
	}
	scale := math.Sqrt(truth.EmbedDim)
	for i, a := range s.arena {
		s.attention[i] = Dot(query, a.Embedding) / scale
	}
	Softmax(s.attention[:n])
	for i, a := range s.arena {
		a.AttentionWeight = s.attention[i]
	}
}

// TopK returns the k atoms with the highest attention weight, descending,
// with k clamped to the atom count.
func (s *Space) TopK(k int) []*Atom {
	if k <= 0 {
		return nil
	}
	n := len(s.arena)
	if k > n {
		k = n
	}

	selected := make([]bool, n)
	out := make([]*Atom, 0, k)
	for len(out) < k {
		best := -1
		bestWeight := math.Inf(-1)
		for i, a := range s.arena {
			if selected[i] {
				continue
			}
			if a.AttentionWeight > bestWeight {
				bestWeight = a.AttentionWeight
				best = i
			}
		}
		if best < 0 {
			break
		}
		selected[best] = true
		out = append(out, s.arena[best])
	}
	return out
}

// Clear releases every atom and resets counters and dense arrays. A cleared
// space is indistinguishable from a freshly created one.
func (s *Space) Clear() {
	s.arena = s.arena[:0]
	s.nextID = 1
	for i := range s.embeddings {
		s.embeddings[i] = 0
	}
	for i := range s.relation {
		s.relation[i] = 0
	}
	for i := range s.attention {
		s.attention[i] = 0
	}
}
