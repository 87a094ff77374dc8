package atomspace

import (
	"github.com/cogkernel/tensorlogic/internal/truth"
)

// Atom is a typed, named knowledge unit. Its embedding starts as a blend of
// the name hash and the truth-value embedding, then drifts as links are added
// and rules fire. Outgoing holds atom ids resolved through the owning Space,
// forming directed hyperedges.
type Atom struct {
	ID              uint64
	Type            int
	Name            string
	TV              *truth.Value
	Embedding       []float64
	AttentionWeight float64
	Outgoing        []uint64
}

// Arity is the number of outgoing edges.
func (a *Atom) Arity() int {
	return len(a.Outgoing)
}

// hashName is the multiplicative DJB2 hash used to seed atom embeddings.
func hashName(name string) uint64 {
	h := uint64(5381)
	for _, c := range []byte(name) {
		h = (h << 5) + h + uint64(c)
	}
	return h
}
