package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/cogkernel/tensorlogic/internal/atomspace"
	"github.com/cogkernel/tensorlogic/internal/engine"
	"github.com/cogkernel/tensorlogic/internal/truth"
)

// encodeFloats converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeFloats(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeFloats converts a binary BLOB back to []float64.
func decodeFloats(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// encodeIDs packs atom ids into a little-endian BLOB.
func encodeIDs(ids []uint64) []byte {
	buf := make([]byte, len(ids)*8)
	for i, id := range ids {
		binary.LittleEndian.PutUint64(buf[i*8:], id)
	}
	return buf
}

// decodeIDs unpacks a BLOB of atom ids.
func decodeIDs(buf []byte) []uint64 {
	n := len(buf) / 8
	ids := make([]uint64, n)
	for i := 0; i < n; i++ {
		ids[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return ids
}

// HasSnapshot reports whether the database holds a saved atomspace.
func (db *DB) HasSnapshot() (bool, error) {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM atoms").Scan(&count); err != nil {
		return false, fmt.Errorf("count atoms: %w", err)
	}
	return count > 0, nil
}

// SaveSnapshot replaces the stored snapshot with the engine's current
// atomspace, rules, and learning state, in one transaction.
func (db *DB) SaveSnapshot(e *engine.Engine) error {
	if e == nil {
		return fmt.Errorf("save snapshot: nil engine")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"atoms", "rules", "meta"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	sp := e.Space()
	meta := map[string]string{
		"capacity":       strconv.Itoa(sp.Cap()),
		"training_steps": strconv.Itoa(sp.TrainingSteps),
		"learning_rate":  strconv.FormatFloat(sp.LearningRate, 'g', -1, 64),
		"momentum":       strconv.FormatFloat(sp.Momentum, 'g', -1, 64),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	for _, a := range sp.Atoms() {
		_, err := tx.Exec(`
			INSERT INTO atoms (id, type, name, strength, confidence, evidence,
			                   tv_embedding, embedding, attention, outgoing)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.Type, a.Name, a.TV.Strength, a.TV.Confidence, a.TV.Evidence,
			encodeFloats(a.TV.Embedding), encodeFloats(a.Embedding),
			a.AttentionWeight, encodeIDs(a.Outgoing))
		if err != nil {
			return fmt.Errorf("save atom %d (%s): %w", a.ID, a.Name, err)
		}
	}

	for _, r := range e.Rules() {
		premiseIDs := make([]uint64, len(r.Premises))
		for i, p := range r.Premises {
			premiseIDs[i] = p.ID
		}
		_, err := tx.Exec(`
			INSERT INTO rules (id, name, weight, confidence, premise_ids,
			                   premise_weights, conclusion_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.ID, r.Name, r.Weight, r.Confidence,
			encodeIDs(premiseIDs), encodeFloats(r.PremiseWeights), r.Conclusion.ID)
		if err != nil {
			return fmt.Errorf("save rule %d (%s): %w", r.ID, r.Name, err)
		}
	}

	return tx.Commit()
}

// LoadInto restores the stored snapshot into a freshly created engine. The
// engine's atomspace is cleared and must have capacity for the saved atoms;
// the engine must not yet hold rules. Atom ids are dense from 1, so
// recreation in id order reproduces them exactly.
func (db *DB) LoadInto(e *engine.Engine) error {
	if e == nil {
		return fmt.Errorf("load snapshot: nil engine")
	}
	if len(e.Rules()) > 0 {
		return fmt.Errorf("load snapshot: engine already holds rules")
	}

	sp := e.Space()
	sp.Clear()

	if err := db.loadMeta(sp); err != nil {
		return err
	}
	if err := db.loadAtoms(sp); err != nil {
		return err
	}
	return db.loadRules(e, sp)
}

func (db *DB) loadMeta(sp *atomspace.Space) error {
	rows, err := db.Query("SELECT key, value FROM meta")
	if err != nil {
		return fmt.Errorf("load meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("scan meta: %w", err)
		}
		switch k {
		case "capacity":
			saved, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse capacity %q: %w", v, err)
			}
			if saved > sp.Cap() {
				return fmt.Errorf("snapshot capacity %d exceeds engine capacity %d", saved, sp.Cap())
			}
		case "training_steps":
			if n, err := strconv.Atoi(v); err == nil {
				sp.TrainingSteps = n
			}
		case "learning_rate":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				sp.LearningRate = f
			}
		case "momentum":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				sp.Momentum = f
			}
		}
	}
	return rows.Err()
}

func (db *DB) loadAtoms(sp *atomspace.Space) error {
	rows, err := db.Query(`
		SELECT id, type, name, strength, confidence, evidence,
		       tv_embedding, embedding, attention, outgoing
		FROM atoms ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("load atoms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id                         uint64
			typ                        int
			name                       string
			strength, confidence, evid float64
			tvBlob, embBlob, outBlob   []byte
			attention                  float64
		)
		if err := rows.Scan(&id, &typ, &name, &strength, &confidence, &evid,
			&tvBlob, &embBlob, &attention, &outBlob); err != nil {
			return fmt.Errorf("scan atom: %w", err)
		}

		tv := truth.New(strength, confidence)
		tv.Evidence = evid
		copy(tv.Embedding, decodeFloats(tvBlob))

		atom, err := sp.CreateAtom(typ, name, tv)
		if err != nil {
			return fmt.Errorf("restore atom %s: %w", name, err)
		}
		if atom.ID != id {
			return fmt.Errorf("restore atom %s: id %d, snapshot has %d", name, atom.ID, id)
		}
		if err := sp.UpdateEmbedding(atom.ID, decodeFloats(embBlob)); err != nil {
			return fmt.Errorf("restore atom %s: %w", name, err)
		}
		atom.AttentionWeight = attention
		atom.Outgoing = decodeIDs(outBlob)
	}
	return rows.Err()
}

func (db *DB) loadRules(e *engine.Engine, sp *atomspace.Space) error {
	rows, err := db.Query(`
		SELECT id, name, weight, confidence, premise_ids, premise_weights, conclusion_id
		FROM rules ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id                 uint64
			name               string
			weight, confidence float64
			premiseBlob        []byte
			weightsBlob        []byte
			conclusionID       uint64
		)
		if err := rows.Scan(&id, &name, &weight, &confidence,
			&premiseBlob, &weightsBlob, &conclusionID); err != nil {
			return fmt.Errorf("scan rule: %w", err)
		}

		premiseIDs := decodeIDs(premiseBlob)
		premises := make([]*atomspace.Atom, len(premiseIDs))
		for i, pid := range premiseIDs {
			if premises[i] = sp.FindByID(pid); premises[i] == nil {
				return fmt.Errorf("restore rule %s: premise atom %d missing", name, pid)
			}
		}
		conclusion := sp.FindByID(conclusionID)
		if conclusion == nil {
			return fmt.Errorf("restore rule %s: conclusion atom %d missing", name, conclusionID)
		}

		rule, err := engine.NewRule(name, premises, conclusion)
		if err != nil {
			return fmt.Errorf("restore rule %s: %w", name, err)
		}
		rule.Weight = weight
		rule.Confidence = confidence
		copy(rule.PremiseWeights, decodeFloats(weightsBlob))

		if err := e.AddRule(rule); err != nil {
			return fmt.Errorf("restore rule %s: %w", name, err)
		}
	}
	return rows.Err()
}
