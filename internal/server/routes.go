package server

import (
	"encoding/json"
	"net/http"

	"github.com/cogkernel/tensorlogic/internal/atomspace"
	"github.com/cogkernel/tensorlogic/internal/engine"
	"github.com/cogkernel/tensorlogic/internal/truth"
)

func (s *Server) handleCreateAtom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type       int      `json:"type"`
		Name       string   `json:"name"`
		Strength   *float64 `json:"strength"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, `{"error":"name required"}`, http.StatusBadRequest)
		return
	}

	var tv *truth.Value
	if req.Strength != nil && req.Confidence != nil {
		tv = truth.New(*req.Strength, *req.Confidence)
	}

	s.mu.Lock()
	atom, err := s.engine.Space().CreateAtom(req.Type, req.Name, tv)
	s.mu.Unlock()
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"id":         atom.ID,
		"name":       atom.Name,
		"strength":   atom.TV.Strength,
		"confidence": atom.TV.Confidence,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.engine.Space().Clear()
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
}

func (s *Server) handleAddLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AtomID   uint64 `json:"atom_id"`
		TargetID uint64 `json:"target_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	err := s.engine.Space().AddLink(req.AtomID, req.TargetID)
	s.mu.Unlock()
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string   `json:"name"`
		Premises   []string `json:"premises"`
		Conclusion string   `json:"conclusion"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.Name == "" || len(req.Premises) == 0 || req.Conclusion == "" {
		http.Error(w, `{"error":"name, premises, and conclusion required"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.engine.Space()
	premises := make([]*atomspace.Atom, 0, len(req.Premises))
	for _, name := range req.Premises {
		a := sp.FindByName(name)
		if a == nil {
			http.Error(w, `{"error":"unknown premise atom: `+name+`"}`, http.StatusBadRequest)
			return
		}
		premises = append(premises, a)
	}
	conclusion := sp.FindByName(req.Conclusion)
	if conclusion == nil {
		http.Error(w, `{"error":"unknown conclusion atom: `+req.Conclusion+`"}`, http.StatusBadRequest)
		return
	}

	rule, err := engine.NewRule(req.Name, premises, conclusion)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}
	if err := s.engine.AddRule(rule); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"id":     rule.ID,
		"name":   rule.Name,
		"weight": rule.Weight,
	})
}

// resolveQuery turns an infer/train request into a query embedding: either
// the named atom's embedding or a raw vector of the right dimension.
// The caller must hold s.mu.
func (s *Server) resolveQuery(atom string, embedding []float64) ([]float64, string) {
	if atom != "" {
		a := s.engine.Space().FindByName(atom)
		if a == nil {
			return nil, "unknown atom: " + atom
		}
		return a.Embedding, ""
	}
	if len(embedding) != truth.EmbedDim {
		return nil, "embedding must have exactly 64 elements"
	}
	return embedding, ""
}

type stepJSON struct {
	Rule       string  `json:"rule"`
	Conclusion string  `json:"conclusion"`
	Strength   float64 `json:"strength"`
	Confidence float64 `json:"confidence"`
}

func chainJSON(chain []engine.Step) []stepJSON {
	out := make([]stepJSON, len(chain))
	for i, st := range chain {
		out[i] = stepJSON{
			Rule:       st.Rule.Name,
			Conclusion: st.Conclusion.Name,
			Strength:   st.Conclusion.TV.Strength,
			Confidence: st.Confidence,
		}
	}
	return out
}

func (s *Server) handleInfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Atom      string    `json:"atom"`
		Embedding []float64 `json:"embedding"`
		MaxSteps  int       `json:"max_steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.MaxSteps <= 0 {
		req.MaxSteps = 5
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query, msg := s.resolveQuery(req.Atom, req.Embedding)
	if msg != "" {
		http.Error(w, `{"error":"`+msg+`"}`, http.StatusBadRequest)
		return
	}

	chain := s.engine.Infer(query, req.MaxSteps)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"steps": len(chain),
		"chain": chainJSON(chain),
	})
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Atom      string    `json:"atom"`
		Embedding []float64 `json:"embedding"`
		Target    *float64  `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.Target == nil {
		http.Error(w, `{"error":"target required"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query, msg := s.resolveQuery(req.Atom, req.Embedding)
	if msg != "" {
		http.Error(w, `{"error":"`+msg+`"}`, http.StatusBadRequest)
		return
	}

	target := truth.New(*req.Target, 0.9)
	if err := s.engine.TrainStep(query, target); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"loss":           s.engine.Gradients().Loss,
		"steps":          len(s.engine.Chain()),
		"training_steps": s.engine.Space().TrainingSteps,
	})
}

func (s *Server) handleSnapshotSave(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "snapshot store not configured"})
		return
	}

	s.mu.Lock()
	err := s.db.SaveSnapshot(s.engine)
	s.mu.Unlock()
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "saved"})
}
