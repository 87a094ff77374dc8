package store

import (
	"math"
	"testing"

	"github.com/cogkernel/tensorlogic/internal/atomspace"
	"github.com/cogkernel/tensorlogic/internal/engine"
	"github.com/cogkernel/tensorlogic/internal/truth"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)
	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("schema version = %d, want %d", v, len(migrations))
	}
}

func TestEncodeDecodeFloats(t *testing.T) {
	original := []float64{1.0, -0.5, 0.333, math.Pi, 0.0}
	decoded := decodeFloats(encodeFloats(original))

	if len(decoded) != len(original) {
		t.Fatalf("length mismatch: %d vs %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("index %d: got %f, want %f", i, decoded[i], original[i])
		}
	}
}

func TestEncodeDecodeIDs(t *testing.T) {
	original := []uint64{1, 42, 4096, 0}
	decoded := decodeIDs(encodeIDs(original))
	if len(decoded) != len(original) {
		t.Fatalf("length mismatch: %d vs %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("index %d: got %d, want %d", i, decoded[i], original[i])
		}
	}
}

func buildEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.NewSeeded(64, 7)
	if err != nil {
		t.Fatalf("NewSeeded: %v", err)
	}
	sp := e.Space()

	human, err := sp.CreateAtom(0, "human", truth.New(0.9, 0.8))
	if err != nil {
		t.Fatalf("CreateAtom: %v", err)
	}
	mortal, _ := sp.CreateAtom(0, "mortal", truth.New(0.7, 0.6))
	link, _ := sp.CreateAtom(1, "implies", nil)
	if err := sp.AddLink(link.ID, human.ID); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if err := sp.AddLink(link.ID, mortal.ID); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	sp.TrainingSteps = 12

	rule, err := engine.NewRule("mortality", []*atomspace.Atom{human}, mortal)
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}
	rule.Weight = 1.3
	if err := e.AddRule(rule); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	return e
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := testDB(t)

	has, err := db.HasSnapshot()
	if err != nil {
		t.Fatalf("HasSnapshot: %v", err)
	}
	if has {
		t.Fatal("fresh database reports a snapshot")
	}

	src := buildEngine(t)
	if err := db.SaveSnapshot(src); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	has, _ = db.HasSnapshot()
	if !has {
		t.Fatal("HasSnapshot false after save")
	}

	dst, err := engine.NewSeeded(64, 99)
	if err != nil {
		t.Fatalf("NewSeeded: %v", err)
	}
	if err := db.LoadInto(dst); err != nil {
		t.Fatalf("LoadInto: %v", err)
	}

	sp := dst.Space()
	if sp.Len() != 3 {
		t.Fatalf("restored atom count = %d, want 3", sp.Len())
	}
	if sp.TrainingSteps != 12 {
		t.Errorf("training steps = %d, want 12", sp.TrainingSteps)
	}

	human := sp.FindByName("human")
	if human == nil {
		t.Fatal("restored space missing atom human")
	}
	if human.TV.Strength != 0.9 || human.TV.Confidence != 0.8 {
		t.Errorf("human tv = (%v,%v), want (0.9,0.8)", human.TV.Strength, human.TV.Confidence)
	}

	srcHuman := src.Space().FindByName("human")
	for i := range human.Embedding {
		if human.Embedding[i] != srcHuman.Embedding[i] {
			t.Fatalf("embedding[%d] = %v, want %v", i, human.Embedding[i], srcHuman.Embedding[i])
		}
	}

	link := sp.FindByName("implies")
	if link == nil || link.Arity() != 2 {
		t.Fatalf("restored link atom missing or wrong arity: %+v", link)
	}
	if link.Outgoing[0] != srcHuman.ID {
		t.Errorf("outgoing[0] = %d, want %d", link.Outgoing[0], srcHuman.ID)
	}

	rules := dst.Rules()
	if len(rules) != 1 {
		t.Fatalf("restored rule count = %d, want 1", len(rules))
	}
	r := rules[0]
	if r.Name != "mortality" {
		t.Errorf("rule name = %q", r.Name)
	}
	if r.Weight != 1.3 {
		t.Errorf("rule weight = %v, want 1.3", r.Weight)
	}
	if r.Conclusion.Name != "mortal" {
		t.Errorf("rule conclusion = %q, want mortal", r.Conclusion.Name)
	}
}

func TestSaveSnapshotReplaces(t *testing.T) {
	db := testDB(t)
	src := buildEngine(t)
	if err := db.SaveSnapshot(src); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	// A second save must replace, not append.
	if err := db.SaveSnapshot(src); err != nil {
		t.Fatalf("second SaveSnapshot: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM atoms").Scan(&count); err != nil {
		t.Fatalf("count atoms: %v", err)
	}
	if count != 3 {
		t.Errorf("atom rows = %d after re-save, want 3", count)
	}
}

func TestLoadIntoValidation(t *testing.T) {
	db := testDB(t)
	src := buildEngine(t)
	if err := db.SaveSnapshot(src); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	if err := db.LoadInto(nil); err == nil {
		t.Error("LoadInto(nil): expected error")
	}

	// Engine with existing rules is rejected.
	busy := buildEngine(t)
	if err := db.LoadInto(busy); err == nil {
		t.Error("LoadInto on engine with rules: expected error")
	}

	// Too-small target capacity is rejected.
	small, _ := engine.NewSeeded(2, 1)
	if err := db.LoadInto(small); err == nil {
		t.Error("LoadInto with insufficient capacity: expected error")
	}
}

func TestSaveSnapshotNilEngine(t *testing.T) {
	db := testDB(t)
	if err := db.SaveSnapshot(nil); err == nil {
		t.Error("SaveSnapshot(nil): expected error")
	}
}
