package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"nodelink/internal/database"
	"nodelink/internal/models"
)

func newSQLiteStore(t *testing.T) *SQLProjectStore {
	t.Helper()
	db, err := database.New("sqlite://:memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return NewSQLProjectStore(db)
}

func sampleDocument(id, name string, updated time.Time) models.ProjectDocument {
	return models.ProjectDocument{
		ID:   id,
		Name: name,
		Blocks: []models.BlockDocument{{
			ID:        "b1",
			Name:      "Greeter",
			BlockType: "LOGIC",
			Inputs: []models.PortValue{
				{Key: "val_a", Value: "Hello "},
				{Key: "val_b", Value: map[string]any{"nested": []any{1.0, "two"}}},
			},
			HiddenInputs:  []string{"trigger"},
			HiddenOutputs: []string{},
			BlockConfig:   models.BlockConfig{Operation: models.StringPtr("add")},
		}},
		Connections: []models.ConnectionDocument{},
		CreatedAt:   updated.Add(-time.Hour),
		UpdatedAt:   updated,
	}
}

// testProjectStore checks the behaviour every ProjectStore shares
func testProjectStore(t *testing.T, store ProjectStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("Load missing: %v", err)
	}

	if err := store.Save(ctx, sampleDocument("p1", "older", now.Add(-time.Minute))); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, sampleDocument("p2", "newer", now)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// upsert
	renamed := sampleDocument("p1", "renamed", now.Add(-2*time.Minute))
	if err := store.Save(ctx, renamed); err != nil {
		t.Fatalf("Save again: %v", err)
	}

	doc, err := store.Load(ctx, "p1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Name != "renamed" || len(doc.Blocks) != 1 {
		t.Errorf("loaded = %+v", doc)
	}
	blk := doc.Blocks[0]
	if blk.Operation == nil || *blk.Operation != "add" {
		t.Error("variant config lost")
	}
	nested, ok := blk.Inputs[1].Value.(map[string]any)
	if !ok || len(nested["nested"].([]any)) != 2 {
		t.Errorf("nested input = %#v", blk.Inputs[1].Value)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "p2" || list[1].Name != "renamed" || list[1].BlockCount != 1 {
		t.Errorf("list = %+v", list)
	}

	for i, status := range []string{models.RunStatusCompleted, models.RunStatusPartialFailure} {
		run := models.RunRecord{
			ID:        "run-" + status,
			ProjectID: "p1",
			Status:    status,
			Order:     []string{"b1"},
			StartedAt: now.Add(time.Duration(i) * time.Second),
		}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	runs, err := store.ListRuns(ctx, "p1", 1)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != models.RunStatusPartialFailure {
		t.Errorf("runs = %+v", runs)
	}

	if err := store.Delete(ctx, "p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "p1"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("second Delete: %v", err)
	}
	if runs, _ := store.ListRuns(ctx, "p1", 0); len(runs) != 0 {
		t.Errorf("runs survived the project: %d", len(runs))
	}
}

func TestMemoryProjectStore(t *testing.T) {
	testProjectStore(t, NewMemoryProjectStore())
}

func TestSQLProjectStore_SQLite(t *testing.T) {
	store := newSQLiteStore(t)
	if store.Name() != database.DialectSQLite {
		t.Errorf("Name = %s", store.Name())
	}
	testProjectStore(t, store)
}

func TestMemoryProjectStore_CopiesDocuments(t *testing.T) {
	store := NewMemoryProjectStore()
	ctx := context.Background()
	doc := sampleDocument("p", "copy", time.Now())
	_ = store.Save(ctx, doc)

	doc.Blocks[0].Name = "mutated"
	loaded, _ := store.Load(ctx, "p")
	if loaded.Blocks[0].Name != "Greeter" {
		t.Error("store shares memory with the caller")
	}
}

func TestNormalizeBSON(t *testing.T) {
	in := map[string]any{"a": 1}
	if got := normalizeBSON(int32(3)); got != 3.0 {
		t.Errorf("int32 -> %v", got)
	}
	if got := normalizeBSON(in); got.(map[string]any)["a"] != 1 {
		t.Error("plain maps are left alone")
	}
}
