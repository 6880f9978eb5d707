package services

import (
	"context"
	"testing"
	"time"

	"nodelink/internal/blocks"
	"nodelink/internal/models"
	"nodelink/internal/project"
)

func TestAutosaveScheduler_StopFlushes(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Create(ctx, "autosave")
	if err != nil {
		t.Fatal(err)
	}
	err = f.svc.WithProject(ctx, doc.ID, func(p *project.Project) error {
		_, err := p.AddBlock(blocks.TypeStart, "Start", 0, 0, models.BlockConfig{})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	autosave, err := NewAutosaveScheduler(f.svc, time.Hour)
	if err != nil {
		t.Fatalf("NewAutosaveScheduler: %v", err)
	}
	if err := autosave.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := autosave.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	stored, err := f.store.Load(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Blocks) != 1 {
		t.Errorf("stored blocks = %d, want 1", len(stored.Blocks))
	}
}
