package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"nodelink/internal/blocks"
	"nodelink/internal/execution"
	"nodelink/internal/models"
	"nodelink/internal/project"
)

type serviceFixture struct {
	svc     *ProjectService
	store   *MemoryProjectStore
	metrics *Metrics
	tracker *execution.ExecutionTracker
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	hub := execution.NewDialogueHub(5*time.Second, metrics)
	registry := execution.NewVariantRegistry(execution.Deps{Dialogue: hub, Recorder: metrics})
	store := NewMemoryProjectStore()
	tracker := execution.NewExecutionTracker()
	svc := NewProjectService(ProjectServiceConfig{
		Store:    store,
		Registry: registry,
		Engine:   execution.NewEngine(metrics),
		Tracker:  tracker,
		Dialogue: hub,
		Metrics:  metrics,
	})
	return &serviceFixture{svc: svc, store: store, metrics: metrics, tracker: tracker}
}

// dialogueProject is START -> DIALOGUE (requires input)
func (f *serviceFixture) dialogueProject(t *testing.T) (string, string) {
	t.Helper()
	ctx := context.Background()
	doc, err := f.svc.Create(ctx, "dialogue")
	if err != nil {
		t.Fatal(err)
	}
	var dialogueID string
	err = f.svc.WithProject(ctx, doc.ID, func(p *project.Project) error {
		start, err := p.AddBlock(blocks.TypeStart, "Start", 0, 0, models.BlockConfig{})
		if err != nil {
			return err
		}
		d, err := p.AddBlock(blocks.TypeDialogue, "Ask", 0, 0, models.BlockConfig{Message: models.StringPtr("Name?")})
		if err != nil {
			return err
		}
		dialogueID = d.ID
		if err := d.SetInput("require_input", true); err != nil {
			return err
		}
		_, err = p.Connect(start.ID, "result", d.ID, blocks.TriggerKey, nil)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return doc.ID, dialogueID
}

type runOutcome struct {
	result *execution.RunResult
	err    error
}

// startRun launches Execute and waits for the dialogue event
func (f *serviceFixture) startRun(t *testing.T, ctx context.Context, id string) (<-chan runOutcome, chan models.ExecutionEvent) {
	t.Helper()
	events := make(chan models.ExecutionEvent, 64)
	done := make(chan runOutcome, 1)
	go func() {
		res, err := f.svc.Execute(ctx, id, execution.RunOptions{}, events)
		done <- runOutcome{res, err}
	}()

	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type != models.EventDialogue {
				continue
			}
			if !f.svc.Dialogue().Pending(id, ev.BlockID) {
				t.Fatal("dialogue event sent before the hub registration")
			}
			return done, events
		case out := <-done:
			t.Fatalf("run ended before the dialogue: %+v", out)
		case <-timeout:
			t.Fatal("no dialogue event")
		}
	}
}

func TestProjectService_CreateEditList(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc.Name != "Untitled Project" {
		t.Errorf("name = %s", doc.Name)
	}

	err = f.svc.WithProject(ctx, doc.ID, func(p *project.Project) error {
		_, err := p.AddBlock(blocks.TypeStart, "", 0, 0, models.BlockConfig{})
		return err
	})
	if err != nil {
		t.Fatalf("WithProject: %v", err)
	}

	list, err := f.svc.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %v, %v", list, err)
	}
	if list[0].BlockCount != 1 {
		t.Errorf("live session state should win over the stored summary: %+v", list[0])
	}

	stored, _ := f.store.Load(ctx, doc.ID)
	if len(stored.Blocks) != 0 {
		t.Error("edits must not be persisted before a save")
	}
	if n, err := f.svc.FlushDirty(ctx); n != 1 || err != nil {
		t.Fatalf("FlushDirty = %d, %v", n, err)
	}
	if n, _ := f.svc.FlushDirty(ctx); n != 0 {
		t.Errorf("second flush saved %d", n)
	}
	stored, _ = f.store.Load(ctx, doc.ID)
	if len(stored.Blocks) != 1 {
		t.Errorf("stored blocks = %d", len(stored.Blocks))
	}

	if err := f.svc.ReadProject(ctx, "missing", func(*project.Project) error { return nil }); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("err = %v, want ErrProjectNotFound", err)
	}
}

func TestProjectService_PartialEditMarksDirty(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Create(ctx, "partial")
	if err != nil {
		t.Fatal(err)
	}
	var blockID string
	err = f.svc.WithProject(ctx, doc.ID, func(p *project.Project) error {
		b, err := p.AddBlock(blocks.TypeTransform, "T", 0, 0, models.BlockConfig{})
		if err == nil {
			blockID = b.ID
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.FlushDirty(ctx); err != nil {
		t.Fatal(err)
	}

	// rejected before any change: nothing to save
	err = f.svc.WithProject(ctx, doc.ID, func(p *project.Project) error {
		_, err := p.UpdateBlock(blockID, models.BlockPatch{Inputs: map[string]any{"nope": 1}})
		return err
	})
	if !errors.Is(err, blocks.ErrPortNotFound) {
		t.Fatalf("err = %v", err)
	}
	if n, _ := f.svc.FlushDirty(ctx); n != 0 {
		t.Errorf("flushed %d after a rejected edit", n)
	}

	// config applied, inputs rejected: the applied part is saved
	err = f.svc.WithProject(ctx, doc.ID, func(p *project.Project) error {
		_, err := p.UpdateBlock(blockID, models.BlockPatch{
			Config: models.BlockConfig{TransformationType: models.StringPtr("params_to_json"), Fields: models.StringPtr("a")},
			Inputs: map[string]any{"nope": 1},
		})
		return err
	})
	if !errors.Is(err, blocks.ErrPortNotFound) {
		t.Fatalf("err = %v", err)
	}
	if n, _ := f.svc.FlushDirty(ctx); n != 1 {
		t.Errorf("flushed %d, want the partially applied edit saved", n)
	}
}

func TestProjectService_EvictionPersistsAndReloads(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	doc, _ := f.svc.Create(ctx, "evict")
	var blockID string
	_ = f.svc.WithProject(ctx, doc.ID, func(p *project.Project) error {
		b, err := p.AddBlock(blocks.TypeLogic, "Sum", 1, 2, models.BlockConfig{})
		blockID = b.ID
		return err
	})

	f.svc.sessions.Delete(doc.ID)

	err := f.svc.ReadProject(ctx, doc.ID, func(p *project.Project) error {
		b, err := p.Block(blockID)
		if err != nil {
			return err
		}
		if b.Name != "Sum" || b.X != 1 {
			t.Errorf("reloaded block = %s (%v)", b.Name, b.X)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
}

func TestProjectService_BusyWhileRunning(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	id, dialogueID := f.dialogueProject(t)

	done, _ := f.startRun(t, ctx, id)

	if !f.svc.IsRunning(id) {
		t.Error("project should be running")
	}
	if err := f.svc.WithProject(ctx, id, func(*project.Project) error { return nil }); !errors.Is(err, ErrProjectBusy) {
		t.Errorf("edit err = %v, want ErrProjectBusy", err)
	}
	if err := f.svc.ReadProject(ctx, id, func(*project.Project) error { return nil }); !errors.Is(err, ErrProjectBusy) {
		t.Errorf("read err = %v, want ErrProjectBusy", err)
	}
	if err := f.svc.Delete(ctx, id); !errors.Is(err, ErrProjectBusy) {
		t.Errorf("delete err = %v, want ErrProjectBusy", err)
	}
	if _, err := f.svc.Execute(ctx, id, execution.RunOptions{}, nil); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second run err = %v, want ErrRunInProgress", err)
	}
	if got := testutil.ToFloat64(f.metrics.DialogueWaits); got != 1 {
		t.Errorf("dialogue waits = %v", got)
	}

	if err := f.svc.RespondDialogue(id, dialogueID, "Ada"); err != nil {
		t.Fatalf("RespondDialogue: %v", err)
	}

	select {
	case out := <-done:
		if out.err != nil {
			t.Fatalf("Execute: %v", out.err)
		}
		if out.result.Status() != models.RunStatusCompleted {
			t.Errorf("status = %s", out.result.Status())
		}
		if got := out.result.BlockStates[dialogueID].Outputs["response"]; got != "Ada" {
			t.Errorf("response = %v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not finish")
	}

	if f.svc.IsRunning(id) {
		t.Error("project still marked running")
	}
	if err := f.svc.WithProject(ctx, id, func(*project.Project) error { return nil }); err != nil {
		t.Errorf("edit after run: %v", err)
	}
	runs, _ := f.svc.Runs(ctx, id, 10)
	if len(runs) != 1 || runs[0].Status != models.RunStatusCompleted {
		t.Errorf("runs = %+v", runs)
	}
	if got := testutil.ToFloat64(f.metrics.RunsTotal.WithLabelValues(models.RunStatusCompleted)); got != 1 {
		t.Errorf("completed runs = %v", got)
	}
	if got := testutil.ToFloat64(f.metrics.ActiveRuns); got != 0 {
		t.Errorf("active runs = %v", got)
	}
}

func TestProjectService_Cancel(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	id, _ := f.dialogueProject(t)

	if f.svc.Cancel(id) {
		t.Error("nothing to cancel yet")
	}
	done, events := f.startRun(t, ctx, id)
	if !f.svc.Cancel(id) {
		t.Fatal("Cancel should report a running project")
	}

	select {
	case out := <-done:
		if !errors.Is(out.err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", out.err)
		}
		if out.result == nil || !out.result.Cancelled {
			t.Errorf("result = %+v", out.result)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop")
	}

	var last models.ExecutionEvent
	for len(events) > 0 {
		last = <-events
	}
	if last.Type != models.EventComplete || !last.Cancelled {
		t.Errorf("last event = %+v", last)
	}
}

func TestProjectService_CancelAll(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	id, _ := f.dialogueProject(t)
	if _, err := f.svc.Create(ctx, "idle"); err != nil {
		t.Fatal(err)
	}

	done, _ := f.startRun(t, ctx, id)
	if n := f.svc.CancelAll(); n != 1 {
		t.Errorf("CancelAll = %d, want 1", n)
	}
	select {
	case out := <-done:
		if !errors.Is(out.err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", out.err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop")
	}
	if f.svc.CancelAll() != 0 {
		t.Error("no runs should remain")
	}
}

func TestProjectService_RejectsRunsWhileDraining(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	doc, _ := f.svc.Create(ctx, "drain")

	f.tracker.Drain(10 * time.Millisecond)
	if _, err := f.svc.Execute(ctx, doc.ID, execution.RunOptions{}, nil); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("err = %v, want ErrShuttingDown", err)
	}
}

func TestProjectService_NoStartBlocks(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	doc, _ := f.svc.Create(ctx, "empty")

	events := make(chan models.ExecutionEvent, 4)
	_, err := f.svc.Execute(ctx, doc.ID, execution.RunOptions{}, events)
	if !errors.Is(err, execution.ErrNoStartBlocks) {
		t.Fatalf("err = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("no events expected, got %d", len(events))
	}
	if got := testutil.ToFloat64(f.metrics.RunsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error runs = %v", got)
	}
}

func TestProjectService_ReplaceAndDelete(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	doc, _ := f.svc.Create(ctx, "before")

	replacement := models.ProjectDocument{
		ID:   "ignored",
		Name: "after",
		Blocks: []models.BlockDocument{
			{ID: "s", Name: "Start", BlockType: string(blocks.TypeStart)},
			{ID: "l", Name: "Logic", BlockType: string(blocks.TypeLogic)},
		},
		Connections: []models.ConnectionDocument{
			{SourceID: "s", SourceOutput: "result", TargetID: "l", TargetInput: blocks.TriggerKey},
		},
	}
	out, err := f.svc.Replace(ctx, doc.ID, replacement)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if out.ID != doc.ID || out.Name != "after" || len(out.Connections) != 1 {
		t.Errorf("replaced = %+v", out)
	}
	if !out.CreatedAt.Equal(doc.CreatedAt) {
		t.Errorf("created_at changed: %v vs %v", out.CreatedAt, doc.CreatedAt)
	}

	if err := f.svc.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.store.Load(ctx, doc.ID); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("store still has the project: %v", err)
	}
	if err := f.svc.Delete(ctx, doc.ID); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestProjectService_ConnectCountsReplacement(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	doc, _ := f.svc.Create(ctx, "rebind")

	var a, b, c string
	_ = f.svc.WithProject(ctx, doc.ID, func(p *project.Project) error {
		for _, id := range []*string{&a, &b, &c} {
			blk, err := p.AddBlock(blocks.TypeLogic, "", 0, 0, models.BlockConfig{})
			if err != nil {
				return err
			}
			*id = blk.ID
		}
		return nil
	})

	if _, err := f.svc.Connect(ctx, doc.ID, a, "result", c, "val_a"); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.Connect(ctx, doc.ID, b, "result", c, "val_a")
	if err != nil || res.Replaced == nil {
		t.Fatalf("Connect = %+v, %v", res, err)
	}
	if got := testutil.ToFloat64(f.metrics.ConnectorReplacements); got != 1 {
		t.Errorf("replacements = %v", got)
	}
	if _, err := f.svc.Connect(ctx, doc.ID, a, "nope", c, "val_a"); !errors.Is(err, blocks.ErrPortNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestBuildDemoProject(t *testing.T) {
	registry := execution.NewVariantRegistry(execution.Deps{})
	p, err := BuildDemoProject(registry)
	if err != nil {
		t.Fatalf("BuildDemoProject: %v", err)
	}
	if p.Len() != 5 || len(p.Connectors()) != 4 {
		t.Fatalf("demo has %d blocks and %d connectors", p.Len(), len(p.Connectors()))
	}
	if len(p.BlocksOfType(blocks.TypeStart)) != 1 || len(p.BlocksOfType(blocks.TypeReact)) != 2 {
		t.Error("unexpected block types")
	}

	api := p.BlocksOfType(blocks.TypeAPI)[0]
	conn := api.IncomingConnector("params")
	if conn == nil || conn.Transform == nil {
		t.Fatal("greeter -> params should carry a transform")
	}
	got, ok := conn.Transfer("Hello World").(map[string]any)
	if !ok || got["message"] != "Hello World" {
		t.Errorf("transfer = %#v", got)
	}
	if v, _ := api.Input("url"); v != DemoEchoURL {
		t.Errorf("url = %v", v)
	}
}
