package execution

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"nodelink/internal/blocks"
	"nodelink/internal/models"
)

func newVariantBlock(t *testing.T, reg *blocks.Registry, typ blocks.Type, cfg models.BlockConfig) *blocks.Block {
	t.Helper()
	b, err := reg.New(typ, "id-"+strings.ToLower(string(typ)), string(typ))
	if err != nil {
		t.Fatalf("New(%s): %v", typ, err)
	}
	if err := b.Configure(cfg); err != nil {
		t.Fatalf("Configure(%s): %v", typ, err)
	}
	return b
}

func TestApplyLogic(t *testing.T) {
	tests := []struct {
		op      string
		a, b    any
		want    any
		wantErr bool
	}{
		{OpAdd, 2, 3.5, 5.5, false},
		{OpAdd, "2", 3, float64(5), false},
		{OpAdd, "Hello ", "World", "Hello World", false},
		{OpSubtract, 10, 4, float64(6), false},
		{OpMultiply, 6, 7, float64(42), false},
		{OpDivide, 9, 3, float64(3), false},
		{OpDivide, 10, 0, nil, true},
		{OpSubtract, "x", 1, nil, true},
		{OpEquals, "1", 1, true, false},
		{OpEquals, "a", "b", false, false},
		{OpNotEquals, "a", "b", true, false},
		{OpGreaterThan, 5, 3, true, false},
		{OpLessThan, "apple", "banana", true, false},
		{OpGreaterThan, "apple", 3, nil, true},
		{OpAnd, true, "", false, false},
		{OpOr, 0, "yes", true, false},
	}

	for _, tt := range tests {
		got, err := applyLogic(tt.op, tt.a, tt.b)
		if tt.wantErr {
			var blockErr *BlockExecutionError
			if !errors.As(err, &blockErr) {
				t.Errorf("%s(%v, %v): err = %v, want BlockExecutionError", tt.op, tt.a, tt.b, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s(%v, %v): unexpected error %v", tt.op, tt.a, tt.b, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s(%v, %v) = %#v, want %#v", tt.op, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLogicBlock_Signals(t *testing.T) {
	reg := newTestRegistry()
	b := newVariantBlock(t, reg, blocks.TypeLogic, models.BlockConfig{Operation: models.StringPtr(OpGreaterThan)})
	_ = b.SetInput("val_a", 3)
	_ = b.SetInput("val_b", 5)
	if err := b.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v, _ := b.Output("if_true"); v != false {
		t.Errorf("if_true = %v", v)
	}
	if v, _ := b.Output("if_false"); v != true {
		t.Errorf("if_false = %v", v)
	}

	if err := b.Configure(models.BlockConfig{Operation: models.StringPtr("modulo")}); err == nil {
		t.Error("unknown operation should be rejected")
	}
}

func TestTransformBlock(t *testing.T) {
	reg := newTestRegistry()

	t.Run("to_string", func(t *testing.T) {
		b := newVariantBlock(t, reg, blocks.TypeTransform, models.BlockConfig{TransformationType: models.StringPtr(TransformToString)})
		_ = b.SetInput("input_data", map[string]any{"a": 1.0})
		if err := b.Execute(context.Background()); err != nil {
			t.Fatal(err)
		}
		if v, _ := b.Output("output_data"); v != `{"a":1}` {
			t.Errorf("output_data = %v", v)
		}
	})

	t.Run("to_json", func(t *testing.T) {
		b := newVariantBlock(t, reg, blocks.TypeTransform, models.BlockConfig{TransformationType: models.StringPtr(TransformToJSON)})
		_ = b.SetInput("input_data", `{"ok": true}`)
		if err := b.Execute(context.Background()); err != nil {
			t.Fatal(err)
		}
		if v, _ := b.Output("output_data"); !reflect.DeepEqual(v, map[string]any{"ok": true}) {
			t.Errorf("output_data = %#v", v)
		}

		_ = b.SetInput("input_data", `{not json`)
		if err := b.Execute(context.Background()); err == nil {
			t.Error("invalid JSON should fail the block")
		}
	})

	t.Run("params_to_json", func(t *testing.T) {
		b := newVariantBlock(t, reg, blocks.TypeTransform, models.BlockConfig{
			TransformationType: models.StringPtr(TransformParamsToJSON),
			Fields:             models.StringPtr("name, age"),
		})
		if !b.HasInput("name") || !b.HasInput("age") || !b.HasOutput("json") {
			t.Fatalf("unexpected ports: in=%v out=%v", b.InputKeys(), b.OutputKeys())
		}
		_ = b.SetInput("name", "Ada")
		_ = b.SetInput("age", 36)
		if err := b.Execute(context.Background()); err != nil {
			t.Fatal(err)
		}
		if v, _ := b.Output("json"); !reflect.DeepEqual(v, map[string]any{"name": "Ada", "age": 36}) {
			t.Errorf("json = %#v", v)
		}
	})

	t.Run("json_to_params", func(t *testing.T) {
		rec := newCountingRecorder()
		b, _ := NewVariantRegistry(Deps{Recorder: rec}).New(blocks.TypeTransform, "t1", "T")
		if err := b.Configure(models.BlockConfig{
			TransformationType: models.StringPtr(TransformJSONToParams),
			Fields:             models.StringPtr("city"),
		}); err != nil {
			t.Fatal(err)
		}
		_ = b.SetInput("json", `{"city": "Oslo", "extra": 1}`)
		if err := b.Execute(context.Background()); err != nil {
			t.Fatal(err)
		}
		if v, _ := b.Output("city"); v != "Oslo" {
			t.Errorf("city = %v", v)
		}

		_ = b.SetInput("json", 42)
		if err := b.Execute(context.Background()); err != nil {
			t.Fatal(err)
		}
		if v, _ := b.Output("city"); v != nil {
			t.Errorf("city = %v, want nil for a non-object input", v)
		}
		if rec.fallbacks[FallbackInvalidJSON] != 1 {
			t.Errorf("fallbacks = %v", rec.fallbacks)
		}
	})

	t.Run("reconfigure keeps core trigger", func(t *testing.T) {
		b := newVariantBlock(t, reg, blocks.TypeTransform, models.BlockConfig{TransformationType: models.StringPtr(TransformGetKey)})
		if !b.HasInput("json_obj") || !b.HasInput(blocks.TriggerKey) {
			t.Fatalf("inputs = %v", b.InputKeys())
		}
		if err := b.Configure(models.BlockConfig{TransformationType: models.StringPtr(TransformToString)}); err != nil {
			t.Fatal(err)
		}
		if b.HasInput("json_obj") || !b.HasInput("input_data") || !b.HasInput(blocks.TriggerKey) {
			t.Errorf("inputs after reconfigure = %v", b.InputKeys())
		}
		if err := b.Configure(models.BlockConfig{TransformationType: models.StringPtr("rot13")}); err == nil {
			t.Error("unknown transformation should be rejected")
		}
	})
}

func TestStringBuilderBlock(t *testing.T) {
	rec := newCountingRecorder()
	reg := NewVariantRegistry(Deps{Recorder: rec})
	b := newVariantBlock(t, reg, blocks.TypeStringBuilder, models.BlockConfig{Template: models.StringPtr(`{"greeting": "{{word}}", "to": "{{name}}"}`)})

	if !b.HasInput("word") || !b.HasInput("name") {
		t.Fatalf("placeholders did not become inputs: %v", b.InputKeys())
	}
	_ = b.SetInput("word", "hi")
	_ = b.SetInput("name", nil)
	if err := b.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := b.Output("result"); v != `{"greeting": "hi", "to": ""}` {
		t.Errorf("result = %v", v)
	}
	if v, _ := b.Output("resultJson"); !reflect.DeepEqual(v, map[string]any{"greeting": "hi", "to": ""}) {
		t.Errorf("resultJson = %#v", v)
	}
	if rec.fallbacks[FallbackMissingTemplate] != 1 {
		t.Errorf("fallbacks = %v", rec.fallbacks)
	}

	// placeholders that leave the template keep their ports
	if err := b.Configure(models.BlockConfig{Template: models.StringPtr("{{word}} only")}); err != nil {
		t.Fatal(err)
	}
	if !b.HasInput("name") {
		t.Error("stale placeholder input should survive a template change")
	}
	if err := b.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := b.Output("result"); v != "hi only" {
		t.Errorf("result = %v", v)
	}
	if v, _ := b.Output("resultJson"); v != nil {
		t.Errorf("resultJson = %v, want nil for non-JSON text", v)
	}
}

func TestStringBuilderBlock_DoesNotExpandInputText(t *testing.T) {
	b := newVariantBlock(t, newTestRegistry(), blocks.TypeStringBuilder,
		models.BlockConfig{Template: models.StringPtr("Say: {{msg}} / {{Start.result}} / {{Missing.x}}")})
	_ = b.SetInput("msg", "{{Start.result}}")

	vars := NewContext()
	vars.ByName["Start"] = map[string]any{"result": true}
	ctx := withScope(context.Background(), &blockScope{
		projectID: "proj",
		vars:      vars,
		emit:      func(models.ExecutionEvent) {},
	})
	if err := b.Execute(ctx); err != nil {
		t.Fatal(err)
	}
	want := "Say: {{Start.result}} / true / {{Missing.x}}"
	if v, _ := b.Output("result"); v != want {
		t.Errorf("result = %v, want %q", v, want)
	}
}

func TestWaitBlock_Duration(t *testing.T) {
	tests := []struct {
		delay float64
		max   time.Duration
		want  time.Duration
	}{
		{0.25, time.Minute, 250 * time.Millisecond},
		{-3, time.Minute, 0},
		{600, time.Minute, time.Minute},
	}
	for _, tt := range tests {
		w := &WaitBlock{delay: tt.delay, max: tt.max}
		if got := w.duration(); got != tt.want {
			t.Errorf("duration(%v, max %v) = %v, want %v", tt.delay, tt.max, got, tt.want)
		}
	}
}

func TestLoopBlock_LastElement(t *testing.T) {
	b := newVariantBlock(t, newTestRegistry(), blocks.TypeLoop, models.BlockConfig{})
	_ = b.SetInput("list", []any{"a", "b", "c"})
	if err := b.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := b.Output("item"); v != "c" {
		t.Errorf("item = %v", v)
	}
	if v, _ := b.Output("index"); v != 2 {
		t.Errorf("index = %v", v)
	}
	for _, sig := range []string{"loop_body_signal", "done_signal"} {
		if v, _ := b.Output(sig); v != true {
			t.Errorf("%s = %v", sig, v)
		}
	}
}

func TestReactBlock_SyncAndMirror(t *testing.T) {
	b := newVariantBlock(t, newTestRegistry(), blocks.TypeReact, models.BlockConfig{})
	syncer := b.Variant().(blocks.PortSyncer)
	if err := syncer.SyncPorts(b, []string{"name"}, []string{"name", "typed"}); err != nil {
		t.Fatal(err)
	}
	if b.HasInput("display_data") || b.HasOutput("user_input") {
		t.Errorf("default ports should be removed: in=%v out=%v", b.InputKeys(), b.OutputKeys())
	}
	b.SetOutput("typed", "from the UI")
	_ = b.SetInput("name", "Ada")
	if err := b.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := b.Output("name"); v != "Ada" {
		t.Errorf("name = %v", v)
	}
	if v, _ := b.Output("typed"); v != "from the UI" {
		t.Errorf("typed = %v", v)
	}
}

func TestGetKey(t *testing.T) {
	if v := getKey(map[string]any{"a": 1}, "a"); v != 1 {
		t.Errorf("got %v", v)
	}
	if v := getKey(`{"a": "x"}`, "a"); v != "x" {
		t.Errorf("got %v", v)
	}
	if v := getKey([]any{1}, "a"); v != nil {
		t.Errorf("got %v for a list", v)
	}
	if v := getKey(map[string]any{"a": 1}, 7); v != nil {
		t.Errorf("got %v for a non-string key", v)
	}
}

func TestAPIKeyBlock(t *testing.T) {
	t.Setenv("READ_TEST_SERVICE", "s3cret")
	b := newVariantBlock(t, newTestRegistry(), blocks.TypeAPIKey, models.BlockConfig{SelectedKey: models.StringPtr("TEST_SERVICE")})

	if err := b.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := b.Output("key"); v != "s3cret" {
		t.Errorf("key = %v", v)
	}

	doc := b.Document()
	found := false
	for _, k := range doc.AvailableKeys {
		if k == "TEST_SERVICE" {
			found = true
		}
	}
	if !found {
		t.Errorf("available keys %v should list TEST_SERVICE", doc.AvailableKeys)
	}

	_ = b.Configure(models.BlockConfig{SelectedKey: models.StringPtr("NOT_SET_ANYWHERE")})
	if err := b.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := b.Output("key"); v != nil {
		t.Errorf("key = %v, want nil for an unset variable", v)
	}
}

func TestDialogueBlock_NoInputRequired(t *testing.T) {
	b := newVariantBlock(t, newTestRegistry(), blocks.TypeDialogue, models.BlockConfig{Message: models.StringPtr("Proceed?")})
	if err := b.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := b.Output("response"); v != "Proceed?" {
		t.Errorf("response = %v", v)
	}

	// the input follows the default while the user has not edited it
	_ = b.Configure(models.BlockConfig{Message: models.StringPtr("Continue?")})
	if v, _ := b.Input("message"); v != "Continue?" {
		t.Errorf("message = %v", v)
	}
	_ = b.SetInput("message", "Custom")
	_ = b.Configure(models.BlockConfig{Message: models.StringPtr("Again?")})
	if v, _ := b.Input("message"); v != "Custom" {
		t.Errorf("edited message was overwritten: %v", v)
	}
}

func TestDialogueBlock_MockResponse(t *testing.T) {
	b := newVariantBlock(t, newTestRegistry(), blocks.TypeDialogue, models.BlockConfig{Message: models.StringPtr("Name?")})
	_ = b.SetInput("require_input", true)
	_ = b.SetInput("mock_response", "Ada")
	if err := b.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := b.Output("response"); v != "Ada" {
		t.Errorf("response = %v", v)
	}
}

func TestDialogueBlock_WaitsForResponse(t *testing.T) {
	hub := NewDialogueHub(5*time.Second, nil)
	reg := NewVariantRegistry(Deps{Dialogue: hub})
	b := newVariantBlock(t, reg, blocks.TypeDialogue, models.BlockConfig{Message: models.StringPtr("**Name?**")})
	_ = b.SetInput("require_input", true)

	emitted := make(chan models.ExecutionEvent, 1)
	ctx := withScope(context.Background(), &blockScope{
		projectID: "proj",
		emit:      func(ev models.ExecutionEvent) { emitted <- ev },
	})

	errc := make(chan error, 1)
	go func() { errc <- b.Execute(ctx) }()

	ev := <-emitted
	if ev.Type != models.EventDialogue || ev.Message != "**Name?**" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !strings.Contains(ev.MessageHTML, "<strong>Name?</strong>") {
		t.Errorf("message_html = %q", ev.MessageHTML)
	}

	if !hub.Pending("proj", b.ID) {
		t.Fatal("dialogue should be pending once its event is out")
	}
	if err := hub.Respond("proj", b.ID, "Grace"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v, _ := b.Output("response"); v != "Grace" {
		t.Errorf("response = %v", v)
	}
	if err := hub.Respond("proj", b.ID, "late"); !errors.Is(err, ErrNoPendingDialogue) {
		t.Errorf("late response err = %v", err)
	}
}

func TestDialogueBlock_RespondFromEventHandler(t *testing.T) {
	hub := NewDialogueHub(2*time.Second, nil)
	reg := NewVariantRegistry(Deps{Dialogue: hub})

	for i := 0; i < 50; i++ {
		b := newVariantBlock(t, reg, blocks.TypeDialogue, models.BlockConfig{Message: models.StringPtr("Name?")})
		_ = b.SetInput("require_input", true)

		events := make(chan models.ExecutionEvent)
		ctx := withScope(context.Background(), &blockScope{
			projectID: "proj",
			emit:      func(ev models.ExecutionEvent) { events <- ev },
		})

		respondErr := make(chan error, 1)
		go func() {
			for ev := range events {
				if ev.Type == models.EventDialogue {
					respondErr <- hub.Respond("proj", ev.BlockID, "Ada")
				}
			}
		}()

		err := b.Execute(ctx)
		close(events)
		if rerr := <-respondErr; rerr != nil {
			t.Fatalf("iteration %d: Respond: %v", i, rerr)
		}
		if err != nil {
			t.Fatalf("iteration %d: Execute: %v", i, err)
		}
		if v, _ := b.Output("response"); v != "Ada" {
			t.Fatalf("iteration %d: response = %v", i, v)
		}
		if hub.Pending("proj", b.ID) {
			t.Fatalf("iteration %d: dialogue still registered", i)
		}
	}
}

func TestDialogueBlock_Timeout(t *testing.T) {
	hub := NewDialogueHub(20*time.Millisecond, nil)
	reg := NewVariantRegistry(Deps{Dialogue: hub})
	b := newVariantBlock(t, reg, blocks.TypeDialogue, models.BlockConfig{Message: models.StringPtr("?")})
	_ = b.SetInput("require_input", true)

	err := b.Execute(context.Background())
	var blockErr *BlockExecutionError
	if !errors.As(err, &blockErr) || !errors.Is(err, ErrDialogueTimeout) {
		t.Fatalf("err = %v, want BlockExecutionError wrapping ErrDialogueTimeout", err)
	}
}
