package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"nodelink/internal/blocks"
	"nodelink/internal/logging"
	"nodelink/internal/models"
	"nodelink/internal/project"
)

// Discovery strategies for the reachability pass
const (
	DiscoveryBFS = "bfs"
	DiscoveryDFS = "dfs"
)

// RunOptions selects where a run starts and how the graph is walked
type RunOptions struct {
	// StartBlockIDs overrides the START blocks of the project
	StartBlockIDs []string `json:"start_block_ids,omitempty"`
	// Discovery is "bfs" (default) or "dfs"
	Discovery string `json:"discovery,omitempty"`
}

// RunResult summarizes one graph run
type RunResult struct {
	RunID       string
	Order       []string
	Skipped     []string
	BlockStates map[string]*models.BlockRunState
	Failed      int
	Cancelled   bool
	StartedAt   time.Time
	Duration    time.Duration
}

// Status returns the run status used in persisted records
func (r *RunResult) Status() string {
	switch {
	case r.Cancelled:
		return models.RunStatusCancelled
	case r.Failed > 0:
		return models.RunStatusPartialFailure
	default:
		return models.RunStatusCompleted
	}
}

// Record converts the result into its persisted form
func (r *RunResult) Record(projectID string) models.RunRecord {
	return models.RunRecord{
		ID:          r.RunID,
		ProjectID:   projectID,
		Status:      r.Status(),
		Order:       r.Order,
		Skipped:     r.Skipped,
		BlockStates: r.BlockStates,
		Failed:      r.Failed,
		StartedAt:   r.StartedAt,
		CompletedAt: r.StartedAt.Add(r.Duration),
		DurationMs:  r.Duration.Milliseconds(),
	}
}

// Engine executes project graphs one block at a time in dependency order
type Engine struct {
	recorder         Recorder
	breakerThreshold int
}

// NewEngine creates an engine; a nil recorder disables measurements
func NewEngine(rec Recorder) *Engine {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Engine{recorder: rec, breakerThreshold: 5}
}

// Run executes the part of p reachable from the start set and streams events.
// Events are sent with a blocking send; the caller drains events until Run
// returns. The stream always ends with exactly one complete event once the
// start set is valid.
func (e *Engine) Run(ctx context.Context, p *project.Project, opts RunOptions, events chan<- models.ExecutionEvent) (*RunResult, error) {
	starts, err := selectStartBlocks(p, opts.StartBlockIDs)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:       uuid.New().String(),
		BlockStates: make(map[string]*models.BlockRunState),
		StartedAt:   time.Now(),
	}
	logger := logging.WithRun(result.RunID, p.ID)
	emit := func(ev models.ExecutionEvent) {
		if events != nil {
			events <- ev
		}
	}

	reachable := discover(p, starts, opts.Discovery)
	log.Printf("🚀 [ENGINE] Run %s: %d start blocks, %d reachable of %d", result.RunID, len(starts), len(reachable), p.Len())
	logger.Info("run started", "start_blocks", len(starts), "reachable", len(reachable))

	// in-degree counts one per connector whose source is also reachable
	inDegree := make(map[string]int, len(reachable))
	for _, b := range reachable {
		inDegree[b.ID] = 0
		result.BlockStates[b.ID] = &models.BlockRunState{Status: string(BlockStatusPending)}
	}
	for _, b := range reachable {
		for _, c := range b.Incoming() {
			if _, ok := inDegree[c.Source.ID]; ok {
				inDegree[b.ID]++
			}
		}
	}

	queue := make([]*blocks.Block, 0, len(reachable))
	for _, b := range reachable {
		if inDegree[b.ID] == 0 {
			queue = append(queue, b)
		}
	}

	vars := NewContext()
	breaker := NewCircuitBreaker(e.breakerThreshold)
	executed := make(map[string]bool, len(reachable))

	for len(queue) > 0 {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}
		b := queue[0]
		queue = queue[1:]
		executed[b.ID] = true
		result.Order = append(result.Order, b.ID)

		if !e.runBlock(ctx, p, b, result, vars, breaker, logger, emit) {
			result.Failed++
		}

		for _, c := range b.Outgoing() {
			if _, ok := inDegree[c.Target.ID]; !ok {
				continue
			}
			inDegree[c.Target.ID]--
			if inDegree[c.Target.ID] == 0 {
				queue = append(queue, c.Target)
			}
		}
	}
	if ctx.Err() != nil {
		result.Cancelled = true
	}

	for _, b := range reachable {
		if executed[b.ID] {
			continue
		}
		state := result.BlockStates[b.ID]
		state.Status = string(TransitionBlockStatus(BlockStatus(state.Status), BlockStatusSkipped))
		result.Skipped = append(result.Skipped, b.ID)
		e.recorder.RecordBlock(string(b.Type()), string(BlockStatusSkipped), 0)
	}
	if len(result.Skipped) > 0 && !result.Cancelled {
		log.Printf("⚠️ [ENGINE] Run %s: %d blocks never became ready (cycle): %v", result.RunID, len(result.Skipped), result.Skipped)
	}

	result.Duration = time.Since(result.StartedAt)
	emit(models.ExecutionEvent{Type: models.EventComplete, Cancelled: result.Cancelled})

	log.Printf("✅ [ENGINE] Run %s finished: status=%s executed=%d failed=%d skipped=%d in %v",
		result.RunID, result.Status(), len(result.Order), result.Failed, len(result.Skipped), result.Duration)
	logger.Info("run finished", "status", result.Status(), "failed", result.Failed, "skipped", len(result.Skipped))

	if result.Cancelled {
		return result, ctx.Err()
	}
	return result, nil
}

// runBlock executes one ready block and reports whether it succeeded
func (e *Engine) runBlock(
	ctx context.Context,
	p *project.Project,
	b *blocks.Block,
	result *RunResult,
	vars *Context,
	breaker *CircuitBreaker,
	runLogger *slog.Logger,
	emit func(models.ExecutionEvent),
) bool {
	state := result.BlockStates[b.ID]
	blockType := string(b.Type())
	logger := logging.WithBlock(runLogger, b.ID, b.Name, blockType)

	b.FetchInputs()

	// templated values on unconnected inputs are restored after the run so
	// the next run resolves them again
	raw := b.Inputs()
	templated := make(map[string]any)
	for key, v := range raw {
		if b.IncomingConnector(key) == nil && containsReference(v) {
			templated[key] = v
		}
	}
	for key, v := range raw {
		if resolved := vars.Resolve(v); !sameValue(resolved, v) {
			_ = b.SetInput(key, resolved)
		}
	}

	inputs := b.Inputs()
	state.Inputs = inputs
	state.Status = string(TransitionBlockStatus(BlockStatus(state.Status), BlockStatusRunning))
	started := time.Now()
	state.StartedAt = &started

	log.Printf("▶️ [ENGINE] Executing block '%s' (type: %s)", b.Name, blockType)
	emit(models.ExecutionEvent{
		Type:      models.EventStart,
		BlockID:   b.ID,
		Name:      b.Name,
		BlockType: blockType,
		Inputs:    inputs,
	})

	scope := &blockScope{
		projectID: p.ID,
		runID:     result.RunID,
		blockID:   b.ID,
		logger:    logger,
		emit:      emit,
		vars:      vars,
		breaker:   breaker,
		onRetry: func(attempt models.RetryAttempt) {
			state.Status = string(TransitionBlockStatus(BlockStatus(state.Status), BlockStatusRetrying))
			state.RetryCount++
			state.RetryHistory = append(state.RetryHistory, attempt)
			state.Status = string(TransitionBlockStatus(BlockStatus(state.Status), BlockStatusRunning))
		},
	}
	err := executeSafely(withScope(ctx, scope), b)

	completed := time.Now()
	state.CompletedAt = &completed
	state.Outputs = b.Outputs()
	duration := completed.Sub(started)

	vars.Record(b)
	for key, v := range templated {
		_ = b.SetInput(key, v)
	}

	if err != nil {
		var blockErr *BlockExecutionError
		if errors.As(err, &blockErr) {
			blockErr.BlockID, blockErr.BlockName = b.ID, b.Name
		}
		message := errorMessage(err)
		state.Status = string(TransitionBlockStatus(BlockStatus(state.Status), BlockStatusFailed))
		state.Error = message

		log.Printf("❌ [ENGINE] Block '%s' failed: %v", b.Name, err)
		logger.Error("block failed", "error", err, "duration_ms", duration.Milliseconds())
		emit(models.ExecutionEvent{
			Type:    models.EventError,
			BlockID: b.ID,
			Name:    b.Name,
			Error:   message,
		})
		e.recorder.RecordBlock(blockType, string(BlockStatusFailed), duration)
		return false
	}

	state.Status = string(TransitionBlockStatus(BlockStatus(state.Status), BlockStatusCompleted))
	log.Printf("✅ [ENGINE] Block '%s' completed in %v", b.Name, duration)
	logger.Info("block completed", "duration_ms", duration.Milliseconds())
	emit(models.ExecutionEvent{
		Type:      models.EventProgress,
		BlockID:   b.ID,
		Name:      b.Name,
		BlockType: blockType,
		Outputs:   state.Outputs,
		Inputs:    inputs,
	})
	e.recorder.RecordBlock(blockType, string(BlockStatusCompleted), duration)
	return true
}

// executeSafely runs the variant and turns a panic into a BlockExecutionError
func executeSafely(ctx context.Context, b *blocks.Block) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 [ENGINE] PANIC in block '%s' (%s): %v\n%s", b.Name, b.ID, r, debug.Stack())
			err = &BlockExecutionError{
				BlockID:   b.ID,
				BlockName: b.Name,
				Cause:     fmt.Errorf("internal panic: %v", r),
			}
		}
	}()
	return b.Execute(ctx)
}

// errorMessage is the text carried by an error event
func errorMessage(err error) string {
	var callErr *ExternalCallError
	if errors.As(err, &callErr) {
		return UserFriendlyError(callErr.ExecutionError)
	}
	return err.Error()
}

func selectStartBlocks(p *project.Project, ids []string) ([]*blocks.Block, error) {
	if len(ids) == 0 {
		starts := p.BlocksOfType(blocks.TypeStart)
		if len(starts) == 0 {
			return nil, ErrNoStartBlocks
		}
		return starts, nil
	}

	starts := make([]*blocks.Block, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		b, err := p.Block(id)
		if err != nil {
			return nil, &blocks.GraphDefinitionError{Op: "run", BlockID: id, Err: blocks.ErrBlockNotFound}
		}
		if !seen[id] {
			seen[id] = true
			starts = append(starts, b)
		}
	}
	return starts, nil
}

// discover returns the blocks reachable from starts in project insertion order
func discover(p *project.Project, starts []*blocks.Block, strategy string) []*blocks.Block {
	visited := make(map[string]bool)
	frontier := make([]*blocks.Block, 0, len(starts))
	for _, b := range starts {
		if !visited[b.ID] {
			visited[b.ID] = true
			frontier = append(frontier, b)
		}
	}

	for len(frontier) > 0 {
		var b *blocks.Block
		if strategy == DiscoveryDFS {
			b = frontier[len(frontier)-1]
			frontier = frontier[:len(frontier)-1]
		} else {
			b = frontier[0]
			frontier = frontier[1:]
		}
		for _, c := range b.Outgoing() {
			if !visited[c.Target.ID] {
				visited[c.Target.ID] = true
				frontier = append(frontier, c.Target)
			}
		}
	}

	reachable := make([]*blocks.Block, 0, len(visited))
	for _, b := range p.Blocks() {
		if visited[b.ID] {
			reachable = append(reachable, b)
		}
	}
	return reachable
}

func containsReference(v any) bool {
	switch x := v.(type) {
	case string:
		return HasReference(x)
	case map[string]any:
		for _, item := range x {
			if containsReference(item) {
				return true
			}
		}
	case []any:
		for _, item := range x {
			if containsReference(item) {
				return true
			}
		}
	}
	return false
}

// sameValue reports whether resolution left v untouched
func sameValue(resolved, v any) bool {
	if !containsReference(v) {
		return true
	}
	s, ok := v.(string)
	rs, rok := resolved.(string)
	return ok && rok && s == rs
}
