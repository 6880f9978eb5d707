package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"nodelink/internal/blocks"
	"nodelink/internal/execution"
	"nodelink/internal/models"
	"nodelink/internal/project"
)

var (
	// ErrProjectBusy is returned for edits and reads while the project runs
	ErrProjectBusy = errors.New("project is running")
	// ErrRunInProgress is returned when a second run is requested for the same project
	ErrRunInProgress = errors.New("a run is already in progress for this project")
	// ErrShuttingDown is returned for new runs once the server drains
	ErrShuttingDown = errors.New("server is shutting down")
)

const saveTimeout = 10 * time.Second

// session is a live project held in memory between requests
type session struct {
	mu      sync.Mutex
	project *project.Project
	dirty   bool
	running bool
	deleted bool
	cancel  context.CancelFunc
}

// ProjectServiceConfig holds the collaborators of a ProjectService
type ProjectServiceConfig struct {
	Store      ProjectStore
	Registry   *blocks.Registry
	Engine     *execution.Engine
	Tracker    *execution.ExecutionTracker
	Dialogue   *execution.DialogueHub
	Redis      *RedisService // optional
	Metrics    *Metrics      // optional
	SessionTTL time.Duration
	RunLockTTL time.Duration
}

// ProjectService owns live project sessions. It serializes edits per project,
// keeps a project read-only while it runs and persists changes to the store.
type ProjectService struct {
	store      ProjectStore
	registry   *blocks.Registry
	engine     *execution.Engine
	tracker    *execution.ExecutionTracker
	dialogue   *execution.DialogueHub
	redis      *RedisService
	metrics    *Metrics
	runLockTTL time.Duration

	sessions *cache.Cache
	loadMu   sync.Mutex
}

// NewProjectService creates the service
func NewProjectService(cfg ProjectServiceConfig) *ProjectService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.RunLockTTL <= 0 {
		cfg.RunLockTTL = 15 * time.Minute
	}
	if cfg.Tracker == nil {
		cfg.Tracker = execution.NewExecutionTracker()
	}
	if cfg.Dialogue == nil {
		cfg.Dialogue = execution.NewDialogueHub(10*time.Minute, cfg.Metrics)
	}
	if cfg.Engine == nil {
		cfg.Engine = execution.NewEngine(cfg.Metrics)
	}

	s := &ProjectService{
		store:      cfg.Store,
		registry:   cfg.Registry,
		engine:     cfg.Engine,
		tracker:    cfg.Tracker,
		dialogue:   cfg.Dialogue,
		redis:      cfg.Redis,
		metrics:    cfg.Metrics,
		runLockTTL: cfg.RunLockTTL,
		sessions:   cache.New(cfg.SessionTTL, 10*time.Minute),
	}
	s.sessions.OnEvicted(s.onEvicted)
	return s
}

// onEvicted keeps running sessions alive and persists dirty ones
func (s *ProjectService) onEvicted(id string, v interface{}) {
	sess, ok := v.(*session)
	if !ok {
		return
	}
	sess.mu.Lock()
	if sess.deleted {
		sess.mu.Unlock()
		return
	}
	if sess.running {
		sess.mu.Unlock()
		s.sessions.Set(id, sess, cache.DefaultExpiration)
		return
	}
	var doc *models.ProjectDocument
	if sess.dirty {
		d := sess.project.Document()
		doc = &d
		sess.dirty = false
	}
	sess.mu.Unlock()

	if doc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := s.store.Save(ctx, *doc); err != nil {
			log.Printf("⚠️ [PROJECT] Failed to persist evicted project %s: %v", id, err)
			return
		}
	}
	log.Printf("🗑️  [PROJECT] Session %s evicted", id)
}

// Registry returns the variant registry
func (s *ProjectService) Registry() *blocks.Registry {
	return s.registry
}

// Dialogue returns the hub suspended Dialogue blocks wait on
func (s *ProjectService) Dialogue() *execution.DialogueHub {
	return s.dialogue
}

// Metrics returns the metrics sink, which may be nil
func (s *ProjectService) Metrics() *Metrics {
	return s.metrics
}

// StoreName names the persistence backend
func (s *ProjectService) StoreName() string {
	return s.store.Name()
}

// PingStore checks the persistence backend
func (s *ProjectService) PingStore(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingRedis checks Redis; it returns false when Redis is not configured
func (s *ProjectService) PingRedis(ctx context.Context) (bool, error) {
	if s.redis == nil {
		return false, nil
	}
	return true, s.redis.Ping(ctx)
}

// session returns the live session of a project, loading it from the store if needed
func (s *ProjectService) session(ctx context.Context, id string) (*session, error) {
	if v, ok := s.sessions.Get(id); ok {
		s.sessions.Set(id, v, cache.DefaultExpiration)
		return v.(*session), nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if v, ok := s.sessions.Get(id); ok {
		return v.(*session), nil
	}

	doc, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := project.FromDocument(doc, s.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild project %s: %w", id, err)
	}
	sess := &session{project: p}
	s.sessions.Set(id, sess, cache.DefaultExpiration)
	log.Printf("📂 [PROJECT] Loaded project %s (%d blocks) from %s", id, p.Len(), s.store.Name())
	return sess, nil
}

// adopt registers a new project as a live session and persists it
func (s *ProjectService) adopt(ctx context.Context, p *project.Project) (models.ProjectDocument, error) {
	doc := p.Document()
	if err := s.store.Save(ctx, doc); err != nil {
		return doc, err
	}
	s.sessions.Set(p.ID, &session{project: p}, cache.DefaultExpiration)
	return doc, nil
}

// Create creates and persists an empty project
func (s *ProjectService) Create(ctx context.Context, name string) (models.ProjectDocument, error) {
	if name == "" {
		name = "Untitled Project"
	}
	p := project.New("", name, s.registry)
	log.Printf("✨ [PROJECT] Created project %s (%s)", p.ID, name)
	return s.adopt(ctx, p)
}

// CreateDemo creates and persists the sample project
func (s *ProjectService) CreateDemo(ctx context.Context) (models.ProjectDocument, error) {
	p, err := BuildDemoProject(s.registry)
	if err != nil {
		return models.ProjectDocument{}, err
	}
	log.Printf("✨ [PROJECT] Created demo project %s", p.ID)
	return s.adopt(ctx, p)
}

// Replace swaps a project's graph for the given document and persists it
func (s *ProjectService) Replace(ctx context.Context, id string, doc models.ProjectDocument) (models.ProjectDocument, error) {
	doc.ID = id
	p, err := project.FromDocument(doc, s.registry)
	if err != nil {
		return models.ProjectDocument{}, err
	}
	if doc.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = time.Now().UTC()

	if v, ok := s.sessions.Get(id); ok {
		sess := v.(*session)
		sess.mu.Lock()
		if sess.running {
			sess.mu.Unlock()
			return models.ProjectDocument{}, ErrProjectBusy
		}
		if doc.CreatedAt.IsZero() {
			p.CreatedAt = sess.project.CreatedAt
		}
		sess.project = p
		sess.dirty = false
		sess.mu.Unlock()
		out := p.Document()
		return out, s.store.Save(ctx, out)
	}
	return s.adopt(ctx, p)
}

// Delete removes a project from memory and from the store
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	if v, ok := s.sessions.Get(id); ok {
		sess := v.(*session)
		sess.mu.Lock()
		if sess.running {
			sess.mu.Unlock()
			return ErrProjectBusy
		}
		sess.deleted = true
		sess.mu.Unlock()
		s.sessions.Delete(id)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("🗑️  [PROJECT] Deleted project %s", id)
	return nil
}

// List returns project summaries, preferring live session state
func (s *ProjectService) List(ctx context.Context) ([]models.ProjectSummary, error) {
	stored, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]int, len(stored))
	for i, sum := range stored {
		seen[sum.ID] = i
	}
	for id, item := range s.sessions.Items() {
		sess := item.Object.(*session)
		sess.mu.Lock()
		if sess.running || sess.deleted {
			sess.mu.Unlock()
			continue
		}
		sum := sess.project.Summary()
		sess.mu.Unlock()
		if i, ok := seen[id]; ok {
			stored[i] = sum
		} else {
			stored = append(stored, sum)
		}
	}
	sortSummaries(stored)
	return stored, nil
}

// WithProject runs fn with exclusive access to a project that is not running.
// The project is marked dirty when fn succeeds, or when it fails after
// applying part of an edit.
func (s *ProjectService) WithProject(ctx context.Context, id string, fn func(p *project.Project) error) error {
	sess, err := s.session(ctx, id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.running {
		return ErrProjectBusy
	}
	rev := sess.project.Revision()
	if err := fn(sess.project); err != nil {
		if sess.project.Revision() != rev {
			sess.dirty = true
		}
		return err
	}
	sess.dirty = true
	return nil
}

// ReadProject runs fn with read access to a project that is not running
func (s *ProjectService) ReadProject(ctx context.Context, id string, fn func(p *project.Project) error) error {
	sess, err := s.session(ctx, id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.running {
		return ErrProjectBusy
	}
	return fn(sess.project)
}

// Connect wires two blocks and counts rebinding of an already bound input
func (s *ProjectService) Connect(ctx context.Context, id, sourceID, outputKey, targetID, inputKey string) (*project.ConnectResult, error) {
	var result *project.ConnectResult
	err := s.WithProject(ctx, id, func(p *project.Project) error {
		var err error
		result, err = p.Connect(sourceID, outputKey, targetID, inputKey, nil)
		return err
	})
	if err == nil && result.Replaced != nil {
		s.metrics.RecordConnectorReplaced()
	}
	return result, err
}

// Save persists a project now
func (s *ProjectService) Save(ctx context.Context, id string) (models.ProjectDocument, error) {
	var doc models.ProjectDocument
	sess, err := s.session(ctx, id)
	if err != nil {
		return doc, err
	}
	sess.mu.Lock()
	if sess.running {
		sess.mu.Unlock()
		return doc, ErrProjectBusy
	}
	doc = sess.project.Document()
	sess.dirty = false
	sess.mu.Unlock()

	if err := s.store.Save(ctx, doc); err != nil {
		s.markDirty(sess)
		return doc, err
	}
	return doc, nil
}

func (s *ProjectService) markDirty(sess *session) {
	sess.mu.Lock()
	sess.dirty = true
	sess.mu.Unlock()
}

// FlushDirty persists every idle session with unsaved changes.
// It returns the number of projects written.
func (s *ProjectService) FlushDirty(ctx context.Context) (int, error) {
	var saved int
	var errs []error
	for id, item := range s.sessions.Items() {
		sess := item.Object.(*session)
		sess.mu.Lock()
		if !sess.dirty || sess.running || sess.deleted {
			sess.mu.Unlock()
			continue
		}
		doc := sess.project.Document()
		sess.dirty = false
		sess.mu.Unlock()

		if err := s.store.Save(ctx, doc); err != nil {
			s.markDirty(sess)
			errs = append(errs, fmt.Errorf("project %s: %w", id, err))
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

// Execute runs a project graph, streaming events to the given channel.
// The project is read-only for the duration of the run.
func (s *ProjectService) Execute(ctx context.Context, id string, opts execution.RunOptions, events chan<- models.ExecutionEvent) (*execution.RunResult, error) {
	if !s.tracker.Acquire() {
		return nil, ErrShuttingDown
	}
	defer s.tracker.Release()

	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess.mu.Lock()
	if sess.running {
		sess.mu.Unlock()
		return nil, ErrRunInProgress
	}
	sess.running = true
	sess.cancel = cancel
	p := sess.project
	sess.mu.Unlock()

	defer func() {
		sess.mu.Lock()
		sess.running = false
		sess.cancel = nil
		sess.dirty = true
		sess.mu.Unlock()
		s.sessions.Set(id, sess, cache.DefaultExpiration)
	}()

	if s.redis != nil {
		lock, err := s.redis.AcquireRunLock(ctx, id, s.runLockTTL)
		if errors.Is(err, ErrRunLocked) {
			return nil, ErrRunInProgress
		}
		if err != nil {
			// Redis trouble must not block single-instance use
			log.Printf("⚠️ [RUN-LOCK] %v, continuing with the local lock only", err)
		} else {
			defer func() {
				releaseCtx, cancelRelease := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelRelease()
				s.redis.ReleaseRunLock(releaseCtx, lock)
			}()
		}
	}

	s.metrics.RunStarted()
	started := time.Now()
	result, runErr := s.engine.Run(runCtx, p, opts, events)

	status := "error"
	if result != nil {
		status = result.Status()
		s.saveRun(result.Record(id))
	}
	s.metrics.RunFinished(status, time.Since(started))
	return result, runErr
}

func (s *ProjectService) saveRun(rec models.RunRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.store.SaveRun(ctx, rec); err != nil {
		log.Printf("⚠️ [PROJECT] Failed to save run %s: %v", rec.ID, err)
	}
}

// Cancel stops the active run of a project. It reports whether a run was cancelled.
func (s *ProjectService) Cancel(id string) bool {
	v, ok := s.sessions.Get(id)
	if !ok {
		return false
	}
	sess := v.(*session)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.running || sess.cancel == nil {
		return false
	}
	sess.cancel()
	log.Printf("⏹️ [PROJECT] Cancel requested for project %s", id)
	return true
}

// CancelAll stops every active run and returns how many were cancelled
func (s *ProjectService) CancelAll() int {
	n := 0
	for id := range s.sessions.Items() {
		if s.Cancel(id) {
			n++
		}
	}
	return n
}

// IsRunning reports whether a project has an active run
func (s *ProjectService) IsRunning(id string) bool {
	v, ok := s.sessions.Get(id)
	if !ok {
		return false
	}
	sess := v.(*session)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.running
}

// RespondDialogue delivers a user response to a suspended Dialogue block
func (s *ProjectService) RespondDialogue(projectID, blockID string, response any) error {
	return s.dialogue.Respond(projectID, blockID, response)
}

// Runs returns the newest run records of a project
func (s *ProjectService) Runs(ctx context.Context, id string, limit int) ([]models.RunRecord, error) {
	return s.store.ListRuns(ctx, id, limit)
}
