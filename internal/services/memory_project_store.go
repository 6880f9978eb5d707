package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/patrickmn/go-cache"

	"nodelink/internal/models"
)

const maxRunsPerProject = 50

// MemoryProjectStore keeps documents in process memory. Used when no
// database is configured; everything is lost on restart.
type MemoryProjectStore struct {
	docs *cache.Cache // id -> JSON encoded document

	mu   sync.Mutex
	runs map[string][]models.RunRecord
}

// NewMemoryProjectStore creates an empty store
func NewMemoryProjectStore() *MemoryProjectStore {
	return &MemoryProjectStore{
		docs: cache.New(cache.NoExpiration, 0),
		runs: make(map[string][]models.RunRecord),
	}
}

func (s *MemoryProjectStore) Name() string { return "memory" }

func (s *MemoryProjectStore) Ping(context.Context) error { return nil }

// Save stores an encoded copy so later mutations of doc do not leak in
func (s *MemoryProjectStore) Save(_ context.Context, doc models.ProjectDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode project %s: %w", doc.ID, err)
	}
	s.docs.Set(doc.ID, data, cache.NoExpiration)
	return nil
}

func (s *MemoryProjectStore) Load(_ context.Context, id string) (models.ProjectDocument, error) {
	var doc models.ProjectDocument
	v, ok := s.docs.Get(id)
	if !ok {
		return doc, ErrProjectNotFound
	}
	if err := json.Unmarshal(v.([]byte), &doc); err != nil {
		return doc, fmt.Errorf("failed to decode project %s: %w", id, err)
	}
	return doc, nil
}

func (s *MemoryProjectStore) List(ctx context.Context) ([]models.ProjectSummary, error) {
	out := make([]models.ProjectSummary, 0, s.docs.ItemCount())
	for id := range s.docs.Items() {
		doc, err := s.Load(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, summaryOf(doc))
	}
	sortSummaries(out)
	return out, nil
}

func (s *MemoryProjectStore) Delete(_ context.Context, id string) error {
	if _, ok := s.docs.Get(id); !ok {
		return ErrProjectNotFound
	}
	s.docs.Delete(id)
	s.mu.Lock()
	delete(s.runs, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryProjectStore) SaveRun(_ context.Context, run models.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := append(s.runs[run.ProjectID], run)
	if len(runs) > maxRunsPerProject {
		runs = runs[len(runs)-maxRunsPerProject:]
	}
	s.runs[run.ProjectID] = runs
	return nil
}

// ListRuns returns the newest runs first
func (s *MemoryProjectStore) ListRuns(_ context.Context, projectID string, limit int) ([]models.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := s.runs[projectID]
	out := make([]models.RunRecord, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, runs[i])
	}
	return out, nil
}

// sortSummaries orders by most recently updated, then by name
func sortSummaries(list []models.ProjectSummary) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].UpdatedAt.After(list[j].UpdatedAt)
		}
		return strings.ToLower(list[i].Name) < strings.ToLower(list[j].Name)
	})
}
