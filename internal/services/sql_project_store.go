package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"nodelink/internal/database"
	"nodelink/internal/models"
)

// SQLProjectStore keeps each project document as a JSON column (MySQL or SQLite)
type SQLProjectStore struct {
	db *database.DB
}

// NewSQLProjectStore creates a store on an initialized database
func NewSQLProjectStore(db *database.DB) *SQLProjectStore {
	return &SQLProjectStore{db: db}
}

func (s *SQLProjectStore) Name() string { return s.db.Dialect }

func (s *SQLProjectStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLProjectStore) Save(ctx context.Context, doc models.ProjectDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode project: %w", err)
	}
	created := doc.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := doc.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	query := `INSERT INTO projects (id, name, block_count, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)` +
		s.db.UpsertClause("id", "name", "block_count", "document", "updated_at")
	if _, err := s.db.ExecContext(ctx, query, doc.ID, doc.Name, len(doc.Blocks), string(data), created.UTC(), updated.UTC()); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	log.Printf("📦 [STORE] Saved project %s (%d blocks) to %s", doc.ID, len(doc.Blocks), s.db.Dialect)
	return nil
}

func (s *SQLProjectStore) Load(ctx context.Context, id string) (models.ProjectDocument, error) {
	var doc models.ProjectDocument
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT document FROM projects WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return doc, ErrProjectNotFound
	}
	if err != nil {
		return doc, fmt.Errorf("failed to load project: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return doc, fmt.Errorf("failed to decode project %s: %w", id, err)
	}
	return doc, nil
}

func (s *SQLProjectStore) List(ctx context.Context) ([]models.ProjectSummary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, block_count, updated_at FROM projects ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	out := []models.ProjectSummary{}
	for rows.Next() {
		var sum models.ProjectSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.BlockCount, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLProjectStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrProjectNotFound
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE project_id = ?", id); err != nil {
		log.Printf("⚠️ [STORE] Failed to delete runs of project %s: %v", id, err)
	}
	return nil
}

func (s *SQLProjectStore) SaveRun(ctx context.Context, run models.RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO runs (id, project_id, status, record, started_at) VALUES (?, ?, ?, ?, ?)",
		run.ID, run.ProjectID, run.Status, string(data), run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *SQLProjectStore) ListRuns(ctx context.Context, projectID string, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = maxRunsPerProject
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT record FROM runs WHERE project_id = ? ORDER BY started_at DESC LIMIT ?", projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.RunRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var run models.RunRecord
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			log.Printf("⚠️ [STORE] Skipping undecodable run: %v", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
