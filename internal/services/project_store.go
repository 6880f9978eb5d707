package services

import (
	"context"
	"errors"

	"nodelink/internal/models"
)

// ErrProjectNotFound is returned when a store has no document for an ID
var ErrProjectNotFound = errors.New("project not found")

// ProjectStore persists project documents and run records
type ProjectStore interface {
	Save(ctx context.Context, doc models.ProjectDocument) error
	Load(ctx context.Context, id string) (models.ProjectDocument, error)
	List(ctx context.Context) ([]models.ProjectSummary, error)
	Delete(ctx context.Context, id string) error
	SaveRun(ctx context.Context, run models.RunRecord) error
	ListRuns(ctx context.Context, projectID string, limit int) ([]models.RunRecord, error)
	Ping(ctx context.Context) error
	Name() string
}

// summaryOf builds the list view of a document
func summaryOf(doc models.ProjectDocument) models.ProjectSummary {
	return models.ProjectSummary{
		ID:         doc.ID,
		Name:       doc.Name,
		BlockCount: len(doc.Blocks),
		UpdatedAt:  doc.UpdatedAt,
	}
}
