package project

import (
	"fmt"
	"log"

	"nodelink/internal/blocks"
	"nodelink/internal/models"
)

// Document returns the persisted form of the project.
// Connector transforms are not part of the document.
func (p *Project) Document() models.ProjectDocument {
	doc := models.ProjectDocument{
		ID:          p.ID,
		Name:        p.Name,
		Blocks:      make([]models.BlockDocument, 0, len(p.order)),
		Connections: make([]models.ConnectionDocument, 0),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	for _, b := range p.Blocks() {
		doc.Blocks = append(doc.Blocks, b.Document())
	}
	for _, c := range p.Connectors() {
		doc.Connections = append(doc.Connections, c.Document())
	}
	return doc
}

// FromDocument rebuilds a project from its persisted form. Block IDs are
// preserved. Connections that reference a missing block or port are dropped
// with a warning so that a partially stale document still loads.
func FromDocument(doc models.ProjectDocument, registry *blocks.Registry) (*Project, error) {
	p := New(doc.ID, doc.Name, registry)
	if !doc.CreatedAt.IsZero() {
		p.CreatedAt = doc.CreatedAt
	}

	for _, bd := range doc.Blocks {
		if bd.ID == "" {
			return nil, fmt.Errorf("block %q has no id", bd.Name)
		}
		b, err := registry.New(blocks.Type(bd.BlockType), bd.ID, bd.Name)
		if err != nil {
			return nil, err
		}
		if err := b.ApplyDocument(bd); err != nil {
			return nil, err
		}
		if err := p.Insert(b); err != nil {
			return nil, err
		}
	}

	for _, cd := range doc.Connections {
		if _, err := p.Connect(cd.SourceID, cd.SourceOutput, cd.TargetID, cd.TargetInput, nil); err != nil {
			log.Printf("⚠️ [PROJECT] Dropping connection %s.%s -> %s.%s from project %s: %v",
				cd.SourceID, cd.SourceOutput, cd.TargetID, cd.TargetInput, p.ID, err)
		}
	}

	if !doc.UpdatedAt.IsZero() {
		p.UpdatedAt = doc.UpdatedAt
	}
	return p, nil
}
