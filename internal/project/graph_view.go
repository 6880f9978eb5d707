package project

import (
	"fmt"

	"nodelink/internal/blocks"
	"nodelink/internal/models"
)

// GraphView returns the canvas representation of the project
func (p *Project) GraphView() models.GraphView {
	view := models.GraphView{
		Nodes: make([]models.GraphNode, 0, len(p.order)),
		Edges: make([]models.GraphEdge, 0),
	}

	for _, b := range p.Blocks() {
		node := models.GraphNode{
			ID:            b.ID,
			Name:          b.Name,
			BlockType:     string(b.Type()),
			X:             b.X,
			Y:             b.Y,
			Inputs:        portViews(b.InputPorts()),
			Outputs:       portViews(b.OutputPorts()),
			HiddenInputs:  b.HiddenInputs(),
			HiddenOutputs: b.HiddenOutputs(),
			MenuOpen:      b.MenuOpen,
		}
		if r, ok := b.Variant().(blocks.IterationReporter); ok {
			supported := r.SupportsIteration()
			node.SupportsIteration = &supported
		}
		if x, ok := b.Variant().(blocks.Extras); ok {
			node.Extra = x.Extras()
		}
		view.Nodes = append(view.Nodes, node)
	}

	for _, c := range p.Connectors() {
		view.Edges = append(view.Edges, models.GraphEdge{
			ID:           edgeID(c),
			Source:       c.Source.ID,
			SourceHandle: c.SourceKey,
			Target:       c.Target.ID,
			TargetHandle: c.TargetKey,
		})
	}
	return view
}

func edgeID(c *blocks.Connector) string {
	return fmt.Sprintf("e-%s-%s-%s-%s", c.Source.ID, c.SourceKey, c.Target.ID, c.TargetKey)
}

func portViews(ports []blocks.Port) []models.PortView {
	out := make([]models.PortView, 0, len(ports))
	for _, p := range ports {
		out = append(out, models.PortView{
			Key:         p.Key,
			Value:       p.Value,
			DataType:    string(p.Meta.DataType),
			Hidden:      p.Meta.Hidden,
			Core:        p.Core,
			Required:    p.Meta.Required,
			Placeholder: p.Meta.Placeholder,
			Description: p.Meta.Description,
			Group:       p.Meta.Group,
			Validation:  p.Meta.Validation,
		})
	}
	return out
}
