package blocks

import (
	"fmt"

	"nodelink/internal/models"
)

// TransformFunc rewrites a value as it crosses a connector
type TransformFunc func(any) any

// Connector is a directed edge from one block output to one block input.
// The transform lives in memory only and is never persisted.
type Connector struct {
	Source    *Block
	SourceKey string
	Target    *Block
	TargetKey string
	Transform TransformFunc
}

// Transfer applies the transform, if any
func (c *Connector) Transfer(v any) any {
	if c.Transform == nil {
		return v
	}
	return c.Transform(v)
}

// Document returns the persisted form of the connector
func (c *Connector) Document() models.ConnectionDocument {
	return models.ConnectionDocument{
		SourceID:     c.Source.ID,
		SourceOutput: c.SourceKey,
		TargetID:     c.Target.ID,
		TargetInput:  c.TargetKey,
	}
}

func (c *Connector) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", c.Source.ID, c.SourceKey, c.Target.ID, c.TargetKey)
}

// detach removes the connector from both of its endpoints
func (c *Connector) detach() {
	if c.Source != nil {
		list := c.Source.outgoing[c.SourceKey]
		for i, existing := range list {
			if existing == c {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(c.Source.outgoing, c.SourceKey)
		} else {
			c.Source.outgoing[c.SourceKey] = list
		}
	}
	if c.Target != nil && c.Target.incoming[c.TargetKey] == c {
		delete(c.Target.incoming, c.TargetKey)
	}
}
