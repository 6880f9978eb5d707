package blocks

import (
	"context"

	"nodelink/internal/models"
)

// Type is the discriminant of the block variant family
type Type string

const (
	TypeStart         Type = "START"
	TypeAPI           Type = "API"
	TypeLogic         Type = "LOGIC"
	TypeTransform     Type = "TRANSFORM"
	TypeStringBuilder Type = "STRING_BUILDER"
	TypeWait          Type = "WAIT"
	TypeDialogue      Type = "DIALOGUE"
	TypeLoop          Type = "LOOP"
	TypeReact         Type = "REACT"
	TypeGetKey        Type = "GET_KEY"
	TypeAPIKey        Type = "API_KEY"
)

// TriggerKey is the hidden core input that lets any block be wired as a dependent
const TriggerKey = "trigger"

// Variant is the behaviour of one block type
type Variant interface {
	Type() Type
	// RegisterPorts declares core and initial ports, once at construction
	RegisterPorts(b *Block)
	// Configure applies variant fields; it may reshape dynamic ports
	Configure(b *Block, cfg models.BlockConfig) error
	// Execute reads the block inputs and writes its outputs
	Execute(ctx context.Context, b *Block) error
	// Serialize writes variant fields for the persisted document
	Serialize(cfg *models.BlockConfig)
}

// PortSyncer is implemented by variants whose ports are defined externally
type PortSyncer interface {
	SyncPorts(b *Block, inputs, outputs []string) error
}

// IterationReporter is implemented by variants that declare iteration support
type IterationReporter interface {
	SupportsIteration() bool
}

// Extras is implemented by variants that expose extra data on the canvas
type Extras interface {
	Extras() map[string]any
}
