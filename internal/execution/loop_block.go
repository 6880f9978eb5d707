package execution

import (
	"context"
	"log"

	"nodelink/internal/blocks"
	"nodelink/internal/models"
)

// LoopBlock is a placeholder: it does not iterate. For a non-empty list it
// surfaces only the last element and its index, and both signals are always true.
type LoopBlock struct{}

func (l *LoopBlock) Type() blocks.Type { return blocks.TypeLoop }

func (l *LoopBlock) RegisterPorts(b *blocks.Block) {
	b.RegisterCoreInput(blocks.TriggerKey, nil, blocks.PortMeta{Hidden: true})
	b.RegisterCoreInput("list", nil, blocks.PortMeta{DataType: blocks.DataList})
	b.RegisterCoreOutput("item", blocks.PortMeta{})
	b.RegisterCoreOutput("index", blocks.PortMeta{DataType: blocks.DataNumber})
	b.RegisterCoreOutput("loop_body_signal", blocks.PortMeta{DataType: blocks.DataBoolean})
	b.RegisterCoreOutput("done_signal", blocks.PortMeta{DataType: blocks.DataBoolean})
}

func (l *LoopBlock) Configure(*blocks.Block, models.BlockConfig) error { return nil }

func (l *LoopBlock) Execute(_ context.Context, b *blocks.Block) error {
	log.Printf("⚠️ [LOOP] Block '%s': iteration is not supported, emitting last element only", b.Name)

	raw, _ := b.Input("list")
	if list, ok := raw.([]any); ok && len(list) > 0 {
		b.SetOutput("item", list[len(list)-1])
		b.SetOutput("index", len(list)-1)
	}
	b.SetOutput("loop_body_signal", true)
	b.SetOutput("done_signal", true)
	return nil
}

func (l *LoopBlock) Serialize(*models.BlockConfig) {}

// SupportsIteration is false: the scheduler has no loop semantics
func (l *LoopBlock) SupportsIteration() bool { return false }
