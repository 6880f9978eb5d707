package execution

import (
	"context"

	"nodelink/internal/blocks"
	"nodelink/internal/models"
)

// StartBlock is the entry point of a run. Its result output is always true.
type StartBlock struct{}

func (s *StartBlock) Type() blocks.Type { return blocks.TypeStart }

func (s *StartBlock) RegisterPorts(b *blocks.Block) {
	b.RegisterCoreOutput("result", blocks.PortMeta{DataType: blocks.DataBoolean})
}

func (s *StartBlock) Configure(*blocks.Block, models.BlockConfig) error { return nil }

func (s *StartBlock) Execute(_ context.Context, b *blocks.Block) error {
	b.SetOutput("result", true)
	return nil
}

func (s *StartBlock) Serialize(*models.BlockConfig) {}
