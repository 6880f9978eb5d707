package execution

import (
	"context"

	"nodelink/internal/blocks"
	"nodelink/internal/models"
)

// ReactBlock bridges the canvas UI. Its ports are declared by the UI: inputs
// are values to display, outputs are values the user typed.
type ReactBlock struct{}

func (r *ReactBlock) Type() blocks.Type { return blocks.TypeReact }

func (r *ReactBlock) RegisterPorts(b *blocks.Block) {
	b.RegisterInput("display_data", nil, blocks.PortMeta{})
	b.RegisterOutput("user_input", blocks.PortMeta{})
}

func (r *ReactBlock) Configure(*blocks.Block, models.BlockConfig) error { return nil }

// SyncPorts diffs the current key lists against the given ones. Keys that
// persist keep their values and connectors.
func (r *ReactBlock) SyncPorts(b *blocks.Block, inputs, outputs []string) error {
	want := make(map[string]bool, len(inputs))
	for _, k := range inputs {
		want[k] = true
	}
	for _, p := range b.InputPorts() {
		if !p.Core && !want[p.Key] {
			if _, err := b.RemoveInput(p.Key); err != nil {
				return err
			}
		}
	}
	for _, k := range inputs {
		if !b.HasInput(k) {
			b.RegisterInput(k, nil, blocks.PortMeta{})
		}
	}

	want = make(map[string]bool, len(outputs))
	for _, k := range outputs {
		want[k] = true
	}
	for _, p := range b.OutputPorts() {
		if !p.Core && !want[p.Key] {
			if _, err := b.RemoveOutput(p.Key); err != nil {
				return err
			}
		}
	}
	for _, k := range outputs {
		if !b.HasOutput(k) {
			b.RegisterOutput(k, blocks.PortMeta{})
		}
	}
	return nil
}

// Execute mirrors each input to the output of the same key. Outputs without
// a matching input keep the value the UI set.
func (r *ReactBlock) Execute(_ context.Context, b *blocks.Block) error {
	for k, v := range b.Inputs() {
		b.SetOutput(k, v)
	}
	return nil
}

func (r *ReactBlock) Serialize(*models.BlockConfig) {}
