package execution

import (
	"context"

	"nodelink/internal/blocks"
	"nodelink/internal/models"
)

// GetKeyBlock reads one key out of a JSON object
type GetKeyBlock struct{}

func (g *GetKeyBlock) Type() blocks.Type { return blocks.TypeGetKey }

func (g *GetKeyBlock) RegisterPorts(b *blocks.Block) {
	b.RegisterCoreInput(blocks.TriggerKey, nil, blocks.PortMeta{Hidden: true})
	b.RegisterCoreInput("json_obj", nil, blocks.PortMeta{DataType: blocks.DataJSON})
	b.RegisterCoreInput("key", "", blocks.PortMeta{DataType: blocks.DataString, Placeholder: "field name"})
	b.RegisterCoreOutput("value", blocks.PortMeta{})
}

func (g *GetKeyBlock) Configure(*blocks.Block, models.BlockConfig) error { return nil }

// Execute sets value to json_obj[key]. A non-object input or a missing key gives null.
func (g *GetKeyBlock) Execute(_ context.Context, b *blocks.Block) error {
	raw, _ := b.Input("json_obj")
	key, _ := b.Input("key")
	b.SetOutput("value", getKey(raw, key))
	return nil
}

func (g *GetKeyBlock) Serialize(*models.BlockConfig) {}

func getKey(raw, key any) any {
	obj, ok := toObject(raw)
	k, isString := key.(string)
	if !ok || !isString {
		return nil
	}
	return obj[k]
}
