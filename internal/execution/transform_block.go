package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"nodelink/internal/blocks"
	"nodelink/internal/catalog"
	"nodelink/internal/models"
)

// Transformation types
const (
	TransformToString     = "to_string"
	TransformToJSON       = "to_json"
	TransformParamsToJSON = "params_to_json"
	TransformJSONToParams = "json_to_params"
	TransformGetKey       = "get_key"
)

// TransformTypes lists the supported transformation types
var TransformTypes = []string{
	TransformToString, TransformToJSON, TransformParamsToJSON, TransformJSONToParams, TransformGetKey,
}

// TransformBlock reshapes data. Its port shape depends on the transformation
// type and, for the params conversions, on the comma separated field list.
type TransformBlock struct {
	kind   string
	fields string
	rec    Recorder
}

func (t *TransformBlock) Type() blocks.Type { return blocks.TypeTransform }

func (t *TransformBlock) RegisterPorts(b *blocks.Block) {
	b.RegisterCoreInput(blocks.TriggerKey, nil, blocks.PortMeta{Hidden: true})
	t.registerShape(b)
}

func (t *TransformBlock) registerShape(b *blocks.Block) {
	switch t.kind {
	case TransformParamsToJSON:
		for _, f := range splitFields(t.fields) {
			b.RegisterInput(f, nil, blocks.PortMeta{})
		}
		b.RegisterOutput("json", blocks.PortMeta{DataType: blocks.DataJSON})
	case TransformJSONToParams:
		b.RegisterInput("json", nil, blocks.PortMeta{DataType: blocks.DataJSON})
		for _, f := range splitFields(t.fields) {
			b.RegisterOutput(f, blocks.PortMeta{})
		}
	case TransformGetKey:
		b.RegisterInput("json_obj", nil, blocks.PortMeta{DataType: blocks.DataJSON})
		b.RegisterInput("key", "", blocks.PortMeta{DataType: blocks.DataString})
		b.RegisterOutput("value", blocks.PortMeta{})
	case TransformToJSON:
		b.RegisterInput("input_data", nil, blocks.PortMeta{DataType: blocks.DataString})
		b.RegisterOutput("output_data", blocks.PortMeta{DataType: blocks.DataJSON})
	default:
		b.RegisterInput("input_data", nil, blocks.PortMeta{})
		b.RegisterOutput("output_data", blocks.PortMeta{DataType: blocks.DataString})
	}
}

// Configure rebuilds the dynamic ports when the type or field list changes
func (t *TransformBlock) Configure(b *blocks.Block, cfg models.BlockConfig) error {
	kind, fields := t.kind, t.fields
	if cfg.TransformationType != nil {
		kind = *cfg.TransformationType
		if !validTransform(kind) {
			return fmt.Errorf("unknown transformation type %q", kind)
		}
	}
	if cfg.Fields != nil {
		fields = *cfg.Fields
	}
	if kind == t.kind && fields == t.fields {
		return nil
	}
	t.kind, t.fields = kind, fields
	b.ClearDynamicPorts()
	t.registerShape(b)
	return nil
}

func validTransform(kind string) bool {
	for _, k := range TransformTypes {
		if k == kind {
			return true
		}
	}
	return false
}

func (t *TransformBlock) Execute(_ context.Context, b *blocks.Block) error {
	switch t.kind {
	case TransformToString:
		in, _ := b.Input("input_data")
		if s, ok := in.(string); ok {
			b.SetOutput("output_data", s)
			return nil
		}
		data, err := json.Marshal(in)
		if err != nil {
			return blockError("cannot encode input_data: %v", err)
		}
		b.SetOutput("output_data", string(data))

	case TransformToJSON:
		in, _ := b.Input("input_data")
		s, ok := in.(string)
		if !ok {
			b.SetOutput("output_data", in)
			return nil
		}
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			b.SetOutput("output_data", nil)
			return blockError("input_data is not valid JSON: %v", err)
		}
		b.SetOutput("output_data", parsed)

	case TransformParamsToJSON:
		obj := make(map[string]any)
		for _, f := range splitFields(t.fields) {
			v, _ := b.Input(f)
			obj[f] = v
		}
		b.SetOutput("json", obj)

	case TransformJSONToParams:
		raw, _ := b.Input("json")
		obj, ok := toObject(raw)
		if !ok && raw != nil {
			fallback(t.rec, FallbackInvalidJSON, "transform block %s: json input is not an object", b.ID)
		}
		for _, f := range splitFields(t.fields) {
			b.SetOutput(f, obj[f])
		}

	case TransformGetKey:
		raw, _ := b.Input("json_obj")
		key, _ := b.Input("key")
		b.SetOutput("value", getKey(raw, key))
	}
	return nil
}

func (t *TransformBlock) Serialize(cfg *models.BlockConfig) {
	cfg.TransformationType = models.StringPtr(t.kind)
	cfg.Fields = models.StringPtr(t.fields)
}

// Extras exposes the type list to the canvas
func (t *TransformBlock) Extras() map[string]any {
	return map[string]any{
		"transformation_type":  t.kind,
		"transformation_types": TransformTypes,
		"fields":               strings.Join(splitFields(t.fields), ","),
	}
}

// stringify is shared by the text-producing variants
func stringify(v any) string {
	return catalog.Stringify(v)
}
