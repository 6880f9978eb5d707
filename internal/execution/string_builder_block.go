package execution

import (
	"context"
	"encoding/json"
	"regexp"

	"nodelink/internal/blocks"
	"nodelink/internal/catalog"
	"nodelink/internal/models"
)

// placeholderPattern matches {{identifier}} placeholders in a template
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// templatePlaceholders returns distinct placeholder names in order of appearance
func templatePlaceholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// StringBuilderBlock fills a template from its inputs. Each {{name}} in the
// template gets its own input port; ports are added but never removed when
// the template changes.
type StringBuilderBlock struct {
	template string
	rec      Recorder
}

func (s *StringBuilderBlock) Type() blocks.Type { return blocks.TypeStringBuilder }

func (s *StringBuilderBlock) RegisterPorts(b *blocks.Block) {
	b.RegisterCoreInput(blocks.TriggerKey, nil, blocks.PortMeta{Hidden: true})
	b.RegisterCoreOutput("result", blocks.PortMeta{DataType: blocks.DataString})
	b.RegisterCoreOutput("resultJson", blocks.PortMeta{DataType: blocks.DataJSON})
}

func (s *StringBuilderBlock) Configure(b *blocks.Block, cfg models.BlockConfig) error {
	if cfg.Template == nil {
		return nil
	}
	s.template = *cfg.Template
	for _, name := range templatePlaceholders(s.template) {
		if !b.HasInput(name) {
			b.RegisterInput(name, "", blocks.PortMeta{DataType: blocks.DataString})
		}
	}
	return nil
}

// Execute substitutes placeholders with input values. References that are not
// inputs, such as {{Greeter.result}}, are resolved against the run context.
// The template is scanned once, so text arriving on an input is never expanded.
func (s *StringBuilderBlock) Execute(ctx context.Context, b *blocks.Block) error {
	vars := scopeFrom(ctx).vars
	result := referencePattern.ReplaceAllStringFunc(s.template, func(match string) string {
		if m := placeholderPattern.FindStringSubmatch(match); m != nil && b.HasInput(m[1]) {
			v, _ := b.Input(m[1])
			if v == nil {
				fallback(s.rec, FallbackMissingTemplate, "string builder %s: no value for {{%s}}", b.ID, m[1])
				return ""
			}
			return stringify(v)
		}
		if vars == nil {
			return match
		}
		v, ok := vars.Lookup(referencePattern.FindStringSubmatch(match)[1])
		if !ok {
			return match
		}
		return catalog.Stringify(v)
	})

	b.SetOutput("result", result)

	var parsed any
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		parsed = nil
	}
	b.SetOutput("resultJson", parsed)
	return nil
}

func (s *StringBuilderBlock) Serialize(cfg *models.BlockConfig) {
	cfg.Template = models.StringPtr(s.template)
}
