package execution

import (
	"context"
	"os"
	"sort"
	"strings"

	"nodelink/internal/blocks"
	"nodelink/internal/models"
)

// APIKeyBlock outputs a secret read from the server environment. Only
// variables carrying the configured prefix are selectable.
type APIKeyBlock struct {
	prefix      string
	selectedKey string
}

func (a *APIKeyBlock) Type() blocks.Type { return blocks.TypeAPIKey }

func (a *APIKeyBlock) RegisterPorts(b *blocks.Block) {
	b.RegisterCoreInput(blocks.TriggerKey, nil, blocks.PortMeta{Hidden: true})
	b.RegisterCoreOutput("key", blocks.PortMeta{DataType: blocks.DataString})
}

func (a *APIKeyBlock) Configure(_ *blocks.Block, cfg models.BlockConfig) error {
	if cfg.SelectedKey != nil {
		a.selectedKey = *cfg.SelectedKey
	}
	return nil
}

// AvailableKeys lists the env var suffixes after the prefix, sorted
func (a *APIKeyBlock) AvailableKeys() []string {
	keys := []string{}
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, a.prefix) && len(name) > len(a.prefix) {
			keys = append(keys, strings.TrimPrefix(name, a.prefix))
		}
	}
	sort.Strings(keys)
	return keys
}

// Execute sets key to the selected variable, or null when nothing is selected or set
func (a *APIKeyBlock) Execute(_ context.Context, b *blocks.Block) error {
	if a.selectedKey == "" {
		b.SetOutput("key", nil)
		return nil
	}
	v, ok := os.LookupEnv(a.prefix + a.selectedKey)
	if !ok {
		b.SetOutput("key", nil)
		return nil
	}
	b.SetOutput("key", v)
	return nil
}

func (a *APIKeyBlock) Serialize(cfg *models.BlockConfig) {
	cfg.SelectedKey = models.StringPtr(a.selectedKey)
	cfg.AvailableKeys = a.AvailableKeys()
}

// Extras exposes the selectable keys to the canvas
func (a *APIKeyBlock) Extras() map[string]any {
	return map[string]any{"selected_key": a.selectedKey, "available_keys": a.AvailableKeys()}
}
