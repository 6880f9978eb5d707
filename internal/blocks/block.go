package blocks

import (
	"context"
	"errors"
	"fmt"

	"nodelink/internal/models"
)

// Block is a typed unit of computation with named input and output ports.
// A Block is not safe for concurrent use; the owning project serializes access.
type Block struct {
	ID       string
	Name     string
	X, Y     float64
	MenuOpen bool

	variant  Variant
	inputs   portSet
	outputs  portSet
	incoming map[string]*Connector   // input key -> single connector
	outgoing map[string][]*Connector // output key -> fan-out
}

// New creates a block and lets the variant declare its ports
func New(id, name string, v Variant) *Block {
	b := &Block{
		ID:       id,
		Name:     name,
		variant:  v,
		inputs:   newPortSet(),
		outputs:  newPortSet(),
		incoming: make(map[string]*Connector),
		outgoing: make(map[string][]*Connector),
	}
	v.RegisterPorts(b)
	return b
}

// Type returns the variant tag
func (b *Block) Type() Type {
	return b.variant.Type()
}

// Variant returns the block behaviour
func (b *Block) Variant() Variant {
	return b.variant
}

// RegisterInput declares a dynamic input. Re-registering keeps the current value.
func (b *Block) RegisterInput(key string, def any, meta PortMeta) {
	b.registerInput(key, def, meta, false)
}

// RegisterCoreInput declares an input that reconfiguration never removes
func (b *Block) RegisterCoreInput(key string, def any, meta PortMeta) {
	b.registerInput(key, def, meta, true)
}

func (b *Block) registerInput(key string, def any, meta PortMeta, core bool) {
	if meta.DataType == "" {
		meta.DataType = DataAny
	}
	meta.Default = def
	b.inputs.upsert(key, meta, core, def)
}

// RegisterOutput declares a dynamic output
func (b *Block) RegisterOutput(key string, meta PortMeta) {
	b.registerOutput(key, meta, false)
}

// RegisterCoreOutput declares an output that reconfiguration never removes
func (b *Block) RegisterCoreOutput(key string, meta PortMeta) {
	b.registerOutput(key, meta, true)
}

func (b *Block) registerOutput(key string, meta PortMeta, core bool) {
	if meta.DataType == "" {
		meta.DataType = DataAny
	}
	meta.Default = nil
	b.outputs.upsert(key, meta, core, nil)
}

// HasInput reports whether the input port exists
func (b *Block) HasInput(key string) bool {
	return b.inputs.has(key)
}

// HasOutput reports whether the output port exists
func (b *Block) HasOutput(key string) bool {
	return b.outputs.has(key)
}

// Input returns the current value of an input
func (b *Block) Input(key string) (any, bool) {
	p, ok := b.inputs.get(key)
	if !ok {
		return nil, false
	}
	return p.Value, true
}

// Output returns the last computed value of an output
func (b *Block) Output(key string) (any, bool) {
	p, ok := b.outputs.get(key)
	if !ok {
		return nil, false
	}
	return p.Value, true
}

// SetInput writes an input value
func (b *Block) SetInput(key string, v any) error {
	p, ok := b.inputs.get(key)
	if !ok {
		return portNotFound("set_input", b.ID, DirectionInput, key)
	}
	p.Value = v
	return nil
}

// SetOutput writes an output value; unknown keys are ignored and reported
func (b *Block) SetOutput(key string, v any) bool {
	p, ok := b.outputs.get(key)
	if !ok {
		return false
	}
	p.Value = v
	return true
}

// ResetOutputs clears every output value
func (b *Block) ResetOutputs() {
	for _, k := range b.outputs.order {
		b.outputs.ports[k].Value = nil
	}
}

// Inputs returns a copy of the current input values
func (b *Block) Inputs() map[string]any {
	return b.inputs.values()
}

// Outputs returns a copy of the current output values
func (b *Block) Outputs() map[string]any {
	return b.outputs.values()
}

// InputKeys returns input keys in declaration order
func (b *Block) InputKeys() []string {
	return b.inputs.keys()
}

// OutputKeys returns output keys in declaration order
func (b *Block) OutputKeys() []string {
	return b.outputs.keys()
}

// InputPorts returns copies of the input ports in order
func (b *Block) InputPorts() []Port {
	return b.inputs.list()
}

// OutputPorts returns copies of the output ports in order
func (b *Block) OutputPorts() []Port {
	return b.outputs.list()
}

// InputPort returns a copy of one input port
func (b *Block) InputPort(key string) (Port, bool) {
	p, ok := b.inputs.get(key)
	if !ok {
		return Port{}, false
	}
	return *p, true
}

// OutputPort returns a copy of one output port
func (b *Block) OutputPort(key string) (Port, bool) {
	p, ok := b.outputs.get(key)
	if !ok {
		return Port{}, false
	}
	return *p, true
}

// HiddenInputs returns the keys of hidden inputs
func (b *Block) HiddenInputs() []string {
	return b.inputs.hidden()
}

// HiddenOutputs returns the keys of hidden outputs
func (b *Block) HiddenOutputs() []string {
	return b.outputs.hidden()
}

func (b *Block) ports(dir Direction) (*portSet, error) {
	switch dir {
	case DirectionInput:
		return &b.inputs, nil
	case DirectionOutput:
		return &b.outputs, nil
	}
	return nil, fmt.Errorf("invalid port direction %q", dir)
}

// SetHidden sets the visibility flag of a port
func (b *Block) SetHidden(dir Direction, key string, hidden bool) error {
	set, err := b.ports(dir)
	if err != nil {
		return err
	}
	p, ok := set.get(key)
	if !ok {
		return portNotFound("set_visibility", b.ID, dir, key)
	}
	p.Meta.Hidden = hidden
	return nil
}

// ToggleVisibility flips a port's hidden flag and returns the new value
func (b *Block) ToggleVisibility(dir Direction, key string) (bool, error) {
	set, err := b.ports(dir)
	if err != nil {
		return false, err
	}
	p, ok := set.get(key)
	if !ok {
		return false, portNotFound("toggle_visibility", b.ID, dir, key)
	}
	p.Meta.Hidden = !p.Meta.Hidden
	return p.Meta.Hidden, nil
}

// Connect wires outputKey of b to inputKey of target.
// An input holds at most one connector: when it is already bound the
// previous connector is detached from both ends and returned as replaced.
func (b *Block) Connect(outputKey string, target *Block, inputKey string, transform TransformFunc) (conn, replaced *Connector, err error) {
	if target == nil {
		return nil, nil, &GraphDefinitionError{Op: "connect", Err: ErrBlockNotFound}
	}
	if !b.outputs.has(outputKey) {
		return nil, nil, portNotFound("connect", b.ID, DirectionOutput, outputKey)
	}
	if !target.inputs.has(inputKey) {
		return nil, nil, portNotFound("connect", target.ID, DirectionInput, inputKey)
	}

	if existing := target.incoming[inputKey]; existing != nil {
		existing.detach()
		replaced = existing
	}

	conn = &Connector{
		Source:    b,
		SourceKey: outputKey,
		Target:    target,
		TargetKey: inputKey,
		Transform: transform,
	}
	b.outgoing[outputKey] = append(b.outgoing[outputKey], conn)
	target.incoming[inputKey] = conn
	return conn, replaced, nil
}

// Disconnect removes the connector outputKey -> target.inputKey if it exists
func (b *Block) Disconnect(outputKey string, target *Block, inputKey string) bool {
	if target == nil {
		return false
	}
	c := target.incoming[inputKey]
	if c == nil || c.Source != b || c.SourceKey != outputKey {
		return false
	}
	c.detach()
	return true
}

// IncomingConnector returns the connector bound to an input
func (b *Block) IncomingConnector(inputKey string) *Connector {
	return b.incoming[inputKey]
}

// Incoming returns bound connectors in input order
func (b *Block) Incoming() []*Connector {
	var out []*Connector
	for _, k := range b.inputs.order {
		if c := b.incoming[k]; c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Outgoing returns outgoing connectors in output order
func (b *Block) Outgoing() []*Connector {
	var out []*Connector
	for _, k := range b.outputs.order {
		out = append(out, b.outgoing[k]...)
	}
	return out
}

// DetachAll removes every connector touching b from both endpoints
func (b *Block) DetachAll() []*Connector {
	removed := append(b.Incoming(), b.Outgoing()...)
	for _, c := range removed {
		c.detach()
	}
	return removed
}

// RemoveInput deletes a dynamic input with its value, metadata and connector
func (b *Block) RemoveInput(key string) (*Connector, error) {
	p, ok := b.inputs.get(key)
	if !ok {
		return nil, portNotFound("remove_input", b.ID, DirectionInput, key)
	}
	if p.Core {
		return nil, &GraphDefinitionError{Op: "remove_input", BlockID: b.ID, Port: DirectionInput, Key: key, Err: ErrCorePort}
	}
	c := b.incoming[key]
	if c != nil {
		c.detach()
	}
	b.inputs.remove(key)
	return c, nil
}

// RemoveOutput deletes a dynamic output with its value, metadata and connectors
func (b *Block) RemoveOutput(key string) ([]*Connector, error) {
	p, ok := b.outputs.get(key)
	if !ok {
		return nil, portNotFound("remove_output", b.ID, DirectionOutput, key)
	}
	if p.Core {
		return nil, &GraphDefinitionError{Op: "remove_output", BlockID: b.ID, Port: DirectionOutput, Key: key, Err: ErrCorePort}
	}
	conns := append([]*Connector(nil), b.outgoing[key]...)
	for _, c := range conns {
		c.detach()
	}
	b.outputs.remove(key)
	return conns, nil
}

// ClearDynamicPorts removes every non-core port and returns detached connectors
func (b *Block) ClearDynamicPorts() []*Connector {
	var detached []*Connector
	for _, p := range b.inputs.list() {
		if !p.Core {
			c, _ := b.RemoveInput(p.Key)
			if c != nil {
				detached = append(detached, c)
			}
		}
	}
	for _, p := range b.outputs.list() {
		if !p.Core {
			conns, _ := b.RemoveOutput(p.Key)
			detached = append(detached, conns...)
		}
	}
	return detached
}

// FetchInputs pulls the current output of each bound source into this block's inputs
func (b *Block) FetchInputs() {
	for _, k := range b.inputs.order {
		c := b.incoming[k]
		if c == nil {
			continue
		}
		v, _ := c.Source.Output(c.SourceKey)
		b.inputs.ports[k].Value = c.Transfer(v)
	}
}

// Configure applies variant fields
func (b *Block) Configure(cfg models.BlockConfig) error {
	if err := b.variant.Configure(b, cfg); err != nil {
		var defErr *GraphDefinitionError
		if errors.As(err, &defErr) {
			return err
		}
		return &GraphDefinitionError{Op: "configure", BlockID: b.ID, Key: string(b.Type()), Err: fmt.Errorf("%w: %v", ErrInvalidConfig, err)}
	}
	return nil
}

// Execute runs the variant
func (b *Block) Execute(ctx context.Context) error {
	return b.variant.Execute(ctx, b)
}

// Document returns the persisted form of the block
func (b *Block) Document() models.BlockDocument {
	doc := models.BlockDocument{
		ID:            b.ID,
		Name:          b.Name,
		BlockType:     string(b.Type()),
		X:             b.X,
		Y:             b.Y,
		Inputs:        portValues(b.inputs),
		Outputs:       portValues(b.outputs),
		HiddenInputs:  b.HiddenInputs(),
		HiddenOutputs: b.HiddenOutputs(),
		MenuOpen:      b.MenuOpen,
	}
	b.variant.Serialize(&doc.BlockConfig)
	return doc
}

// ApplyDocument restores presentation state, variant config and port values.
// Inputs missing from the block are registered as dynamic inputs. Variants
// whose ports are externally defined are first synced to the document's keys.
func (b *Block) ApplyDocument(doc models.BlockDocument) error {
	b.Name = doc.Name
	b.X = doc.X
	b.Y = doc.Y
	b.MenuOpen = doc.MenuOpen

	if !doc.BlockConfig.IsEmpty() {
		if err := b.Configure(doc.BlockConfig); err != nil {
			return fmt.Errorf("failed to configure block %s: %w", b.ID, err)
		}
	}

	syncer, openPorts := b.variant.(PortSyncer)
	if openPorts {
		outputs := portKeys(doc.Outputs)
		if len(outputs) == 0 {
			outputs = b.OutputKeys()
		}
		if err := syncer.SyncPorts(b, portKeys(doc.Inputs), outputs); err != nil {
			return fmt.Errorf("failed to sync ports of block %s: %w", b.ID, err)
		}
	}
	for _, pv := range doc.Inputs {
		if !b.inputs.has(pv.Key) {
			b.RegisterInput(pv.Key, nil, PortMeta{DataType: DataAny})
		}
		b.inputs.ports[pv.Key].Value = pv.Value
	}
	for _, pv := range doc.Outputs {
		if !b.outputs.has(pv.Key) {
			if !openPorts {
				continue
			}
			b.RegisterOutput(pv.Key, PortMeta{DataType: DataAny})
		}
		b.outputs.ports[pv.Key].Value = pv.Value
	}

	if doc.HiddenInputs != nil {
		applyHidden(&b.inputs, doc.HiddenInputs)
	}
	if doc.HiddenOutputs != nil {
		applyHidden(&b.outputs, doc.HiddenOutputs)
	}
	return nil
}

func applyHidden(set *portSet, hidden []string) {
	lookup := make(map[string]bool, len(hidden))
	for _, k := range hidden {
		lookup[k] = true
	}
	for _, k := range set.order {
		set.ports[k].Meta.Hidden = lookup[k]
	}
}

func portKeys(values []models.PortValue) []string {
	keys := make([]string, 0, len(values))
	for _, pv := range values {
		keys = append(keys, pv.Key)
	}
	return keys
}

func portValues(set portSet) []models.PortValue {
	out := make([]models.PortValue, 0, len(set.order))
	for _, k := range set.order {
		out = append(out, models.PortValue{Key: k, Value: set.ports[k].Value})
	}
	return out
}
