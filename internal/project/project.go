package project

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"nodelink/internal/blocks"
	"nodelink/internal/models"
)

// ErrUnsupported is returned when a block type does not support an operation
var ErrUnsupported = errors.New("operation not supported by block type")

// Project is a named collection of blocks and the connectors between them.
// Every connector reachable from a member block has both endpoints in the project.
// A Project is not safe for concurrent use.
type Project struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time

	registry *blocks.Registry
	blocks   map[string]*blocks.Block
	order    []string
	revision uint64
}

// ConnectResult describes the outcome of a connect operation
type ConnectResult struct {
	Connection models.ConnectionDocument  `json:"connection"`
	Replaced   *models.ConnectionDocument `json:"replaced,omitempty"`
}

// UpdateResult describes the outcome of a block update
type UpdateResult struct {
	Block    models.BlockDocument        `json:"block"`
	Detached []models.ConnectionDocument `json:"detached,omitempty"`
}

// New creates an empty project
func New(id, name string, registry *blocks.Registry) *Project {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	return &Project{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		registry:  registry,
		blocks:    make(map[string]*blocks.Block),
	}
}

// Registry returns the variant registry used to build blocks
func (p *Project) Registry() *blocks.Registry {
	return p.registry
}

func (p *Project) touch() {
	p.UpdatedAt = time.Now().UTC()
	p.revision++
}

// Revision counts the edits applied to the project in memory
func (p *Project) Revision() uint64 {
	return p.revision
}

// AddBlock creates a block of the given type and adds it to the project
func (p *Project) AddBlock(t blocks.Type, name string, x, y float64, cfg models.BlockConfig) (*blocks.Block, error) {
	if name == "" {
		name = fmt.Sprintf("%s %d", t, len(p.order)+1)
	}
	b, err := p.registry.New(t, uuid.New().String(), name)
	if err != nil {
		return nil, err
	}
	b.X, b.Y = x, y
	if !cfg.IsEmpty() {
		if err := b.Configure(cfg); err != nil {
			return nil, err
		}
	}
	if err := p.Insert(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Insert adds an already constructed block
func (p *Project) Insert(b *blocks.Block) error {
	if _, exists := p.blocks[b.ID]; exists {
		return &blocks.GraphDefinitionError{Op: "add_block", BlockID: b.ID, Err: blocks.ErrDuplicateBlock}
	}
	p.blocks[b.ID] = b
	p.order = append(p.order, b.ID)
	p.touch()
	return nil
}

// Block returns a member block
func (p *Project) Block(id string) (*blocks.Block, error) {
	b, ok := p.blocks[id]
	if !ok {
		return nil, &blocks.GraphDefinitionError{Op: "get_block", BlockID: id, Err: blocks.ErrBlockNotFound}
	}
	return b, nil
}

// Blocks returns member blocks in insertion order
func (p *Project) Blocks() []*blocks.Block {
	out := make([]*blocks.Block, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.blocks[id])
	}
	return out
}

// Len returns the number of blocks
func (p *Project) Len() int {
	return len(p.order)
}

// BlocksOfType returns member blocks of one type in insertion order
func (p *Project) BlocksOfType(t blocks.Type) []*blocks.Block {
	var out []*blocks.Block
	for _, id := range p.order {
		if b := p.blocks[id]; b.Type() == t {
			out = append(out, b)
		}
	}
	return out
}

// RemoveBlock removes a block and every connector touching it
func (p *Project) RemoveBlock(id string) ([]models.ConnectionDocument, error) {
	b, err := p.Block(id)
	if err != nil {
		return nil, err
	}
	removed := documents(b.DetachAll())
	delete(p.blocks, id)
	for i, existing := range p.order {
		if existing == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.touch()
	return removed, nil
}

// UpdateBlock applies a partial update. Variant config is applied before
// input values so that values can target ports the config creates.
// Input keys are checked before any value is written and presentation
// fields are applied last, so a rejected patch leaves them untouched.
// A config change that succeeded stays applied and marks the project updated.
func (p *Project) UpdateBlock(id string, patch models.BlockPatch) (*UpdateResult, error) {
	b, err := p.Block(id)
	if err != nil {
		return nil, err
	}

	if patch.Config.IsEmpty() {
		if err := checkInputKeys(b, patch.Inputs); err != nil {
			return nil, err
		}
	}

	before := connectorsOf(b)
	if !patch.Config.IsEmpty() {
		if err := b.Configure(patch.Config); err != nil {
			return nil, err
		}
		if err := checkInputKeys(b, patch.Inputs); err != nil {
			p.touch()
			return nil, err
		}
	}
	for k, v := range patch.Inputs {
		if err := b.SetInput(k, v); err != nil {
			return nil, err
		}
	}

	if patch.Name != nil {
		b.Name = *patch.Name
	}
	if patch.X != nil {
		b.X = *patch.X
	}
	if patch.Y != nil {
		b.Y = *patch.Y
	}
	if patch.MenuOpen != nil {
		b.MenuOpen = *patch.MenuOpen
	}
	p.touch()

	return &UpdateResult{Block: b.Document(), Detached: detachedSince(before, b)}, nil
}

func checkInputKeys(b *blocks.Block, inputs map[string]any) error {
	for k := range inputs {
		if !b.HasInput(k) {
			return &blocks.GraphDefinitionError{Op: "update_block", BlockID: b.ID, Port: blocks.DirectionInput, Key: k, Err: blocks.ErrPortNotFound}
		}
	}
	return nil
}

// Connect wires an output of one member block to an input of another
func (p *Project) Connect(sourceID, outputKey, targetID, inputKey string, transform blocks.TransformFunc) (*ConnectResult, error) {
	src, err := p.Block(sourceID)
	if err != nil {
		return nil, err
	}
	tgt, err := p.Block(targetID)
	if err != nil {
		return nil, err
	}
	conn, replaced, err := src.Connect(outputKey, tgt, inputKey, transform)
	if err != nil {
		return nil, err
	}
	result := &ConnectResult{Connection: conn.Document()}
	if replaced != nil {
		doc := replaced.Document()
		result.Replaced = &doc
		log.Printf("🔁 [PROJECT] Input %s.%s rebound: replaced %s", targetID, inputKey, replaced)
	}
	p.touch()
	return result, nil
}

// Disconnect removes a connector between member blocks
func (p *Project) Disconnect(sourceID, outputKey, targetID, inputKey string) (bool, error) {
	src, err := p.Block(sourceID)
	if err != nil {
		return false, err
	}
	tgt, err := p.Block(targetID)
	if err != nil {
		return false, err
	}
	ok := src.Disconnect(outputKey, tgt, inputKey)
	if ok {
		p.touch()
	}
	return ok, nil
}

// Connectors returns every connector in source-block order
func (p *Project) Connectors() []*blocks.Connector {
	var out []*blocks.Connector
	for _, id := range p.order {
		out = append(out, p.blocks[id].Outgoing()...)
	}
	return out
}

// ToggleVisibility flips the hidden flag of a block port
func (p *Project) ToggleVisibility(id string, dir blocks.Direction, key string) (bool, error) {
	b, err := p.Block(id)
	if err != nil {
		return false, err
	}
	hidden, err := b.ToggleVisibility(dir, key)
	if err != nil {
		return false, err
	}
	p.touch()
	return hidden, nil
}

// SyncPorts reshapes an externally defined block to the given port keys
func (p *Project) SyncPorts(id string, inputs, outputs []string) (*UpdateResult, error) {
	b, err := p.Block(id)
	if err != nil {
		return nil, err
	}
	syncer, ok := b.Variant().(blocks.PortSyncer)
	if !ok {
		return nil, fmt.Errorf("sync ports on block %s (%s): %w", id, b.Type(), ErrUnsupported)
	}
	before := connectorsOf(b)
	if err := syncer.SyncPorts(b, inputs, outputs); err != nil {
		return nil, err
	}
	p.touch()

	return &UpdateResult{Block: b.Document(), Detached: detachedSince(before, b)}, nil
}

// SetUserInput writes an externally supplied output value on a block whose
// ports are defined externally
func (p *Project) SetUserInput(id, key string, value any) error {
	b, err := p.Block(id)
	if err != nil {
		return err
	}
	if _, ok := b.Variant().(blocks.PortSyncer); !ok {
		return fmt.Errorf("user input on block %s (%s): %w", id, b.Type(), ErrUnsupported)
	}
	if !b.SetOutput(key, value) {
		return &blocks.GraphDefinitionError{Op: "user_input", BlockID: id, Port: blocks.DirectionOutput, Key: key, Err: blocks.ErrPortNotFound}
	}
	p.touch()
	return nil
}

// Summary returns the list view of the project
func (p *Project) Summary() models.ProjectSummary {
	return models.ProjectSummary{
		ID:         p.ID,
		Name:       p.Name,
		BlockCount: len(p.order),
		UpdatedAt:  p.UpdatedAt,
	}
}

func connectorsOf(b *blocks.Block) []*blocks.Connector {
	return append(b.Incoming(), b.Outgoing()...)
}

// detachedSince lists connectors of before that b no longer holds
func detachedSince(before []*blocks.Connector, b *blocks.Block) []models.ConnectionDocument {
	current := make(map[*blocks.Connector]bool)
	for _, c := range connectorsOf(b) {
		current[c] = true
	}
	var out []models.ConnectionDocument
	for _, c := range before {
		if !current[c] {
			out = append(out, c.Document())
		}
	}
	return out
}

func documents(conns []*blocks.Connector) []models.ConnectionDocument {
	out := make([]models.ConnectionDocument, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Document())
	}
	return out
}
