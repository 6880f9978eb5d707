package models

import "time"

// ProjectDocument is the persisted shape of a project graph.
// It round-trips through JSON (HTTP, SQL column) and BSON (MongoDB).
type ProjectDocument struct {
	ID          string               `json:"id" bson:"_id"`
	Name        string               `json:"name" bson:"name"`
	Blocks      []BlockDocument      `json:"blocks" bson:"blocks"`
	Connections []ConnectionDocument `json:"connections" bson:"connections"`
	CreatedAt   time.Time            `json:"created_at,omitempty" bson:"createdAt"`
	UpdatedAt   time.Time            `json:"updated_at,omitempty" bson:"updatedAt"`
}

// BlockDocument is one block inside a ProjectDocument
type BlockDocument struct {
	ID            string      `json:"id" bson:"id"`
	Name          string      `json:"name" bson:"name"`
	BlockType     string      `json:"block_type" bson:"block_type"`
	X             float64     `json:"x" bson:"x"`
	Y             float64     `json:"y" bson:"y"`
	Inputs        []PortValue `json:"inputs" bson:"inputs"`
	Outputs       []PortValue `json:"outputs,omitempty" bson:"outputs,omitempty"`
	HiddenInputs  []string    `json:"hidden_inputs" bson:"hidden_inputs"`
	HiddenOutputs []string    `json:"hidden_outputs" bson:"hidden_outputs"`
	MenuOpen      bool        `json:"menu_open" bson:"menu_open"`

	// Variant-specific configuration, flattened into the block document
	BlockConfig `bson:",inline"`
}

// PortValue is a single key/value pair of a block port
type PortValue struct {
	Key   string `json:"key" bson:"key"`
	Value any    `json:"value" bson:"value"`
}

// BlockConfig carries the variant-specific fields of a block.
// Pointer fields distinguish "not set" from zero values when patching.
type BlockConfig struct {
	SchemaKey          *string  `json:"schema_key,omitempty" bson:"schema_key,omitempty"`
	URL                *string  `json:"url,omitempty" bson:"url,omitempty"`
	Method             *string  `json:"method,omitempty" bson:"method,omitempty"`
	Operation          *string  `json:"operation,omitempty" bson:"operation,omitempty"`
	TransformationType *string  `json:"transformation_type,omitempty" bson:"transformation_type,omitempty"`
	Fields             *string  `json:"fields,omitempty" bson:"fields,omitempty"`
	Template           *string  `json:"template,omitempty" bson:"template,omitempty"`
	Delay              *float64 `json:"delay,omitempty" bson:"delay,omitempty"`
	Message            *string  `json:"message,omitempty" bson:"message,omitempty"`
	SelectedKey        *string  `json:"selected_key,omitempty" bson:"selected_key,omitempty"`
	AvailableKeys      []string `json:"available_keys,omitempty" bson:"available_keys,omitempty"` // read-only, derived
}

// IsEmpty reports whether no variant field is set
func (c BlockConfig) IsEmpty() bool {
	return c.SchemaKey == nil && c.URL == nil && c.Method == nil && c.Operation == nil &&
		c.TransformationType == nil && c.Fields == nil && c.Template == nil &&
		c.Delay == nil && c.Message == nil && c.SelectedKey == nil
}

// ConnectionDocument is one persisted connector.
// Connector transforms are never persisted.
type ConnectionDocument struct {
	SourceID     string `json:"source_id" bson:"source_id"`
	SourceOutput string `json:"source_output" bson:"source_output"`
	TargetID     string `json:"target_id" bson:"target_id"`
	TargetInput  string `json:"target_input" bson:"target_input"`
}

// ProjectSummary is the list view of a stored project
type ProjectSummary struct {
	ID         string    `json:"id" bson:"_id"`
	Name       string    `json:"name" bson:"name"`
	BlockCount int       `json:"block_count" bson:"blockCount"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updatedAt"`
}

// BlockPatch is a partial update of a block.
// Nil fields are left untouched.
type BlockPatch struct {
	Name     *string        `json:"name,omitempty"`
	X        *float64       `json:"x,omitempty"`
	Y        *float64       `json:"y,omitempty"`
	MenuOpen *bool          `json:"menu_open,omitempty"`
	Inputs   map[string]any `json:"inputs,omitempty"`
	Config   BlockConfig    `json:"config"`
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}

// Float64Ptr returns a pointer to f
func Float64Ptr(f float64) *float64 {
	return &f
}
