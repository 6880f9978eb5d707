package models

// GraphView is the canvas representation of a project
type GraphView struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// GraphNode describes one block on the canvas
type GraphNode struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	BlockType         string         `json:"block_type"`
	X                 float64        `json:"x"`
	Y                 float64        `json:"y"`
	Inputs            []PortView     `json:"inputs"`
	Outputs           []PortView     `json:"outputs"`
	HiddenInputs      []string       `json:"hidden_inputs"`
	HiddenOutputs     []string       `json:"hidden_outputs"`
	MenuOpen          bool           `json:"menu_open"`
	SupportsIteration *bool          `json:"supports_iteration,omitempty"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// PortView is a port with its current value and metadata
type PortView struct {
	Key         string         `json:"key"`
	Value       any            `json:"value"`
	DataType    string         `json:"data_type"`
	Hidden      bool           `json:"hidden"`
	Core        bool           `json:"core,omitempty"`
	Required    bool           `json:"required,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
	Description string         `json:"description,omitempty"`
	Group       string         `json:"group,omitempty"`
	Validation  map[string]any `json:"validation,omitempty"`
}

// GraphEdge is one connector in canvas form
type GraphEdge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle"`
}
