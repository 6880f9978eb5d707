package models

// CreateProjectRequest is the body of POST /api/projects
type CreateProjectRequest struct {
	Name string `json:"name"`
}

// AddBlockRequest is the body of POST /api/projects/:id/blocks
type AddBlockRequest struct {
	BlockType string         `json:"block_type"`
	Name      string         `json:"name,omitempty"`
	X         float64        `json:"x"`
	Y         float64        `json:"y"`
	Config    BlockConfig    `json:"config"`
	Inputs    map[string]any `json:"inputs,omitempty"`
}

// ConnectionRequest is the body of the connect and disconnect endpoints
type ConnectionRequest struct {
	SourceID     string `json:"source_id"`
	SourceOutput string `json:"source_output"`
	TargetID     string `json:"target_id"`
	TargetInput  string `json:"target_input"`
}

// Validate reports the first missing field, or "" when the request is complete
func (r ConnectionRequest) Validate() string {
	switch {
	case r.SourceID == "":
		return "source_id is required"
	case r.SourceOutput == "":
		return "source_output is required"
	case r.TargetID == "":
		return "target_id is required"
	case r.TargetInput == "":
		return "target_input is required"
	}
	return ""
}

// VisibilityRequest toggles the hidden flag of one port
type VisibilityRequest struct {
	Direction string `json:"direction"` // input or output
	Key       string `json:"key"`
}

// SyncPortsRequest replaces the dynamic ports of an externally defined block
type SyncPortsRequest struct {
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// UserInputRequest sets an output value from the UI
type UserInputRequest struct {
	Key   string `json:"key,omitempty"` // defaults to user_input
	Value any    `json:"value"`
}

// ExecuteRequest is the optional body of POST /api/projects/:id/execute
type ExecuteRequest struct {
	StartBlockIDs []string `json:"start_block_ids,omitempty"`
	Method        string   `json:"method,omitempty"` // bfs or dfs
}

// DialogueResponseRequest answers a suspended Dialogue block
type DialogueResponseRequest struct {
	Response any `json:"response"`
}
