package models

import "encoding/json"

// Event types streamed while a project graph runs
const (
	EventStart    = "start"
	EventProgress = "progress"
	EventError    = "error"
	EventComplete = "complete"
	EventDialogue = "dialogue"
)

// ExecutionEvent is one entry of the ordered run event stream.
// The stream is terminated exactly once by a complete event.
type ExecutionEvent struct {
	Type        string
	BlockID     string
	Name        string
	BlockType   string
	Inputs      map[string]any
	Outputs     map[string]any
	Error       string
	Message     string
	MessageHTML string
	Cancelled   bool
}

// MarshalJSON emits only the fields that belong to the event type
func (e ExecutionEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventStart:
		return json.Marshal(struct {
			Type      string         `json:"type"`
			BlockID   string         `json:"block_id"`
			BlockType string         `json:"block_type"`
			Inputs    map[string]any `json:"inputs"`
		}{e.Type, e.BlockID, e.BlockType, nonNilMap(e.Inputs)})
	case EventProgress:
		return json.Marshal(struct {
			Type      string         `json:"type"`
			BlockID   string         `json:"block_id"`
			Name      string         `json:"name"`
			BlockType string         `json:"block_type"`
			Outputs   map[string]any `json:"outputs"`
			Inputs    map[string]any `json:"inputs"`
		}{e.Type, e.BlockID, e.Name, e.BlockType, nonNilMap(e.Outputs), nonNilMap(e.Inputs)})
	case EventError:
		return json.Marshal(struct {
			Type    string `json:"type"`
			BlockID string `json:"block_id"`
			Name    string `json:"name"`
			Error   string `json:"error"`
		}{e.Type, e.BlockID, e.Name, e.Error})
	case EventDialogue:
		return json.Marshal(struct {
			Type        string `json:"type"`
			BlockID     string `json:"block_id"`
			Name        string `json:"name"`
			Message     string `json:"message"`
			MessageHTML string `json:"message_html,omitempty"`
		}{e.Type, e.BlockID, e.Name, e.Message, e.MessageHTML})
	default:
		return json.Marshal(struct {
			Type      string `json:"type"`
			Cancelled bool   `json:"cancelled,omitempty"`
		}{e.Type, e.Cancelled})
	}
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
