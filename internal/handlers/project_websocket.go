package handlers

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"nodelink/internal/execution"
	"nodelink/internal/models"
	"nodelink/internal/services"
)

const (
	wsReadTimeout  = 360 * time.Second
	wsPingInterval = 20 * time.Second
)

// ProjectClientMessage is a message from the editor
type ProjectClientMessage struct {
	Type          string   `json:"type"` // run, cancel, dialogue_response
	StartBlockIDs []string `json:"start_block_ids,omitempty"`
	Method        string   `json:"method,omitempty"`
	BlockID       string   `json:"block_id,omitempty"`
	Response      any      `json:"response,omitempty"`
}

// ProjectServerMessage is a control message to the editor.
// Run events are sent as models.ExecutionEvent.
type ProjectServerMessage struct {
	Type      string `json:"type"` // connected, error
	ProjectID string `json:"project_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ProjectWebSocketHandler runs projects over a WebSocket and relays their events
type ProjectWebSocketHandler struct {
	projects *services.ProjectService
	metrics  *services.Metrics
}

// NewProjectWebSocketHandler creates a new project WebSocket handler
func NewProjectWebSocketHandler(projects *services.ProjectService) *ProjectWebSocketHandler {
	return &ProjectWebSocketHandler{
		projects: projects,
		metrics:  projects.Metrics(),
	}
}

// safeConn serializes writes; the websocket connection allows a single writer
type safeConn struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	metrics *services.Metrics
}

func (sc *safeConn) writeJSON(msgType string, v interface{}) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics.RecordWebSocketMessage(msgType, "out")
	return sc.conn.WriteJSON(v)
}

func (sc *safeConn) sendError(msg string) {
	sc.writeJSON("error", ProjectServerMessage{Type: "error", Error: msg})
}

// Handle serves one editor connection
// GET /ws/projects/:id
func (h *ProjectWebSocketHandler) Handle(c *websocket.Conn) {
	projectID := c.Params("id")
	connID := uuid.New().String()
	sc := &safeConn{conn: c, metrics: h.metrics}

	h.metrics.RecordWebSocketConnect()
	defer h.metrics.RecordWebSocketDisconnect()

	log.Printf("🔌 [PROJECT-WS] New connection: connID=%s, project=%s", connID, projectID)

	c.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	if err := sc.writeJSON("connected", ProjectServerMessage{Type: "connected", ProjectID: projectID}); err != nil {
		log.Printf("❌ [PROJECT-WS] Failed to send connected message: %v", err)
		return
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				sc.mu.Lock()
				err := c.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
				sc.mu.Unlock()
				if err != nil {
					log.Printf("🏓 [PROJECT-WS] Ping failed for %s: %v", connID, err)
					return
				}
			}
		}
	}()

	// A dropped connection does not stop a run: its result is still recorded
	// and a waiting Dialogue can be answered over HTTP.
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			log.Printf("🔌 [PROJECT-WS] Connection closed for %s: %v", connID, err)
			return
		}
		c.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var msg ProjectClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("⚠️ [PROJECT-WS] Invalid message format from %s: %v", connID, err)
			h.metrics.RecordWebSocketMessage("invalid", "in")
			sc.sendError("Invalid message format")
			continue
		}
		h.metrics.RecordWebSocketMessage(msg.Type, "in")

		switch msg.Type {
		case "run":
			opts, err := toRunOptions(msg.StartBlockIDs, msg.Method)
			if err != nil {
				sc.sendError(err.Error())
				continue
			}
			if h.projects.IsRunning(projectID) {
				sc.sendError(services.ErrRunInProgress.Error())
				continue
			}
			go h.run(sc, projectID, opts)

		case "cancel":
			if !h.projects.Cancel(projectID) {
				sc.sendError("No active run for this project")
			}

		case "dialogue_response":
			if msg.BlockID == "" {
				sc.sendError("block_id is required")
				continue
			}
			if err := h.projects.RespondDialogue(projectID, msg.BlockID, msg.Response); err != nil {
				sc.sendError(err.Error())
			}

		default:
			log.Printf("⚠️ [PROJECT-WS] Unknown message type: %s", msg.Type)
			sc.sendError("Unknown message type: " + msg.Type)
		}
	}
}

// run executes the project and forwards every event to the connection.
// Events keep being drained after a write failure so the run never blocks.
func (h *ProjectWebSocketHandler) run(sc *safeConn, projectID string, opts execution.RunOptions) {
	events := make(chan models.ExecutionEvent, 64)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		writeOK := true
		for ev := range events {
			if writeOK {
				if err := sc.writeJSON(ev.Type, ev); err != nil {
					log.Printf("⚠️ [PROJECT-WS] Stopped relaying project %s: %v", projectID, err)
					writeOK = false
				}
			}
		}
	}()

	result, err := h.projects.Execute(context.Background(), projectID, opts, events)
	close(events)
	<-forwarded

	if result == nil {
		if err != nil {
			sc.sendError(err.Error())
		}
		return
	}
	log.Printf("✅ [PROJECT-WS] Run %s of project %s finished: %s", result.RunID, projectID, result.Status())
}
