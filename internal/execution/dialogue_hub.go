package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	// ErrNoPendingDialogue is returned when nothing is waiting for the response
	ErrNoPendingDialogue = errors.New("no dialogue is waiting for a response")
	// ErrDialogueAnswered is returned when a response was already delivered
	ErrDialogueAnswered = errors.New("dialogue already answered")
	// ErrDialogueTimeout is returned when no response arrived in time
	ErrDialogueTimeout = errors.New("timed out waiting for dialogue response")
)

// DialogueHub parks Dialogue blocks until the UI answers them.
// Each waiting block owns a single-slot channel keyed by project and block ID.
type DialogueHub struct {
	mu      sync.Mutex
	waiting map[string]chan any
	timeout time.Duration
	md      goldmark.Markdown
	rec     Recorder
}

// NewDialogueHub creates a hub. A timeout of zero waits until cancelled.
func NewDialogueHub(timeout time.Duration, rec Recorder) *DialogueHub {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &DialogueHub{
		waiting: make(map[string]chan any),
		timeout: timeout,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		rec:     rec,
	}
}

func dialogueKey(projectID, blockID string) string {
	return projectID + "/" + blockID
}

// Register parks a dialogue so Respond can reach it. It must be called
// before the UI is told about the dialogue. The returned release func
// removes the registration.
func (h *DialogueHub) Register(projectID, blockID string) (<-chan any, func()) {
	key := dialogueKey(projectID, blockID)
	ch := make(chan any, 1)

	h.mu.Lock()
	h.waiting[key] = ch
	h.mu.Unlock()
	h.rec.DialogueWaiting(1)

	var once sync.Once
	release := func() {
		once.Do(func() {
			h.mu.Lock()
			if h.waiting[key] == ch {
				delete(h.waiting, key)
			}
			h.mu.Unlock()
			h.rec.DialogueWaiting(-1)
		})
	}
	return ch, release
}

// Await blocks until a response arrives on ch, ctx is cancelled or the hub
// timeout fires.
func (h *DialogueHub) Await(ctx context.Context, ch <-chan any, projectID, blockID string) (any, error) {
	var timeout <-chan time.Time
	if h.timeout > 0 {
		timer := time.NewTimer(h.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	log.Printf("💬 [DIALOGUE] Block %s in project %s waiting for response", blockID, projectID)

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, fmt.Errorf("%w after %s", ErrDialogueTimeout, h.timeout)
	}
}

// Respond delivers a response to a waiting Dialogue block
func (h *DialogueHub) Respond(projectID, blockID string, response any) error {
	h.mu.Lock()
	ch, ok := h.waiting[dialogueKey(projectID, blockID)]
	h.mu.Unlock()
	if !ok {
		return ErrNoPendingDialogue
	}

	select {
	case ch <- response:
		log.Printf("💬 [DIALOGUE] Response delivered to block %s", blockID)
		return nil
	default:
		return ErrDialogueAnswered
	}
}

// Pending reports whether a block is waiting
func (h *DialogueHub) Pending(projectID, blockID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.waiting[dialogueKey(projectID, blockID)]
	return ok
}

// RenderHTML converts a markdown prompt for display
func (h *DialogueHub) RenderHTML(message string) string {
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(message), &buf); err != nil {
		return ""
	}
	return buf.String()
}
