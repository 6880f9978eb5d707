package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"nodelink/internal/execution"
	"nodelink/internal/models"
	"nodelink/internal/services"
)

// ExecutionHandler runs projects and streams their events
type ExecutionHandler struct {
	projects *services.ProjectService
}

// NewExecutionHandler creates a new execution handler
func NewExecutionHandler(projects *services.ProjectService) *ExecutionHandler {
	return &ExecutionHandler{projects: projects}
}

// runOptions merges the optional body with the ?method= query parameter
func runOptions(c *fiber.Ctx) (execution.RunOptions, error) {
	var req models.ExecuteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return execution.RunOptions{}, fmt.Errorf("invalid request body")
		}
	}
	if m := c.Query("method"); m != "" {
		req.Method = m
	}
	return toRunOptions(req.StartBlockIDs, req.Method)
}

func toRunOptions(startIDs []string, method string) (execution.RunOptions, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	switch method {
	case "", execution.DiscoveryBFS, execution.DiscoveryDFS:
	default:
		return execution.RunOptions{}, fmt.Errorf("method must be %s or %s", execution.DiscoveryBFS, execution.DiscoveryDFS)
	}
	return execution.RunOptions{StartBlockIDs: startIDs, Discovery: method}, nil
}

type runOutcome struct {
	result *execution.RunResult
	err    error
}

// Execute runs a project and streams its events as server-sent events.
// Errors raised before the first event are returned as plain JSON errors.
// POST /api/projects/:id/execute?method=bfs|dfs
func (h *ExecutionHandler) Execute(c *fiber.Ctx) error {
	projectID := c.Params("id")
	opts, err := runOptions(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	// fasthttp finishes the handler before the body streams, so the run gets
	// its own context and a dropped client cancels it through the service
	events := make(chan models.ExecutionEvent, 64)
	done := make(chan runOutcome, 1)
	go func() {
		res, err := h.projects.Execute(context.Background(), projectID, opts, events)
		close(events)
		done <- runOutcome{res, err}
	}()

	first, ok := <-events
	if !ok {
		out := <-done
		if out.err == nil {
			out.err = fmt.Errorf("run finished without events")
		}
		return sendError(c, out.err)
	}

	log.Printf("📡 [EXECUTE] Streaming run of project %s", projectID)
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		writeOK := writeSSE(w, first)
		cancelled := false
		for ev := range events {
			if writeOK {
				writeOK = writeSSE(w, ev)
			}
			if !writeOK && !cancelled {
				cancelled = true
				log.Printf("⚠️ [EXECUTE] Client left the stream of project %s, cancelling run", projectID)
				h.projects.Cancel(projectID)
			}
		}
		out := <-done
		if out.err != nil {
			log.Printf("⏹️ [EXECUTE] Run of project %s ended: %v", projectID, out.err)
		}
	}))
	return nil
}

// writeSSE writes one event frame and flushes it. It returns false once
// the client is gone.
func writeSSE(w *bufio.Writer, ev models.ExecutionEvent) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("⚠️ [EXECUTE] Failed to encode %s event: %v", ev.Type, err)
		return true
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return false
	}
	return w.Flush() == nil
}

// Cancel stops the active run of a project
// POST /api/projects/:id/cancel
func (h *ExecutionHandler) Cancel(c *fiber.Ctx) error {
	if !h.projects.Cancel(c.Params("id")) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No active run for this project",
		})
	}
	return c.JSON(fiber.Map{"cancelled": true})
}
