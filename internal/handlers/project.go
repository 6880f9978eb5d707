package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"nodelink/internal/blocks"
	"nodelink/internal/models"
	"nodelink/internal/project"
	"nodelink/internal/services"
)

// ProjectHandler handles project and block editing requests
type ProjectHandler struct {
	projects *services.ProjectService
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projects *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// Create creates an empty project
// POST /api/projects
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var req models.CreateProjectRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}

	doc, err := h.projects.Create(c.UserContext(), strings.TrimSpace(req.Name))
	if err != nil {
		return sendError(c, err)
	}
	log.Printf("📁 [PROJECT] Created project %s (%s)", doc.ID, doc.Name)
	return c.Status(fiber.StatusCreated).JSON(doc)
}

// CreateDemo creates the sample project
// POST /api/projects/demo
func (h *ProjectHandler) CreateDemo(c *fiber.Ctx) error {
	doc, err := h.projects.CreateDemo(c.UserContext())
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

// List returns project summaries
// GET /api/projects
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	list, err := h.projects.List(c.UserContext())
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{
		"projects": list,
		"total":    len(list),
	})
}

// Get returns the project document
// GET /api/projects/:id
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	var doc models.ProjectDocument
	err := h.projects.ReadProject(c.UserContext(), c.Params("id"), func(p *project.Project) error {
		doc = p.Document()
		return nil
	})
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(doc)
}

// Replace loads a whole document into the project
// PUT /api/projects/:id
func (h *ProjectHandler) Replace(c *fiber.Ctx) error {
	var doc models.ProjectDocument
	if err := c.BodyParser(&doc); err != nil {
		return badRequest(c, "Invalid project document")
	}
	out, err := h.projects.Replace(c.UserContext(), c.Params("id"), doc)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(out)
}

// Delete removes a project
// DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	if err := h.projects.Delete(c.UserContext(), c.Params("id")); err != nil {
		return sendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Save persists the project now
// POST /api/projects/:id/save
func (h *ProjectHandler) Save(c *fiber.Ctx) error {
	doc, err := h.projects.Save(c.UserContext(), c.Params("id"))
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{
		"saved":      true,
		"id":         doc.ID,
		"updated_at": doc.UpdatedAt,
	})
}

// Graph returns the canvas view
// GET /api/projects/:id/graph
func (h *ProjectHandler) Graph(c *fiber.Ctx) error {
	var view models.GraphView
	err := h.projects.ReadProject(c.UserContext(), c.Params("id"), func(p *project.Project) error {
		view = p.GraphView()
		return nil
	})
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(view)
}

// Runs returns the recent run records
// GET /api/projects/:id/runs?limit=
func (h *ProjectHandler) Runs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	runs, err := h.projects.Runs(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{"runs": runs})
}

// AddBlock adds a block
// POST /api/projects/:id/blocks
func (h *ProjectHandler) AddBlock(c *fiber.Ctx) error {
	var req models.AddBlockRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.BlockType == "" {
		return badRequest(c, "block_type is required")
	}

	var doc models.BlockDocument
	err := h.projects.WithProject(c.UserContext(), c.Params("id"), func(p *project.Project) error {
		b, err := p.AddBlock(blocks.Type(strings.ToUpper(req.BlockType)), req.Name, req.X, req.Y, req.Config)
		if err != nil {
			return err
		}
		for k, v := range req.Inputs {
			if err := b.SetInput(k, v); err != nil {
				p.RemoveBlock(b.ID)
				return err
			}
		}
		doc = b.Document()
		return nil
	})
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

// UpdateBlock applies a partial block update
// PATCH /api/projects/:id/blocks/:blockId
func (h *ProjectHandler) UpdateBlock(c *fiber.Ctx) error {
	var patch models.BlockPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest(c, "Invalid request body")
	}

	var result *project.UpdateResult
	err := h.projects.WithProject(c.UserContext(), c.Params("id"), func(p *project.Project) error {
		var err error
		result, err = p.UpdateBlock(c.Params("blockId"), patch)
		return err
	})
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(result)
}

// RemoveBlock removes a block and its connectors
// DELETE /api/projects/:id/blocks/:blockId
func (h *ProjectHandler) RemoveBlock(c *fiber.Ctx) error {
	var removed []models.ConnectionDocument
	err := h.projects.WithProject(c.UserContext(), c.Params("id"), func(p *project.Project) error {
		var err error
		removed, err = p.RemoveBlock(c.Params("blockId"))
		return err
	})
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{
		"removed":     c.Params("blockId"),
		"connections": removed,
	})
}

// ToggleVisibility flips the hidden flag of a port
// POST /api/projects/:id/blocks/:blockId/visibility
func (h *ProjectHandler) ToggleVisibility(c *fiber.Ctx) error {
	var req models.VisibilityRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	dir := blocks.Direction(strings.ToLower(req.Direction))
	if dir != blocks.DirectionInput && dir != blocks.DirectionOutput {
		return badRequest(c, "direction must be input or output")
	}
	if req.Key == "" {
		return badRequest(c, "key is required")
	}

	var hidden bool
	err := h.projects.WithProject(c.UserContext(), c.Params("id"), func(p *project.Project) error {
		var err error
		hidden, err = p.ToggleVisibility(c.Params("blockId"), dir, req.Key)
		return err
	})
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{
		"direction": dir,
		"key":       req.Key,
		"hidden":    hidden,
	})
}

// SyncPorts reshapes a REACT block to the ports its component declares
// POST /api/projects/:id/blocks/:blockId/ports
func (h *ProjectHandler) SyncPorts(c *fiber.Ctx) error {
	var req models.SyncPortsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	var result *project.UpdateResult
	err := h.projects.WithProject(c.UserContext(), c.Params("id"), func(p *project.Project) error {
		var err error
		result, err = p.SyncPorts(c.Params("blockId"), req.Inputs, req.Outputs)
		return err
	})
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(result)
}

// SetUserInput writes a value typed in the UI to a REACT block output
// POST /api/projects/:id/blocks/:blockId/user-input
func (h *ProjectHandler) SetUserInput(c *fiber.Ctx) error {
	var req models.UserInputRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Key == "" {
		req.Key = "user_input"
	}

	err := h.projects.WithProject(c.UserContext(), c.Params("id"), func(p *project.Project) error {
		return p.SetUserInput(c.Params("blockId"), req.Key, req.Value)
	})
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{
		"key":   req.Key,
		"value": req.Value,
	})
}

// Connect wires an output to an input, replacing any existing binding
// POST /api/projects/:id/connections
func (h *ProjectHandler) Connect(c *fiber.Ctx) error {
	var req models.ConnectionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if msg := req.Validate(); msg != "" {
		return badRequest(c, msg)
	}

	result, err := h.projects.Connect(c.UserContext(), c.Params("id"), req.SourceID, req.SourceOutput, req.TargetID, req.TargetInput)
	if err != nil {
		return sendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// Disconnect removes a connector
// DELETE /api/projects/:id/connections
func (h *ProjectHandler) Disconnect(c *fiber.Ctx) error {
	var req models.ConnectionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if msg := req.Validate(); msg != "" {
		return badRequest(c, msg)
	}

	var removed bool
	err := h.projects.WithProject(c.UserContext(), c.Params("id"), func(p *project.Project) error {
		var err error
		removed, err = p.Disconnect(req.SourceID, req.SourceOutput, req.TargetID, req.TargetInput)
		return err
	})
	if err != nil {
		return sendError(c, err)
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Connection not found",
		})
	}
	return c.JSON(fiber.Map{"removed": true})
}

// RespondDialogue answers a Dialogue block that is waiting for the user
// POST /api/projects/:id/dialogue/:blockId
func (h *ProjectHandler) RespondDialogue(c *fiber.Ctx) error {
	var req models.DialogueResponseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.projects.RespondDialogue(c.Params("id"), c.Params("blockId"), req.Response); err != nil {
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{"delivered": true})
}
