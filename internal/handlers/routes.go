package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"nodelink/internal/catalog"
	"nodelink/internal/execution"
	"nodelink/internal/services"
)

// RouteDeps are the collaborators the routes are built from
type RouteDeps struct {
	Projects *services.ProjectService
	Catalog  *catalog.Catalog
	Tracker  *execution.ExecutionTracker

	// Optional per-route middleware
	ExecuteLimiter   fiber.Handler
	WebSocketLimiter fiber.Handler
}

func passThrough(c *fiber.Ctx) error { return c.Next() }

// RegisterRoutes mounts the REST API, the run stream and the WebSocket endpoint
func RegisterRoutes(app *fiber.App, deps RouteDeps) {
	executeLimiter := deps.ExecuteLimiter
	if executeLimiter == nil {
		executeLimiter = passThrough
	}
	wsLimiter := deps.WebSocketLimiter
	if wsLimiter == nil {
		wsLimiter = passThrough
	}

	health := NewHealthHandler(deps.Projects, deps.Tracker)
	catalogHandler := NewCatalogHandler(deps.Catalog, deps.Projects.Registry())
	projects := NewProjectHandler(deps.Projects)
	runs := NewExecutionHandler(deps.Projects)
	ws := NewProjectWebSocketHandler(deps.Projects)

	app.Get("/health", health.Handle)

	api := app.Group("/api")
	api.Get("/schemas", catalogHandler.ListSchemas)
	api.Get("/schemas/:key", catalogHandler.GetSchema)
	api.Get("/block-types", catalogHandler.ListBlockTypes)

	api.Post("/projects", projects.Create)
	api.Post("/projects/demo", projects.CreateDemo)
	api.Get("/projects", projects.List)
	api.Get("/projects/:id", projects.Get)
	api.Put("/projects/:id", projects.Replace)
	api.Delete("/projects/:id", projects.Delete)
	api.Post("/projects/:id/save", projects.Save)
	api.Get("/projects/:id/graph", projects.Graph)
	api.Get("/projects/:id/runs", projects.Runs)

	api.Post("/projects/:id/blocks", projects.AddBlock)
	api.Patch("/projects/:id/blocks/:blockId", projects.UpdateBlock)
	api.Delete("/projects/:id/blocks/:blockId", projects.RemoveBlock)
	api.Post("/projects/:id/blocks/:blockId/visibility", projects.ToggleVisibility)
	api.Post("/projects/:id/blocks/:blockId/ports", projects.SyncPorts)
	api.Post("/projects/:id/blocks/:blockId/user-input", projects.SetUserInput)

	api.Post("/projects/:id/connections", projects.Connect)
	api.Delete("/projects/:id/connections", projects.Disconnect)

	api.Post("/projects/:id/execute", executeLimiter, runs.Execute)
	api.Post("/projects/:id/cancel", runs.Cancel)
	api.Post("/projects/:id/dialogue/:blockId", projects.RespondDialogue)

	app.Use("/ws", wsLimiter, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/projects/:id", websocket.New(ws.Handle))
}
