package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"nodelink/internal/blocks"
	"nodelink/internal/execution"
	"nodelink/internal/project"
	"nodelink/internal/services"
)

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var defErr *blocks.GraphDefinitionError
	switch {
	case errors.Is(err, services.ErrProjectNotFound),
		errors.Is(err, blocks.ErrBlockNotFound),
		errors.Is(err, execution.ErrNoPendingDialogue):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrProjectBusy),
		errors.Is(err, services.ErrRunInProgress),
		errors.Is(err, execution.ErrDialogueAnswered):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrShuttingDown):
		return fiber.StatusServiceUnavailable
	case errors.As(err, &defErr),
		errors.Is(err, project.ErrUnsupported),
		errors.Is(err, execution.ErrNoStartBlocks):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// sendError writes {"error": msg} with the status that matches err
func sendError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("❌ [API] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}
