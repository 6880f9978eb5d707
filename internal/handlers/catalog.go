package handlers

import (
	"github.com/gofiber/fiber/v2"

	"nodelink/internal/blocks"
	"nodelink/internal/catalog"
)

// CatalogHandler serves the API schema catalog and the block type list
type CatalogHandler struct {
	catalog  *catalog.Catalog
	registry *blocks.Registry
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(c *catalog.Catalog, registry *blocks.Registry) *CatalogHandler {
	return &CatalogHandler{catalog: c, registry: registry}
}

// ListSchemas returns every schema, optionally filtered by category
// GET /api/schemas?category=
func (h *CatalogHandler) ListSchemas(c *fiber.Ctx) error {
	category := c.Query("category")
	schemas := make([]*catalog.Schema, 0)
	for _, s := range h.catalog.List() {
		if category == "" || s.Category == category {
			schemas = append(schemas, s)
		}
	}
	return c.JSON(fiber.Map{
		"schemas":    schemas,
		"categories": h.catalog.Categories(),
		"total":      len(schemas),
	})
}

// GetSchema returns one schema
// GET /api/schemas/:key
func (h *CatalogHandler) GetSchema(c *fiber.Ctx) error {
	s, ok := h.catalog.Get(c.Params("key"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Schema not found",
		})
	}
	return c.JSON(s)
}

type blockTypeInfo struct {
	Type              string   `json:"type"`
	Inputs            []string `json:"inputs"`
	Outputs           []string `json:"outputs"`
	ExternalPorts     bool     `json:"external_ports,omitempty"`
	SupportsIteration *bool    `json:"supports_iteration,omitempty"`
}

// ListBlockTypes returns the registered block types with their initial ports
// GET /api/block-types
func (h *CatalogHandler) ListBlockTypes(c *fiber.Ctx) error {
	types := make([]blockTypeInfo, 0)
	for _, t := range h.registry.Types() {
		b, err := h.registry.New(t, "", "")
		if err != nil {
			continue
		}
		info := blockTypeInfo{
			Type:    string(t),
			Inputs:  b.InputKeys(),
			Outputs: b.OutputKeys(),
		}
		if _, ok := b.Variant().(blocks.PortSyncer); ok {
			info.ExternalPorts = true
		}
		if it, ok := b.Variant().(blocks.IterationReporter); ok {
			v := it.SupportsIteration()
			info.SupportsIteration = &v
		}
		types = append(types, info)
	}
	return c.JSON(fiber.Map{"block_types": types})
}
