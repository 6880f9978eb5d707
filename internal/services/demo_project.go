package services

import (
	"fmt"

	"nodelink/internal/blocks"
	"nodelink/internal/catalog"
	"nodelink/internal/execution"
	"nodelink/internal/models"
	"nodelink/internal/project"
)

// DemoEchoURL is the endpoint the demo API block calls
const DemoEchoURL = "https://postman-echo.com/get"

// toParams wraps a value as the query parameter "message"
func toParams(v any) any {
	return map[string]any{"message": v}
}

// BuildDemoProject creates the sample graph:
// START -> Greeter (LOGIC add) <- user name (REACT), Greeter -> Echo API -> Result Display (REACT).
// The Greeter result reaches the API params through a connector transform.
func BuildDemoProject(registry *blocks.Registry) (*project.Project, error) {
	p := project.New("", "Demo Project", registry)

	start, err := p.AddBlock(blocks.TypeStart, "Start", 100, 260, models.BlockConfig{})
	if err != nil {
		return nil, err
	}
	input, err := p.AddBlock(blocks.TypeReact, "User Name Input", 100, 100, models.BlockConfig{})
	if err != nil {
		return nil, err
	}
	greeter, err := p.AddBlock(blocks.TypeLogic, "Greeter", 300, 100, models.BlockConfig{
		Operation: models.StringPtr(execution.OpAdd),
	})
	if err != nil {
		return nil, err
	}
	api, err := p.AddBlock(blocks.TypeAPI, "Echo API", 500, 100, models.BlockConfig{
		SchemaKey: models.StringPtr(catalog.CustomKey),
		URL:       models.StringPtr(DemoEchoURL),
	})
	if err != nil {
		return nil, err
	}
	display, err := p.AddBlock(blocks.TypeReact, "Result Display", 700, 100, models.BlockConfig{})
	if err != nil {
		return nil, err
	}

	if err := p.SetUserInput(input.ID, "user_input", "World"); err != nil {
		return nil, err
	}
	if err := greeter.SetInput("val_a", "Hello "); err != nil {
		return nil, err
	}
	if err := api.SetInput("url", DemoEchoURL); err != nil {
		return nil, err
	}

	wiring := []struct {
		src, out, dst, in string
		transform         blocks.TransformFunc
	}{
		{start.ID, "result", greeter.ID, blocks.TriggerKey, nil},
		{input.ID, "user_input", greeter.ID, "val_b", nil},
		{greeter.ID, "result", api.ID, "params", toParams},
		{api.ID, execution.OutputResponseJSON, display.ID, "display_data", nil},
	}
	for _, w := range wiring {
		if _, err := p.Connect(w.src, w.out, w.dst, w.in, w.transform); err != nil {
			return nil, fmt.Errorf("failed to wire demo project: %w", err)
		}
	}
	return p, nil
}
