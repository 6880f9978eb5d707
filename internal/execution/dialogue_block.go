package execution

import (
	"context"
	"errors"

	"nodelink/internal/blocks"
	"nodelink/internal/models"
)

// DialogueBlock asks the user a question and suspends the run until the UI answers
type DialogueBlock struct {
	message string
	hub     *DialogueHub
}

func (d *DialogueBlock) Type() blocks.Type { return blocks.TypeDialogue }

func (d *DialogueBlock) RegisterPorts(b *blocks.Block) {
	b.RegisterCoreInput(blocks.TriggerKey, nil, blocks.PortMeta{Hidden: true})
	b.RegisterCoreInput("message", d.message, blocks.PortMeta{DataType: blocks.DataString, Placeholder: "Question for the user"})
	b.RegisterCoreInput("require_input", false, blocks.PortMeta{DataType: blocks.DataBoolean})
	b.RegisterCoreInput("mock_response", nil, blocks.PortMeta{Hidden: true})
	b.RegisterCoreOutput("response", blocks.PortMeta{})
}

// Configure sets the default message. An input still holding the previous
// default follows the new one.
func (d *DialogueBlock) Configure(b *blocks.Block, cfg models.BlockConfig) error {
	if cfg.Message == nil {
		return nil
	}
	if current, _ := b.Input("message"); current == nil || current == d.message {
		_ = b.SetInput("message", *cfg.Message)
	}
	d.message = *cfg.Message
	return nil
}

func (d *DialogueBlock) Execute(ctx context.Context, b *blocks.Block) error {
	rawMessage, _ := b.Input("message")
	message := stringify(rawMessage)

	required, _ := b.Input("require_input")
	if !truthy(required) {
		b.SetOutput("response", message)
		return nil
	}

	if mock, _ := b.Input("mock_response"); mock != nil {
		b.SetOutput("response", mock)
		return nil
	}

	if d.hub == nil {
		return blockError("dialogue requires input but no dialogue hub is configured")
	}

	scope := scopeFrom(ctx)
	ch, release := d.hub.Register(scope.projectID, b.ID)
	defer release()

	scope.emit(models.ExecutionEvent{
		Type:        models.EventDialogue,
		BlockID:     b.ID,
		Name:        b.Name,
		Message:     message,
		MessageHTML: d.hub.RenderHTML(message),
	})

	resp, err := d.hub.Await(ctx, ch, scope.projectID, b.ID)
	if err != nil {
		if errors.Is(err, ErrDialogueTimeout) {
			return &BlockExecutionError{BlockID: b.ID, BlockName: b.Name, Cause: err}
		}
		return err
	}
	b.SetOutput("response", resp)
	return nil
}

func (d *DialogueBlock) Serialize(cfg *models.BlockConfig) {
	cfg.Message = models.StringPtr(d.message)
}
