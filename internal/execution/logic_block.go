package execution

import (
	"context"
	"fmt"
	"reflect"

	"nodelink/internal/blocks"
	"nodelink/internal/catalog"
	"nodelink/internal/models"
)

// Logic operations
const (
	OpAdd         = "add"
	OpSubtract    = "subtract"
	OpMultiply    = "multiply"
	OpDivide      = "divide"
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpAnd         = "and"
	OpOr          = "or"
)

// LogicOperations lists the supported operations in display order
var LogicOperations = []string{
	OpAdd, OpSubtract, OpMultiply, OpDivide,
	OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
	OpAnd, OpOr,
}

// LogicBlock applies a binary operation to val_a and val_b.
// if_true and if_false are data outputs; the scheduler never branches on them.
type LogicBlock struct {
	operation string
}

func (l *LogicBlock) Type() blocks.Type { return blocks.TypeLogic }

func (l *LogicBlock) RegisterPorts(b *blocks.Block) {
	b.RegisterCoreInput(blocks.TriggerKey, nil, blocks.PortMeta{Hidden: true})
	b.RegisterCoreInput("val_a", nil, blocks.PortMeta{})
	b.RegisterCoreInput("val_b", nil, blocks.PortMeta{})
	b.RegisterCoreOutput("result", blocks.PortMeta{})
	b.RegisterCoreOutput("if_true", blocks.PortMeta{DataType: blocks.DataBoolean})
	b.RegisterCoreOutput("if_false", blocks.PortMeta{DataType: blocks.DataBoolean})
}

func (l *LogicBlock) Configure(_ *blocks.Block, cfg models.BlockConfig) error {
	if cfg.Operation == nil {
		return nil
	}
	for _, op := range LogicOperations {
		if op == *cfg.Operation {
			l.operation = op
			return nil
		}
	}
	return fmt.Errorf("unknown logic operation %q", *cfg.Operation)
}

func (l *LogicBlock) Execute(_ context.Context, b *blocks.Block) error {
	a, _ := b.Input("val_a")
	c, _ := b.Input("val_b")

	result, err := applyLogic(l.operation, a, c)
	if err != nil {
		b.SetOutput("result", nil)
		b.SetOutput("if_true", false)
		b.SetOutput("if_false", true)
		return err
	}
	b.SetOutput("result", result)
	b.SetOutput("if_true", truthy(result))
	b.SetOutput("if_false", !truthy(result))
	return nil
}

func (l *LogicBlock) Serialize(cfg *models.BlockConfig) {
	cfg.Operation = models.StringPtr(l.operation)
}

// Extras exposes the operation list to the canvas
func (l *LogicBlock) Extras() map[string]any {
	return map[string]any{"operation": l.operation, "operations": LogicOperations}
}

func applyLogic(op string, a, b any) (any, error) {
	switch op {
	case OpAdd:
		x, okA := toNumber(a)
		y, okB := toNumber(b)
		if okA && okB {
			return x + y, nil
		}
		return catalog.Stringify(a) + catalog.Stringify(b), nil

	case OpSubtract, OpMultiply, OpDivide:
		x, okA := toNumber(a)
		y, okB := toNumber(b)
		if !okA || !okB {
			return nil, blockError("%s requires numeric inputs, got %v and %v", op, a, b)
		}
		switch op {
		case OpSubtract:
			return x - y, nil
		case OpMultiply:
			return x * y, nil
		}
		if y == 0 {
			return nil, blockError("division by zero")
		}
		return x / y, nil

	case OpEquals:
		return looseEqual(a, b), nil
	case OpNotEquals:
		return !looseEqual(a, b), nil

	case OpGreaterThan, OpLessThan:
		x, okA := toNumber(a)
		y, okB := toNumber(b)
		if okA && okB {
			if op == OpGreaterThan {
				return x > y, nil
			}
			return x < y, nil
		}
		sa, strA := a.(string)
		sb, strB := b.(string)
		if strA && strB {
			if op == OpGreaterThan {
				return sa > sb, nil
			}
			return sa < sb, nil
		}
		return nil, blockError("%s requires numbers or two strings, got %v and %v", op, a, b)

	case OpAnd:
		return truthy(a) && truthy(b), nil
	case OpOr:
		return truthy(a) || truthy(b), nil
	}
	return nil, blockError("unknown operation %q", op)
}

func looseEqual(a, b any) bool {
	x, okA := toNumber(a)
	y, okB := toNumber(b)
	if okA && okB {
		return x == y
	}
	return reflect.DeepEqual(a, b)
}
