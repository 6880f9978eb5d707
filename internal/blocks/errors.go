package blocks

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph definition problems
var (
	ErrPortNotFound     = errors.New("port not found")
	ErrBlockNotFound    = errors.New("block not found")
	ErrUnknownBlockType = errors.New("unknown block type")
	ErrCorePort         = errors.New("core port cannot be removed")
	ErrDuplicateBlock   = errors.New("block id already exists")
	ErrInvalidConfig    = errors.New("invalid block configuration")
)

// GraphDefinitionError reports malformed wiring or an invalid structural operation.
// It is returned immediately to the caller and never swallowed.
type GraphDefinitionError struct {
	Op      string    // connect, disconnect, set_input, add_block, ...
	BlockID string    // block the error refers to, if any
	Port    Direction // input or output, if the error is about a port
	Key     string    // port key or block type
	Err     error
}

func (e *GraphDefinitionError) Error() string {
	msg := e.Op
	if e.BlockID != "" {
		msg += fmt.Sprintf(": block %s", e.BlockID)
	}
	if e.Key != "" {
		if e.Port != "" {
			msg += fmt.Sprintf(": %s %q", e.Port, e.Key)
		} else {
			msg += fmt.Sprintf(": %q", e.Key)
		}
	}
	return msg + ": " + e.Err.Error()
}

func (e *GraphDefinitionError) Unwrap() error {
	return e.Err
}

func portNotFound(op, blockID string, dir Direction, key string) error {
	return &GraphDefinitionError{Op: op, BlockID: blockID, Port: dir, Key: key, Err: ErrPortNotFound}
}
