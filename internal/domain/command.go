package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CommandKind names an operator command.
type CommandKind string

const (
	CommandPause       CommandKind = "pause"
	CommandResume      CommandKind = "resume"
	CommandStop        CommandKind = "stop"
	CommandCancelOrder CommandKind = "cancel_order"
	CommandReconcile   CommandKind = "reconcile"
)

// Command is a closed set of operator commands. Only the types in this file
// implement it.
type Command interface {
	Kind() CommandKind
	isCommand()
}

// PauseCommand suppresses strategy and engine dispatch until resumed.
type PauseCommand struct{ Reason string }

// ResumeCommand leaves the paused state.
type ResumeCommand struct{}

// StopCommand ends the run after cleanup.
type StopCommand struct{ Reason string }

// CancelOrderCommand cancels one open order.
type CancelOrderCommand struct{ OrderID string }

// ReconcileCommand forces a reconciliation cycle.
type ReconcileCommand struct{}

func (PauseCommand) Kind() CommandKind       { return CommandPause }
func (ResumeCommand) Kind() CommandKind      { return CommandResume }
func (StopCommand) Kind() CommandKind        { return CommandStop }
func (CancelOrderCommand) Kind() CommandKind { return CommandCancelOrder }
func (ReconcileCommand) Kind() CommandKind   { return CommandReconcile }

func (PauseCommand) isCommand()       {}
func (ResumeCommand) isCommand()      {}
func (StopCommand) isCommand()        {}
func (CancelOrderCommand) isCommand() {}
func (ReconcileCommand) isCommand()   {}

// RawCommand is the wire form delivered by the operator channel.
type RawCommand struct {
	Name   string         `json:"name"`
	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

// DecodeCommand parses a JSON payload into a typed Command.
func DecodeCommand(payload []byte) (Command, error) {
	var raw RawCommand
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	return ParseCommand(raw)
}

// ParseCommand converts the wire form into a typed Command. Unknown names
// return ErrUnknownCommand.
func ParseCommand(raw RawCommand) (Command, error) {
	switch CommandKind(strings.ToLower(strings.TrimSpace(raw.Name))) {
	case CommandPause:
		return PauseCommand{Reason: raw.stringArg(0, "reason")}, nil
	case CommandResume:
		return ResumeCommand{}, nil
	case CommandStop:
		return StopCommand{Reason: raw.stringArg(0, "reason")}, nil
	case CommandCancelOrder:
		id := raw.stringArg(0, "order_id")
		if id == "" {
			return nil, fmt.Errorf("cancel_order: order_id is required")
		}
		return CancelOrderCommand{OrderID: id}, nil
	case CommandReconcile:
		return ReconcileCommand{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, raw.Name)
	}
}

// stringArg returns the keyword argument key, falling back to the
// positional argument at idx.
func (r RawCommand) stringArg(idx int, key string) string {
	if v, ok := r.Kwargs[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if idx < len(r.Args) {
		if s, ok := r.Args[idx].(string); ok {
			return s
		}
	}
	return ""
}
