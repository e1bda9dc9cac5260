package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused matches every operator halt returned by Guard.
var ErrModulePaused = errors.New("module paused")

// Action names a player operation an operator halt can target.
type Action string

const (
	ActionJoin      Action = "join"
	ActionDeposit   Action = "deposit"
	ActionEarlyExit Action = "early_exit"
	ActionWithdraw  Action = "withdraw"
)

// PauseView reports whole-module halts.
type PauseView interface {
	IsPaused(module string) bool
}

// ActionPauseView is implemented by views that can also halt single actions
// while the rest of the module keeps running.
type ActionPauseView interface {
	PauseView
	IsActionPaused(module string, action Action) bool
}

// PausedError identifies the halt that blocked a call. Action is empty when
// the whole module is halted.
type PausedError struct {
	Module string
	Action Action
}

func (e *PausedError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("module %s paused", e.Module)
	}
	return fmt.Sprintf("module %s paused for %s", e.Module, e.Action)
}

func (e *PausedError) Is(target error) bool { return target == ErrModulePaused }

// Guard returns a *PausedError when p halts module or action within it.
func Guard(p PauseView, module string, action Action) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return &PausedError{Module: module}
	}
	if ap, ok := p.(ActionPauseView); ok && action != "" && ap.IsActionPaused(module, action) {
		return &PausedError{Module: module, Action: action}
	}
	return nil
}
