// Package policy provides action selection strategies for the agent
package policy

import (
	"github.com/cartridge/voxel-agent/internal/actions"
	"github.com/cartridge/voxel-agent/internal/state"
)

// Policy interface for action selection
type Policy interface {
	// SelectAction chooses an action for the current state. It is evaluated
	// afresh on every call.
	SelectAction(s state.Key) actions.Action
}
