// Package commands holds the builtin command set. All returns fresh
// descriptors so a soft restart reloads them atomically via Registry.Load.
package commands

// #region imports
import (
	"github.com/razzaqinspires/prometheus-wa-bot/internal/ai"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/command"
)

// #endregion

// #region deps

// Deps carries the collaborators handlers need beyond the Runtime surface.
type Deps struct {
	Registry *command.Registry
	Chain    *ai.Chain
	Vitality *ai.Vitality
}

// All assembles every builtin descriptor.
func All(deps Deps) []*command.Descriptor {
	var out []*command.Descriptor
	out = append(out, utilityCommands(deps)...)
	out = append(out, ownerCommands(deps)...)
	out = append(out, moderationCommands(deps)...)
	return out
}

// #endregion
