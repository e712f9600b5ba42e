package command

// #region imports
import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/message"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/session"
)

// #endregion

// #region descriptor

// Rule is one authorization clause: every condition in it must hold.
// A command is authorized when ANY of its rules matches (disjunction across
// rules, conjunction within one). Known conditions: "owner", "premium",
// "group", "admin".
type Rule []string

// Permission gates a command. When AI is set, an unauthorized attempt is
// silently handed to the AI fallback instead of prompting.
type Permission struct {
	Restriction []Rule
	Prompt      string
	AI          bool
}

// Context is what a handler receives. Runtime is the capability surface the
// application wires in; handlers never reach for globals.
type Context struct {
	Ctx     context.Context
	Msg     *message.Message
	Args    []string
	Session *session.Session // set for OnReply continuations
	Runtime Runtime
}

// Descriptor declares one command.
type Descriptor struct {
	Name               string
	Aliases            []string
	Category           string
	Description        string
	Permission         *Permission
	Cooldown           time.Duration
	AllowDuringSession bool

	Execute func(Context) error
	OnReply func(Context) error
}

// #endregion

// #region registry

// Registry resolves command descriptors by name or alias. Load replaces the
// whole set atomically, so a reload never leaves it half-populated.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Descriptor
	aliases  map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Descriptor),
		aliases:  make(map[string]string),
	}
}

// Load clears the registry and repopulates it from the given descriptors.
// Descriptors without a name are skipped.
func (r *Registry) Load(descriptors []*Descriptor) int {
	commands := make(map[string]*Descriptor, len(descriptors))
	aliases := make(map[string]string)
	for _, d := range descriptors {
		if d == nil || d.Name == "" {
			continue
		}
		name := strings.ToLower(d.Name)
		commands[name] = d
		for _, a := range d.Aliases {
			aliases[strings.ToLower(a)] = name
		}
	}

	r.mu.Lock()
	r.commands = commands
	r.aliases = aliases
	r.mu.Unlock()
	return len(commands)
}

// Resolve returns the descriptor for a name or alias, or nil.
func (r *Registry) Resolve(nameOrAlias string) *Descriptor {
	if nameOrAlias == "" {
		return nil
	}
	key := strings.ToLower(nameOrAlias)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.commands[key]; ok {
		return d
	}
	if canonical, ok := r.aliases[key]; ok {
		return r.commands[canonical]
	}
	return nil
}

// Names lists every registered name and alias, for fuzzy suggestions.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.commands)+len(r.aliases))
	for n := range r.commands {
		out = append(out, n)
	}
	for a := range r.aliases {
		out = append(out, a)
	}
	return out
}

// All returns the registered descriptors, for the menu command.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.commands))
	for _, d := range r.commands {
		out = append(out, d)
	}
	return out
}

// #endregion

// #region suggest

// Suggest returns the closest registered name when its Dice similarity to
// the miss clears threshold.
func (r *Registry) Suggest(miss string, threshold float64) (string, bool) {
	best, rating := bestMatch(strings.ToLower(miss), r.Names())
	if rating > threshold {
		return best, true
	}
	return "", false
}

// #endregion
