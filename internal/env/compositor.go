package env

import (
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// Previous value of a variable, recorded before a scope touched it.
type saved struct {
	value  string
	exists bool
}

// Owns an environment map and the operations registered against it.
//
// A compositor is not safe for concurrent use. Per-architecture builds clone
// the compositor so that each instance mutates its own map.
type Compositor struct {
	env      map[string]string // Live environment.
	queued   []Op              // Deferred operations, in registration order.
	snapshot map[string]saved  // Values to restore at the next scope exit.
	active   bool              // Whether a scope is currently open.
}

// Creates a compositor over a copy of base.
func New(base map[string]string) *Compositor {
	env := make(map[string]string, len(base))
	maps.Copy(env, base)
	return &Compositor{
		env:      env,
		snapshot: make(map[string]saved),
	}
}

// Creates a compositor from "key=value" entries, as returned by os.Environ.
//
// Entries without an equals sign are ignored.
func FromEnviron(environ []string) *Compositor {
	base := make(map[string]string, len(environ))
	for _, entry := range environ {
		if k, v, ok := strings.Cut(entry, "="); ok {
			base[k] = v
		}
	}
	return New(base)
}

// Registers operations against the compositor.
//
// Deferred operations are queued and applied at every scope entry. Immediate
// operations are applied right away. Immediate-with-restore operations record
// the current value first, unless a restore point already exists for the
// variable, and are undone at the next scope exit.
func (c *Compositor) Register(ops ...Op) {
	for _, op := range ops {
		switch op.Timing {
		case Immediate:
			op.apply(c.env)
		case ImmediateWithRestore:
			c.save(op.Var)
			op.apply(c.env)
		default:
			c.queued = append(c.queued, op)
		}
	}
}

// Opens a scope, applying the queued operations.
//
// Every variable touched by a queued operation is recorded before the first
// operation runs. Returns [ErrReentrantScope] if a scope is already open.
func (c *Compositor) Enter() (*Scope, error) {
	if c.active {
		return nil, ErrReentrantScope
	}
	c.active = true

	for _, op := range c.queued {
		c.save(op.Var)
	}
	for _, op := range c.queued {
		slog.Debug("env", "op", op.String())
		op.apply(c.env)
	}

	return &Scope{c: c}, nil
}

// Records the current value of name unless a restore point already exists.
func (c *Compositor) save(name string) {
	if c.snapshot == nil {
		c.snapshot = make(map[string]saved)
	}
	if _, ok := c.snapshot[name]; ok {
		return
	}
	v, exists := c.env[name]
	c.snapshot[name] = saved{value: v, exists: exists}
}

// Restores every recorded variable in a single pass and clears the snapshot.
func (c *Compositor) restore() {
	for name, s := range c.snapshot {
		if s.exists {
			c.env[name] = s.value
		} else {
			delete(c.env, name)
		}
	}
	clear(c.snapshot)
	c.active = false
}

// Returns the value of a variable and whether it is set.
func (c *Compositor) Get(name string) (string, bool) {
	v, ok := c.env[name]
	return v, ok
}

// Returns a copy of the live environment.
func (c *Compositor) Map() map[string]string {
	return maps.Clone(c.env)
}

// Formats the live environment as sorted "key=value" strings.
func (c *Compositor) Environ() []string {
	return environ(c.env)
}

// Returns the queued deferred operations.
func (c *Compositor) Queued() []Op {
	return slices.Clone(c.queued)
}

// Returns an independent copy of the compositor.
//
// The copy shares no state with the receiver. Pending restore points are
// copied as well. Cloning while a scope is open is not supported; the copy
// starts with no open scope.
func (c *Compositor) Clone() *Compositor {
	return &Compositor{
		env:      maps.Clone(c.env),
		queued:   slices.Clone(c.queued),
		snapshot: maps.Clone(c.snapshot),
	}
}

// Formats an environment map as sorted "key=value" strings.
func environ(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}
	return out
}

// An open environment scope.
type Scope struct {
	c      *Compositor
	exited bool
}

// Returns the scoped environment as sorted "key=value" strings.
func (s *Scope) Environ() []string {
	return environ(s.c.env)
}

// Returns the value of a variable inside the scope.
func (s *Scope) Get(name string) (string, bool) {
	return s.c.Get(name)
}

// Closes the scope, restoring every variable recorded since the last exit.
//
// Calling Exit more than once has no effect.
func (s *Scope) Exit() {
	if s.exited {
		return
	}
	s.exited = true
	s.c.restore()
}
