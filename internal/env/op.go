package env

import (
	"fmt"
	"strings"
)

// Kind of change an [Op] makes to a variable.
type Kind int

const (
	KindSet     Kind = iota // Replaces the variable, or unsets it when empty.
	KindAppend              // Adds values after the current value.
	KindPrepend             // Adds values before the current value.
	KindRemove              // Drops matching tokens from the current value.
)

var kindNames = map[Kind]string{
	KindSet:     "set",
	KindAppend:  "append",
	KindPrepend: "prepend",
	KindRemove:  "remove",
}

// Returns the lowercase name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Parses a kind from its name.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOp, s)
}

// When an [Op] takes effect.
type Timing int

const (
	Deferred             Timing = iota // Applied each time a scope is entered.
	Immediate                          // Applied once at registration, never restored.
	ImmediateWithRestore               // Applied at registration, restored at the next scope exit.
)

// Parses a timing name: "deferred" (or empty), "now", or "now-with-restore".
func ParseTiming(s string) (Timing, error) {
	switch strings.ToLower(s) {
	case "", "deferred":
		return Deferred, nil
	case "now":
		return Immediate, nil
	case "now-with-restore":
		return ImmediateWithRestore, nil
	default:
		return 0, fmt.Errorf("%w: unknown timing %q", ErrUnknownOp, s)
	}
}

// A single environment transformation.
type Op struct {
	Kind   Kind     // Kind of change.
	Var    string   // Variable name.
	Values []string // Values joined with Sep before being applied.
	Sep    string   // Separator between existing and contributed values.
	Timing Timing   // When the operation takes effect.
}

// Returns a deferred operation that replaces name with the values joined by
// a space. An empty value list unsets the variable.
func Set(name string, values ...string) Op {
	return Op{Kind: KindSet, Var: name, Values: values, Sep: " "}
}

// Returns a deferred operation that appends values to name.
func Append(name, sep string, values ...string) Op {
	return Op{Kind: KindAppend, Var: name, Values: values, Sep: sep}
}

// Returns a deferred operation that prepends values to name.
func Prepend(name, sep string, values ...string) Op {
	return Op{Kind: KindPrepend, Var: name, Values: values, Sep: sep}
}

// Returns a deferred operation that removes values from name.
func Remove(name, sep string, values ...string) Op {
	return Op{Kind: KindRemove, Var: name, Values: values, Sep: sep}
}

// Returns a copy of the operation that applies immediately and is never
// restored.
func (o Op) Now() Op {
	o.Timing = Immediate
	return o
}

// Returns a copy of the operation that applies immediately and is restored at
// the next scope exit.
func (o Op) NowWithRestore() Op {
	o.Timing = ImmediateWithRestore
	return o
}

// Applies the operation to the environment map.
func (o Op) apply(env map[string]string) {
	contribution := strings.Join(o.Values, o.Sep)
	current, exists := env[o.Var]

	switch o.Kind {
	case KindSet:
		if contribution == "" {
			delete(env, o.Var)
			return
		}
		env[o.Var] = contribution

	case KindAppend:
		if contribution == "" {
			return
		}
		if current == "" {
			env[o.Var] = contribution
			return
		}
		env[o.Var] = current + o.Sep + contribution

	case KindPrepend:
		if contribution == "" {
			return
		}
		if current == "" {
			env[o.Var] = contribution
			return
		}
		env[o.Var] = contribution + o.Sep + current

	case KindRemove:
		if !exists {
			return
		}
		env[o.Var] = removeTokens(current, o.Sep, o.Values)
	}
}

// Formats the operation for debug logging.
func (o Op) String() string {
	return fmt.Sprintf("%s %s %q (sep %q)", o.Kind, o.Var, o.Values, o.Sep)
}
