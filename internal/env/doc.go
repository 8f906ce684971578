// Package env composes scoped, reversible environment-variable changes.
//
// A [Compositor] owns an explicit environment map. Operations ([Op]) are
// registered against it and applied in registration order when a step scope
// is entered. Leaving the scope restores every touched variable to the value
// it had before, removing variables that did not exist. Each recipe instance
// owns its own compositor, so per-architecture copies never share state.
//
// Operations are deferred by default. [Op.Now] applies an operation
// immediately without recording a restore point, and [Op.NowWithRestore]
// applies it immediately while recording the previous value, which is
// restored at the next scope exit.
//
// Example usage:
//
//	c := env.FromEnviron(os.Environ())
//	c.Register(
//	    env.Prepend("PATH", ":", "/opt/prefix/bin"),
//	    env.Append("CFLAGS", " ", "-O2"),
//	    env.Remove("LDFLAGS", " ", "-Wl,--as-needed"),
//	)
//
//	scope, err := c.Enter()
//	if err != nil {
//	    return err
//	}
//	defer scope.Exit()
//
//	cmd.Env = scope.Environ()
package env
