// Package prompt shows the recovery menu after a failed build step.
//
// The menu is a bubbletea program listing the recovery actions. Enter picks
// the highlighted action; ctrl+c, esc, and q abort the session.
//
// Example usage:
//
//	p := prompt.New()
//	action, err := p.Choose(ctx, "recipe \"zlib\" step \"compile\" failed", build.RecoveryActions)
//	if err != nil {
//	    return err
//	}
package prompt
