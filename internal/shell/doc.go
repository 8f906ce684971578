// Package shell runs build commands as host subprocesses.
//
// A [Runner] describes each invocation as an OCI process (arguments,
// environment, working directory), bounds the number of concurrent
// subprocesses with a weighted semaphore sized from the job count, and tees
// combined output into the caller's log. Failures whose output matches a
// known transient signature, such as a crashed compiler, are retried up to a
// fixed number of attempts before being reported. In dry-run mode commands
// are printed instead of executed.
//
// Example usage:
//
//	r := shell.NewRunner(shell.Options{Jobs: 8})
//
//	err := r.Script(ctx, "./configure --prefix=/opt", buildDir, scope.Environ(), log)
//	if err != nil {
//	    return err
//	}
package shell
