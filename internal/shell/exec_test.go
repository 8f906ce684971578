package shell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMergeEnv(t *testing.T) {
	tests := []struct {
		name      string
		base      []string
		overrides []string
		want      []string
	}{
		{
			name:      "override existing key",
			base:      []string{"A=1", "B=2"},
			overrides: []string{"A=override"},
			want:      []string{"A=override", "B=2"},
		},
		{
			name:      "add new key",
			base:      []string{"B=2"},
			overrides: []string{"A=1"},
			want:      []string{"A=1", "B=2"},
		},
		{
			name: "both empty",
			want: []string{},
		},
		{
			name: "value with equals sign",
			base: []string{"CMD=foo=bar"},
			want: []string{"CMD=foo=bar"},
		},
		{
			name:      "malformed entries skipped",
			base:      []string{"NOEQUALS", "A=1"},
			overrides: []string{"ALSO_BAD", "B=2"},
			want:      []string{"A=1", "B=2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeEnv(tt.base, tt.overrides)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("mergeEnv mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNextExecID(t *testing.T) {
	a := nextExecID()
	b := nextExecID()
	if a == b {
		t.Fatalf("nextExecID returned duplicate: %q", a)
	}
}

func TestIsSpurious(t *testing.T) {
	if !isSpurious("make: *** [all] Segmentation fault: 11") {
		t.Fatal("segfault not detected")
	}
	if isSpurious("error: undefined reference to `foo'") {
		t.Fatal("link error treated as spurious")
	}
}

func TestScriptWritesLog(t *testing.T) {
	r := NewRunner(Options{Jobs: 1})
	var log bytes.Buffer

	err := r.Script(context.Background(), `echo "$GREETING"; echo oops >&2`, t.TempDir(), []string{"GREETING=hello"}, &log)
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	if !strings.Contains(log.String(), "hello") || !strings.Contains(log.String(), "oops") {
		t.Fatalf("log = %q, want stdout and stderr", log.String())
	}
}

func TestScriptFailure(t *testing.T) {
	r := NewRunner(Options{Jobs: 1})

	err := r.Script(context.Background(), "exit 7", "", nil, nil)

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error = %v, want *CommandError", err)
	}
	if cmdErr.ExitCode != 7 {
		t.Fatalf("exit code = %d, want 7", cmdErr.ExitCode)
	}
	if cmdErr.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1 for a real failure", cmdErr.Attempts)
	}
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatal("error does not match ErrCommandFailed")
	}
}

func TestScriptRetriesSpuriousFailure(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "count")

	// Fails with a segfault signature on the first two attempts.
	script := `n=$(cat count 2>/dev/null || echo 0); n=$((n+1)); echo $n > count
if [ $n -lt 3 ]; then echo "Segmentation fault"; exit 139; fi
echo done`

	r := NewRunner(Options{Jobs: 1, MaxAttempts: 3})
	if err := r.Script(context.Background(), script, dir, nil, nil); err != nil {
		t.Fatalf("Script: %v", err)
	}

	data, err := os.ReadFile(counter)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != "3" {
		t.Fatalf("attempts = %s, want 3", got)
	}
}

func TestScriptGivesUpAfterMaxAttempts(t *testing.T) {
	r := NewRunner(Options{Jobs: 1, MaxAttempts: 2})

	err := r.Script(context.Background(), `echo "Bus error"; exit 1`, "", nil, nil)

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error = %v, want *CommandError", err)
	}
	if cmdErr.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", cmdErr.Attempts)
	}
}

func TestDryRun(t *testing.T) {
	var out bytes.Buffer
	r := NewRunner(Options{DryRun: true, Out: &out})

	if err := r.Script(context.Background(), "rm -rf /nonexistent", "/tmp/build dir", nil, nil); err != nil {
		t.Fatalf("Script: %v", err)
	}

	want := "(cd '/tmp/build dir' && /bin/sh -c 'rm -rf /nonexistent')\n"
	if out.String() != want {
		t.Fatalf("dry-run output = %q, want %q", out.String(), want)
	}
}

func TestOutput(t *testing.T) {
	r := NewRunner(Options{Jobs: 2})
	out, err := r.Output(context.Background(), "", nil, nil, "echo", "-n", "value")
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if out != "value" {
		t.Fatalf("Output = %q, want value", out)
	}
}

func TestEmptyCommand(t *testing.T) {
	r := NewRunner(Options{})
	if err := r.Script(context.Background(), "  ", "", nil, nil); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("Script error = %v, want ErrEmptyCommand", err)
	}
	if err := r.Command(context.Background(), "", nil, nil); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("Command error = %v, want ErrEmptyCommand", err)
	}
}
