package env

import (
	"errors"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/google/go-cmp/cmp"
)

func TestRemoveFromPath(t *testing.T) {
	c := New(map[string]string{"PATH": "/a:/b:/c"})
	c.Register(Remove("PATH", ":", "/b"))

	scope, err := c.Enter()
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	defer scope.Exit()

	if got, _ := scope.Get("PATH"); got != "/a:/c" {
		t.Fatalf("PATH = %q, want /a:/c", got)
	}
}

func TestAppendEmptyIsNoOp(t *testing.T) {
	base := map[string]string{"CFLAGS": "-O2"}
	c := New(base)
	c.Register(
		Append("CFLAGS", " "),
		Append("CFLAGS", " ", ""),
		Prepend("CFLAGS", " ", ""),
	)

	scope, err := c.Enter()
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	defer scope.Exit()

	if diff := cmp.Diff(base, c.Map()); diff != "" {
		t.Fatalf("environment changed (-want +got):\n%s", diff)
	}
}

func TestAppendPrepend(t *testing.T) {
	tests := []struct {
		name string
		base map[string]string
		op   Op
		want string
	}{
		{"append to existing", map[string]string{"P": "/a"}, Append("P", ":", "/b"), "/a:/b"},
		{"append to absent", nil, Append("P", ":", "/b"), "/b"},
		{"append to empty", map[string]string{"P": ""}, Append("P", ":", "/b"), "/b"},
		{"prepend to existing", map[string]string{"P": "/a"}, Prepend("P", ":", "/b", "/c"), "/b:/c:/a"},
		{"set replaces", map[string]string{"P": "/a"}, Set("P", "x", "y"), "x y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.base)
			c.Register(tt.op)
			scope, err := c.Enter()
			if err != nil {
				t.Fatalf("Enter: %v", err)
			}
			defer scope.Exit()

			if got, _ := scope.Get("P"); got != tt.want {
				t.Fatalf("P = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetEmptyUnsets(t *testing.T) {
	c := New(map[string]string{"CC": "gcc"})
	c.Register(Set("CC"))

	scope, err := c.Enter()
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if _, ok := scope.Get("CC"); ok {
		t.Fatal("CC still set inside scope")
	}
	scope.Exit()

	if v, ok := c.Get("CC"); !ok || v != "gcc" {
		t.Fatalf("CC = %q (set=%v) after exit, want gcc", v, ok)
	}
}

func TestScopeRoundTrip(t *testing.T) {
	base := map[string]string{
		"PATH":    "/usr/bin:/bin",
		"CFLAGS":  "-O2 -g",
		"LDFLAGS": "-L/usr/lib",
	}
	c := New(base)
	c.Register(
		Prepend("PATH", ":", "/opt/bin"),
		Append("CFLAGS", " ", "-fPIC"),
		Remove("CFLAGS", " ", "-g"),
		Set("LDFLAGS"),
		Set("NEW_VAR", "value"),
		Append("ANOTHER", ":", "x"),
		Set("NEW_VAR", "overwritten"),
	)

	scope, err := c.Enter()
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if got, _ := scope.Get("NEW_VAR"); got != "overwritten" {
		t.Fatalf("NEW_VAR = %q, want overwritten", got)
	}
	if got, _ := scope.Get("CFLAGS"); got != "-O2 -fPIC" {
		t.Fatalf("CFLAGS = %q, want -O2 -fPIC", got)
	}
	scope.Exit()

	if diff := cmp.Diff(base, c.Map()); diff != "" {
		t.Fatalf("environment not restored (-want +got):\n%s", diff)
	}
}

func TestRepeatedScopesReapply(t *testing.T) {
	c := New(map[string]string{"PATH": "/bin"})
	c.Register(Prepend("PATH", ":", "/opt/bin"))

	for i := 0; i < 3; i++ {
		scope, err := c.Enter()
		if err != nil {
			t.Fatalf("Enter #%d: %v", i, err)
		}
		if got, _ := scope.Get("PATH"); got != "/opt/bin:/bin" {
			t.Fatalf("PATH = %q on scope #%d, want /opt/bin:/bin", got, i)
		}
		scope.Exit()
	}
}

func TestReentrantScope(t *testing.T) {
	c := New(nil)
	scope, err := c.Enter()
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}

	_, err = c.Enter()
	if !errors.Is(err, ErrReentrantScope) {
		t.Fatalf("nested Enter error = %v, want ErrReentrantScope", err)
	}
	if !errdefs.IsFailedPrecondition(err) {
		t.Fatalf("nested Enter error %v is not a failed precondition", err)
	}

	scope.Exit()
	scope.Exit()

	if _, err := c.Enter(); err != nil {
		t.Fatalf("Enter after Exit: %v", err)
	}
}

func TestImmediateTimings(t *testing.T) {
	c := New(map[string]string{"A": "1", "B": "1"})
	c.Register(
		Set("A", "2").Now(),
		Set("B", "2").NowWithRestore(),
		Set("B", "3").NowWithRestore(),
	)

	if v, _ := c.Get("A"); v != "2" {
		t.Fatalf("A = %q before scope, want 2", v)
	}
	if v, _ := c.Get("B"); v != "3" {
		t.Fatalf("B = %q before scope, want 3", v)
	}

	scope, err := c.Enter()
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	scope.Exit()

	if v, _ := c.Get("A"); v != "2" {
		t.Fatalf("A = %q after exit, want 2 (never restored)", v)
	}
	if v, _ := c.Get("B"); v != "1" {
		t.Fatalf("B = %q after exit, want 1 (first snapshot wins)", v)
	}
}

func TestRemoveShellQuoted(t *testing.T) {
	c := New(map[string]string{"CPPFLAGS": `-I/usr/include '-DNAME=a b' -DDEBUG`})
	c.Register(Remove("CPPFLAGS", " ", "-DDEBUG"))

	scope, err := c.Enter()
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	defer scope.Exit()

	want := `-I/usr/include '-DNAME=a b'`
	if got, _ := scope.Get("CPPFLAGS"); got != want {
		t.Fatalf("CPPFLAGS = %q, want %q", got, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := New(map[string]string{"ARCH": "x86_64"})
	c.Register(Append("CFLAGS", " ", "-O2"))

	clone := c.Clone()
	clone.Register(Set("ARCH", "arm64").Now())

	if v, _ := c.Get("ARCH"); v != "x86_64" {
		t.Fatalf("original ARCH = %q, want x86_64", v)
	}
	if len(clone.Queued()) != 1 {
		t.Fatalf("clone queued %d ops, want 1", len(clone.Queued()))
	}

	scope, err := clone.Enter()
	if err != nil {
		t.Fatalf("Enter on clone: %v", err)
	}
	defer scope.Exit()
	if _, err := c.Enter(); err != nil {
		t.Fatalf("original blocked by clone scope: %v", err)
	}
}

func TestFromEnviron(t *testing.T) {
	c := FromEnviron([]string{"A=1", "B=x=y", "MALFORMED"})
	want := []string{"A=1", "B=x=y"}
	if diff := cmp.Diff(want, c.Environ()); diff != "" {
		t.Fatalf("Environ mismatch (-want +got):\n%s", diff)
	}
}

func TestParseKind(t *testing.T) {
	for _, name := range []string{"set", "Append", "PREPEND", "remove"} {
		if _, err := ParseKind(name); err != nil {
			t.Errorf("ParseKind(%q): %v", name, err)
		}
	}
	if _, err := ParseKind("merge"); !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("ParseKind(merge) error = %v, want ErrUnknownOp", err)
	}
}

func TestParseTiming(t *testing.T) {
	tests := map[string]Timing{
		"":                 Deferred,
		"deferred":         Deferred,
		"now":              Immediate,
		"Now-With-Restore": ImmediateWithRestore,
	}
	for in, want := range tests {
		got, err := ParseTiming(in)
		if err != nil {
			t.Fatalf("ParseTiming(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseTiming(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseTiming("later"); !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("expected ErrUnknownOp, got %v", err)
	}
}
