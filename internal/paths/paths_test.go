package paths

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigName(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"", DefaultConfigName},
		{"/etc/kiln/osx-universal.yaml", "osx-universal"},
		{"linux.yml", "linux"},
		{"noext", "noext"},
	}

	for _, tt := range tests {
		if got := ConfigName(tt.file); got != tt.want {
			t.Errorf("ConfigName(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
}

func TestPerConfigPathsAreDistinct(t *testing.T) {
	if StatusFile("a") == StatusFile("b") {
		t.Fatal("status files of different configurations collide")
	}
	if Home("a") == Home("b") {
		t.Fatal("home directories of different configurations collide")
	}
	if !strings.HasSuffix(StatusFile("a"), "a.status.json") {
		t.Fatalf("StatusFile = %q, want suffix a.status.json", StatusFile("a"))
	}
	if filepath.Base(Logs("a")) != "a" {
		t.Fatalf("Logs = %q, want trailing config name", Logs("a"))
	}
}
