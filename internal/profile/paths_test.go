package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirUsesHomeOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("PAWCHAT_HOME", tmp)

	got := Dir("main")
	want := filepath.Join(tmp, "profiles", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestDefaultBaseDir(t *testing.T) {
	t.Setenv("PAWCHAT_HOME", "")
	home, _ := os.UserHomeDir()
	if got := BaseDir(); got != filepath.Join(home, ".pawchat") {
		t.Errorf("BaseDir() = %q", got)
	}
}

func TestFilePaths(t *testing.T) {
	tests := []struct {
		got    string
		suffix string
	}{
		{SocketPath("test"), filepath.Join("profiles", "test", "daemon.sock")},
		{DBPath("test"), filepath.Join("profiles", "test", "pawchat.db")},
		{LogPath("test"), filepath.Join("profiles", "test", "logs", "pawchatd.log")},
	}
	for _, tt := range tests {
		if !strings.HasSuffix(tt.got, tt.suffix) {
			t.Errorf("%q does not end with %q", tt.got, tt.suffix)
		}
	}
}

func TestEnsureDirAndList(t *testing.T) {
	t.Setenv("PAWCHAT_HOME", t.TempDir())

	names, err := List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Fatalf("List() = %v before any profile exists", names)
	}

	for _, n := range []string{"main", "work"} {
		if err := EnsureDir(n); err != nil {
			t.Fatal(err)
		}
	}
	info, err := os.Stat(LogDir("main"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if info.Mode().Perm() != 0700 {
		t.Errorf("log dir perm = %o, want 0700", info.Mode().Perm())
	}

	names, err = List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "main" || names[1] != "work" {
		t.Errorf("List() = %v, want [main work]", names)
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	t.Setenv("PAWCHAT_HOME", t.TempDir())
	if got := Resolve(""); got != DefaultName {
		t.Errorf("Resolve(\"\") = %q, want %q", got, DefaultName)
	}
	if got := Resolve("work"); got != "work" {
		t.Errorf("Resolve(work) = %q, want work", got)
	}
}
