package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[compile]
max-labels = 10
max-patches = 20
max-code-size = 0
debug-info = true

[vm]
stack-size = 64
prompt = "> "
strict-exit = true
trace = true

[log]
verbosity = 2
file = "mol.log"

[journal]
path = "runs.db"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Compile.MaxLabels != 10 || m.Compile.MaxPatches != 20 {
		t.Errorf("compile bounds = %+v", m.Compile)
	}
	if m.Compile.MaxCodeSize != 0 {
		t.Errorf("max-code-size = %d, want 0 (disabled)", m.Compile.MaxCodeSize)
	}
	if !m.Compile.DebugInfo {
		t.Error("debug-info should be true")
	}
	if m.VM.StackSize != 64 || m.VM.Prompt != "> " || !m.VM.StrictExit || !m.VM.Trace {
		t.Errorf("vm config = %+v", m.VM)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d", m.Log.Verbosity)
	}
	if got, want := m.LogPath(), filepath.Join(m.Dir, "mol.log"); got != want {
		t.Errorf("LogPath = %q, want %q", got, want)
	}
	if got, want := m.JournalPath(), filepath.Join(m.Dir, "runs.db"); got != want {
		t.Errorf("JournalPath = %q, want %q", got, want)
	}
	if len(m.Unknown) != 0 {
		t.Errorf("unexpected unknown keys: %v", m.Unknown)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[vm]\ntrace = true\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if m.Compile != def.Compile {
		t.Errorf("compile = %+v, want defaults %+v", m.Compile, def.Compile)
	}
	if m.VM.StackSize != 512 || m.VM.Prompt != "Input: " {
		t.Errorf("vm defaults lost: %+v", m.VM)
	}
	if m.JournalPath() != "" || m.LogPath() != "" {
		t.Error("journal and log file should be disabled by default")
	}
}

func TestLoadManifestUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[vm]\nstack = 3\n[extra]\nx = 1\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(m.Unknown, ",")
	if !strings.Contains(joined, "vm.stack") || !strings.Contains(joined, "extra") {
		t.Errorf("Unknown = %v", m.Unknown)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[vm\n", "parse error"},
		{"wrong type", "[vm]\nstack-size = \"big\"\n", "parse error"},
		{"negative", "[vm]\nstack-size = -1\n", "vm.stack-size"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tc.content)
			_, err := Load(dir)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAbsolutePathsKept(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "journal.db")
	m := Default()
	m.Dir = "/somewhere"
	m.Journal.Path = abs
	if m.JournalPath() != abs {
		t.Errorf("JournalPath = %q, want %q", m.JournalPath(), abs)
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[vm]\nstack-size = 99\n")

	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.VM.StackSize != 99 {
		t.Errorf("stack-size = %d, want 99", m.VM.StackSize)
	}
	want, _ := filepath.Abs(root)
	if m.Dir != want {
		t.Errorf("Dir = %q, want %q", m.Dir, want)
	}
}

func TestFindAndLoadNoManifest(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil manifest, got %+v", m)
	}
}
