// Package manifest handles mol.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the configuration file.
const FileName = "mol.toml"

// Manifest represents a mol.toml project configuration.
type Manifest struct {
	Compile CompileConfig `toml:"compile"`
	VM      VMConfig      `toml:"vm"`
	Log     LogConfig     `toml:"log"`
	Journal JournalConfig `toml:"journal"`

	// Dir is the directory containing the mol.toml file (set at load time).
	Dir string `toml:"-"`

	// Unknown lists keys present in the file that mol does not recognise.
	Unknown []string `toml:"-"`
}

// CompileConfig bounds the assembler.
type CompileConfig struct {
	MaxLabels   int  `toml:"max-labels"`
	MaxPatches  int  `toml:"max-patches"`
	MaxCodeSize int  `toml:"max-code-size"`
	DebugInfo   bool `toml:"debug-info"`
}

// VMConfig configures program execution.
type VMConfig struct {
	StackSize  int    `toml:"stack-size"`
	Prompt     string `toml:"prompt"`
	StrictExit bool   `toml:"strict-exit"`
	Trace      bool   `toml:"trace"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// JournalConfig configures the run journal. An empty path disables it.
type JournalConfig struct {
	Path string `toml:"path"`
}

// Default returns the configuration used when no mol.toml exists.
func Default() *Manifest {
	return &Manifest{
		Compile: CompileConfig{
			MaxLabels:   100,
			MaxPatches:  1024,
			MaxCodeSize: 16384,
		},
		VM: VMConfig{
			StackSize: 512,
			Prompt:    "Input: ",
		},
	}
}

// Load parses a mol.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a configuration file at an explicit path. Keys missing
// from the file keep their defaults.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	md, err := toml.Decode(string(data), m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		m.Unknown = append(m.Unknown, key.String())
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a mol.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate rejects negative bounds.
func (m *Manifest) Validate() error {
	checks := []struct {
		key   string
		value int
	}{
		{"compile.max-labels", m.Compile.MaxLabels},
		{"compile.max-patches", m.Compile.MaxPatches},
		{"compile.max-code-size", m.Compile.MaxCodeSize},
		{"vm.stack-size", m.VM.StackSize},
		{"log.verbosity", m.Log.Verbosity},
	}
	for _, c := range checks {
		if c.value < 0 {
			return fmt.Errorf("%s must not be negative, got %d", c.key, c.value)
		}
	}
	return nil
}

// JournalPath returns the journal database path resolved against the
// manifest directory, or "" if the journal is disabled.
func (m *Manifest) JournalPath() string {
	return m.resolve(m.Journal.Path)
}

// LogPath returns the log file path resolved against the manifest
// directory, or "" for stderr.
func (m *Manifest) LogPath() string {
	return m.resolve(m.Log.File)
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}
