// Package config resolves runtime configuration for both vibetunnel-fwd and
// vibetunneld from flags, environment variables, an optional YAML override
// file, and finally built-in defaults — in that priority order.
package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TitleMode selects how the forwarder rewrites terminal title sequences.
type TitleMode string

const (
	TitleModeNone    TitleMode = "none"
	TitleModeFilter  TitleMode = "filter"
	TitleModeStatic  TitleMode = "static"
	TitleModeDynamic TitleMode = "dynamic" // alias of static
)

// Normalize folds the deprecated "dynamic" alias into "static".
func (m TitleMode) Normalize() TitleMode {
	if m == TitleModeDynamic {
		return TitleModeStatic
	}
	return m
}

// Valid reports whether m is one of the recognized title modes.
func (m TitleMode) Valid() bool {
	switch m {
	case TitleModeNone, TitleModeFilter, TitleModeStatic, TitleModeDynamic:
		return true
	}
	return false
}

// Config is the resolved, explicit configuration passed into every
// component — no package-level mutable path globals.
type Config struct {
	ControlDir string
	LogFile    string
	LogLevel   string
	TitleMode  TitleMode
	Debug      bool
}

// FileOverrides is the optional on-disk YAML override, e.g. vibetunneld.yaml.
type FileOverrides struct {
	ControlDir string `yaml:"control_dir,omitempty"`
	LogFile    string `yaml:"log_file,omitempty"`
	LogLevel   string `yaml:"log_level,omitempty"`
	TitleMode  string `yaml:"title_mode,omitempty"`
}

// LoadFileOverrides reads a YAML override file if present; a missing file is
// not an error.
func LoadFileOverrides(path string) (*FileOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileOverrides{}, nil
		}
		return nil, err
	}
	var fo FileOverrides
	if err := yaml.Unmarshal(data, &fo); err != nil {
		return nil, err
	}
	return &fo, nil
}

// Resolve merges flags (highest priority) over environment variables over
// file overrides over defaults (lowest priority).
type Resolve struct {
	FlagControlDir string
	FlagLogFile    string
	FlagLogLevel   string
	FlagTitleMode  string
	FileOverrides  *FileOverrides
}

func (r Resolve) Build() (*Config, error) {
	cfg := &Config{}

	defControl, err := DefaultControlDir()
	if err != nil {
		return nil, err
	}
	defLog, err := DefaultLogFile()
	if err != nil {
		return nil, err
	}

	fo := r.FileOverrides
	if fo == nil {
		fo = &FileOverrides{}
	}

	cfg.ControlDir = firstNonEmpty(r.FlagControlDir, os.Getenv("VIBETUNNEL_CONTROL_DIR"), fo.ControlDir, defControl)
	cfg.LogFile = firstNonEmpty(r.FlagLogFile, fo.LogFile, defLog)
	cfg.LogLevel = strings.ToLower(firstNonEmpty(r.FlagLogLevel, os.Getenv("VIBETUNNEL_LOG_LEVEL"), fo.LogLevel, "info"))

	titleMode := TitleMode(firstNonEmpty(r.FlagTitleMode, os.Getenv("VIBETUNNEL_TITLE_MODE"), fo.TitleMode, string(TitleModeNone)))
	titleMode = titleMode.Normalize()
	if !titleMode.Valid() {
		titleMode = TitleModeNone
	}
	cfg.TitleMode = titleMode

	cfg.Debug = os.Getenv("VIBETUNNEL_DEBUG") != ""

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// NestedSessionID returns the VIBETUNNEL_SESSION_ID of the enclosing
// session, if this process is itself already running inside a forwarded
// PTY. The forwarder refuses to wrap itself by default when this is set.
func NestedSessionID() string {
	return os.Getenv("VIBETUNNEL_SESSION_ID")
}
