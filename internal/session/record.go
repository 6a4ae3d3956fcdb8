// Package session defines the on-disk session record (session.json) and the
// session directory layout shared by vibetunnel-fwd and vibetunneld.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Status is the lifecycle state of a session, monotone in practice:
// starting -> running -> exited.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusExited   Status = "exited"
)

// knownFields lists the JSON keys Record understands explicitly. Everything
// else round-trips through Extra untouched, so a writer that only knows
// about a subset of fields (e.g. --update-title patching only "name") never
// drops data another process wrote.
var knownFields = map[string]bool{
	"id": true, "name": true, "command": true, "workingDir": true,
	"status": true, "exitCode": true, "startedAt": true, "pid": true,
	"initialCols": true, "initialRows": true, "lastClearOffset": true,
	"gitRepoPath": true, "gitBranch": true, "gitAheadCount": true,
	"gitBehindCount": true, "gitHasChanges": true, "gitIsWorktree": true,
	"gitMainRepoPath": true, "attachedViaVT": true,
}

// Record is the parsed content of session.json. Extra holds any key this
// version of the code doesn't model explicitly, preserved byte-for-byte
// across rewrites.
type Record struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Command         []string `json:"command"`
	WorkingDir      string   `json:"workingDir"`
	Status          Status   `json:"status"`
	ExitCode        *int     `json:"exitCode,omitempty"`
	StartedAt       time.Time `json:"startedAt"`
	PID             int      `json:"pid,omitempty"`
	InitialCols     *int     `json:"initialCols,omitempty"`
	InitialRows     *int     `json:"initialRows,omitempty"`
	LastClearOffset int64    `json:"lastClearOffset"`

	GitRepoPath     string `json:"gitRepoPath,omitempty"`
	GitBranch       string `json:"gitBranch,omitempty"`
	GitAheadCount   *int   `json:"gitAheadCount,omitempty"`
	GitBehindCount  *int   `json:"gitBehindCount,omitempty"`
	GitHasChanges   *bool  `json:"gitHasChanges,omitempty"`
	GitIsWorktree   *bool  `json:"gitIsWorktree,omitempty"`
	GitMainRepoPath string `json:"gitMainRepoPath,omitempty"`

	AttachedViaVT bool `json:"attachedViaVT,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// MarshalJSON emits the known fields plus any preserved extras, known
// fields taking precedence if a key collides.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Extra)+16)
	for k, v := range r.Extra {
		out[k] = v
	}

	type alias Record
	known, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(known, &flat); err != nil {
		return nil, err
	}
	for k, v := range flat {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the known fields into the struct and stashes every
// other key in Extra so a later rewrite preserves it.
func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Record(a)

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	r.Extra = make(map[string]json.RawMessage, len(flat))
	for k, v := range flat {
		if !knownFields[k] {
			r.Extra[k] = v
		}
	}
	return nil
}

// Path returns the session's metadata file path.
func Path(controlDir, id string) string {
	return filepath.Join(controlDir, id, "session.json")
}

// Load reads and parses a session's session.json.
func Load(controlDir, id string) (*Record, error) {
	data, err := os.ReadFile(Path(controlDir, id))
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse session.json for %s: %w", id, err)
	}
	return &r, nil
}

// Save atomically rewrites session.json: write to a temp file in the same
// directory, then rename over the original, so readers never observe a
// partial write (invariant: concurrent rename must not truncate the record).
func Save(controlDir string, r *Record) error {
	dir := filepath.Join(controlDir, r.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "session.json.tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, Path(controlDir, r.ID)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// PatchName rewrites only the "name" key of an on-disk session.json,
// preserving every other key including ones this binary doesn't model.
// Used by `vibetunnel-fwd --update-title`.
func PatchName(controlDir, id, name string) error {
	r, err := Load(controlDir, id)
	if err != nil {
		return err
	}
	r.Name = name
	return Save(controlDir, r)
}
