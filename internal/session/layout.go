package session

import "path/filepath"

// Dir returns <controlDir>/<id>.
func Dir(controlDir, id string) string {
	return filepath.Join(controlDir, id)
}

// StdoutPath returns the asciinema v2 recording file for a session.
func StdoutPath(controlDir, id string) string {
	return filepath.Join(Dir(controlDir, id), "stdout")
}

// StdinPath returns the external stdin log/FIFO for a session.
func StdinPath(controlDir, id string) string {
	return filepath.Join(Dir(controlDir, id), "stdin")
}

// IPCSockPath returns the unix-domain socket path for a session's IPC.
func IPCSockPath(controlDir, id string) string {
	return filepath.Join(Dir(controlDir, id), "ipc.sock")
}
