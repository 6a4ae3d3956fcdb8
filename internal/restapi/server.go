// Package restapi implements vibetunneld's thin REST surface (§4.K): a
// handful of HTTP handlers that wrap the registry and a session's IPC
// socket. It deliberately does not attempt to be a product surface — each
// endpoint is a one-line effect as named in the spec.
package restapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os/exec"
	"sync/atomic"

	"github.com/vibetunnel/vibetunnel-go/internal/logger"
	"github.com/vibetunnel/vibetunnel-go/internal/registry"
	"github.com/vibetunnel/vibetunnel-go/internal/session"
	"github.com/vibetunnel/vibetunnel-go/internal/wsmux"
)

// AuthFunc authorizes an incoming REST request. Shared shape with
// wsmux.AuthFunc per SPEC_FULL.md's single injectable no-op auth hook.
type AuthFunc func(r *http.Request) (userID string, ok bool)

// NoAuth authorizes every request.
func NoAuth(r *http.Request) (string, bool) { return "", true }

// TextFunc renders a session's current terminal state as plain text.
type TextFunc func(sessionID string) (text string, ok bool)

// Server holds the REST surface's dependencies.
type Server struct {
	controlDir   string
	reg          *registry.Registry
	hub          *wsmux.Hub
	snapshotFn   wsmux.SnapshotFunc
	textFn       TextFunc
	forwarderBin string
	auth         AuthFunc

	draining atomic.Bool
}

// New creates a REST server. forwarderBin is the path (or bare name, to be
// resolved via PATH) of the vibetunnel-fwd binary used to spawn sessions.
func New(controlDir string, reg *registry.Registry, hub *wsmux.Hub, snapshotFn wsmux.SnapshotFunc, textFn TextFunc, forwarderBin string, auth AuthFunc) *Server {
	if auth == nil {
		auth = NoAuth
	}
	return &Server{
		controlDir:   controlDir,
		reg:          reg,
		hub:          hub,
		snapshotFn:   snapshotFn,
		textFn:       textFn,
		forwarderBin: forwarderBin,
		auth:         auth,
	}
}

// Drain marks the server as shutting down; every handler then responds 503
// per §4.K, §5's shutdown sequence.
func (s *Server) Drain() { s.draining.Store(true) }

// Mux registers the §4.K routes on a fresh http.ServeMux using Go's
// method+pattern matching, mirroring the teacher's server wiring.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions", s.withAuth(s.handleList))
	mux.HandleFunc("POST /api/sessions", s.withAuth(s.handleCreate))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.withAuth(s.handleDelete))
	mux.HandleFunc("POST /api/sessions/{id}/input", s.withAuth(s.handleInput))
	mux.HandleFunc("POST /api/sessions/{id}/resize", s.withAuth(s.handleResize))
	mux.HandleFunc("GET /api/sessions/{id}/text", s.withAuth(s.handleText))
	mux.HandleFunc("GET /api/sessions/{id}/snapshot", s.withAuth(s.handleSnapshot))
	return mux
}

func (s *Server) withAuth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.auth(r); !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid credentials")
			return
		}
		if s.draining.Load() {
			writeError(w, http.StatusServiceUnavailable, "ResourceExhaustion", "server is draining")
			return
		}
		h(w, r)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.List())
}

type createSessionRequest struct {
	ID         string   `json:"id,omitempty"`
	Command    []string `json:"command"`
	WorkingDir string   `json:"workingDir"`
	Name       string   `json:"name,omitempty"`
	Cols       int      `json:"cols,omitempty"`
	Rows       int      `json:"rows,omitempty"`
	TitleMode  string   `json:"titleMode,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Protocol", "malformed JSON body")
		return
	}
	if len(req.Command) == 0 || req.WorkingDir == "" {
		writeError(w, http.StatusBadRequest, "Protocol", "command and workingDir are required")
		return
	}

	id := req.ID
	if id == "" {
		id = session.GenerateID()
	} else if !session.ValidID(id) {
		writeError(w, http.StatusBadRequest, "Protocol", "invalid session id")
		return
	} else if _, exists := s.reg.Get(id); exists {
		writeError(w, http.StatusConflict, "Conflict", "session id already in use")
		return
	}

	args := []string{"--session-id", id, "--monitor-only"}
	if req.TitleMode != "" {
		args = append(args, "--title-mode", req.TitleMode)
	}
	args = append(args, "--")
	args = append(args, req.Command...)

	cmd := exec.Command(s.forwarderBin, args...)
	cmd.Dir = req.WorkingDir
	if err := cmd.Start(); err != nil {
		writeError(w, http.StatusInternalServerError, "ChildSpawn", err.Error())
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Debug("restapi: spawned forwarder exited", "id", id, "err", err)
		}
	}()

	if req.Name != "" {
		if err := session.PatchName(s.controlDir, id, req.Name); err != nil {
			logger.Warn("restapi: failed to set spawned session name", "id", id, "err", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.reg.Get(id); !ok {
		writeError(w, http.StatusNotFound, "NotFound", "unknown session id")
		return
	}
	s.hub.Kill(id, nil)
	w.WriteHeader(http.StatusNoContent)
}

type inputRequest struct {
	Data string `json:"data"` // base64
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.reg.Get(id); !ok {
		writeError(w, http.StatusNotFound, "NotFound", "unknown session id")
		return
	}
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Protocol", "malformed JSON body")
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Protocol", "malformed base64 data")
		return
	}
	s.hub.Input(id, decoded)
	w.WriteHeader(http.StatusNoContent)
}

type resizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.reg.Get(id); !ok {
		writeError(w, http.StatusNotFound, "NotFound", "unknown session id")
		return
	}
	var req resizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Cols <= 0 || req.Rows <= 0 {
		writeError(w, http.StatusBadRequest, "Protocol", "malformed resize body")
		return
	}
	s.hub.Resize(id, req.Cols, req.Rows)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	text, ok := s.textFn(id)
	if !ok {
		writeError(w, http.StatusNotFound, "NotFound", "unknown session id")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, ok := s.snapshotFn(id)
	if !ok {
		writeError(w, http.StatusNotFound, "NotFound", "unknown session id")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError emits the spec's structured error body (§7): {"error": code,
// "message": human-readable}.
func writeError(w http.ResponseWriter, code int, errCode, message string) {
	writeJSON(w, code, map[string]string{"error": errCode, "message": message})
}
