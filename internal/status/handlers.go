package status

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/soyeahso/dankbot/internal/supervisor"
)

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

// handleHealth answers 200 while connected and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.connection.Status()
	code := http.StatusOK
	status := "ok"
	if st.State != supervisor.StateConnected.String() {
		code = http.StatusServiceUnavailable
		status = "degraded"
	}
	writeJSON(w, code, HealthResponse{Status: status, State: st.State})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status(r.Context()))
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	infos := make([]CommandInfo, 0, s.commands.Count())
	for _, c := range s.commands.Commands() {
		infos = append(infos, commandInfo(c))
	}
	for _, c := range s.commands.Unfiltered() {
		infos = append(infos, commandInfo(c))
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, c := range append(s.commands.Commands(), s.commands.Unfiltered()...) {
		if c.Name == name {
			writeJSON(w, http.StatusOK, commandInfo(c))
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown command", "name": name})
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	if s.plugins == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, s.plugins.Info())
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
