package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/isdmx/coderunner/executor"
)

// timestampLayout matches JavaScript's Date.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// LanguagesResponse is the body of GET /api/languages.
type LanguagesResponse struct {
	Languages []string `json:"languages"`
}

// --- JSON helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, executor.ErrorResponse{Error: msg, Output: "Error: " + msg})
}

// --- Handlers ---

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	defer r.Body.Close()

	var req executor.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res, err := s.exec.Execute(r.Context(), req)
	if err != nil {
		status := executor.StatusCode(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("execution failed", zap.String("language", req.Language), zap.Error(err))
		}
		s.writeJSON(w, status, executor.NewErrorResponse(err))
		return
	}

	s.writeJSON(w, http.StatusOK, executor.NewResponse(res))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "OK",
		Timestamp: s.now().UTC().Format(timestampLayout),
	})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, LanguagesResponse{Languages: s.languages.Languages()})
}
