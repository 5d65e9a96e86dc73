package host

import (
	"net/http"
	"slices"
	"strings"

	"github.com/drblury/codeshot/internal/runtime/jsoncodec"
)

const defaultWebUIPort = 8081

func (s *Service) registerWebUI() {
	if !s.Conf.WebUIEnabled {
		return
	}
	port := s.Conf.WebUIPort
	if port == 0 {
		port = defaultWebUIPort
	}
	s.RegisterHTTPHandler(port, "/api/commands", http.HandlerFunc(s.handleGetCommands))
	s.RegisterHTTPHandler(port, "/api/code", http.HandlerFunc(s.handleGetCode))
}

func (s *Service) handleGetCommands(w http.ResponseWriter, r *http.Request) {
	types := s.Commands()
	slices.Sort(types)
	s.writeJSON(w, r, types)
}

func (s *Service) handleGetCode(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, s.Code())
}

func (s *Service) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	if origin := s.allowedCORSOrigin(r.Header.Get("Origin")); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := jsoncodec.Marshal(v)
	if err != nil {
		s.Logger.Error("Failed to encode inspection response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Service) allowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range s.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if requestOrigin != "" && strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
