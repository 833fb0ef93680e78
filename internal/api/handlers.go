// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/lywaf/lywaf/internal/config"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	healthy := true
	if s.healthy != nil {
		healthy = s.healthy()
	}
	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

// handleReload parses and validates the on-disk config and, if that
// succeeds, hands it to the process's ReloadFunc to swap into the running
// pipeline. It never partially applies a bad config: LoadFile's
// Config.Validate runs before ReloadFunc is ever called.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.configPath == "" {
		writeError(w, http.StatusServiceUnavailable, "no config path configured")
		return
	}
	res, err := config.LoadFile(s.configPath, config.LoadOptions{})
	if err != nil {
		s.recordReload(err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.reload != nil {
		if err := s.reload(res.Config); err != nil {
			s.recordReload(err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	s.recordReload(nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (s *Server) recordReload(err error) {
	s.mu.Lock()
	s.lastReload = time.Now()
	s.lastError = err
	s.mu.Unlock()
	if s.collector != nil {
		s.collector.RecordConfigReload(err == nil)
	}
}

func (s *Server) handleReloadStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := map[string]any{"last_reload": s.lastReload}
	if s.lastError != nil {
		resp["last_error"] = s.lastError.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListBans(w http.ResponseWriter, r *http.Request) {
	if s.bans == nil {
		writeJSON(w, http.StatusOK, map[string]string{})
		return
	}
	writeJSON(w, http.StatusOK, s.bans.List())
}

type banRequest struct {
	IP     string `json:"ip"`
	Reason string `json:"reason"`
}

func (s *Server) handleCreateBan(w http.ResponseWriter, r *http.Request) {
	if s.bans == nil {
		writeError(w, http.StatusServiceUnavailable, "ban list not configured")
		return
	}
	var req banRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IP == "" {
		writeError(w, http.StatusBadRequest, "ip is required")
		return
	}
	s.bans.Ban(req.IP, req.Reason)
	s.recordBanListSize()
	writeJSON(w, http.StatusCreated, map[string]string{"ip": req.IP, "reason": req.Reason})
}

func (s *Server) handleDeleteBan(w http.ResponseWriter, r *http.Request) {
	if s.bans == nil {
		writeError(w, http.StatusServiceUnavailable, "ban list not configured")
		return
	}
	ip := r.PathValue("ip")
	s.bans.Unban(ip)
	s.recordBanListSize()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recordBanListSize() {
	if s.collector == nil || s.bans == nil {
		return
	}
	s.collector.SetBanListSize(len(s.bans.List()))
}
