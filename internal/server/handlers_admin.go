package server

import (
	"net/http"
	"strconv"
)

func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.pool.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pool": status,
		"config": map[string]any{
			"rotation_strategy": s.cfg.RotationStrategy,
			"daily_limit":       s.cfg.DailyLimit,
			"redis_enabled":     s.cfg.RedisEnabled,
			"sso_file":          s.cfg.SSOFile,
			"images_dir":        s.cfg.ImagesDir,
			"base_url":          s.cfg.PublicBaseURL(),
			"proxy_configured":  s.cfg.ProxyURL != "",
		},
	})
}

func (s *Server) handleSSOReload(w http.ResponseWriter, r *http.Request) {
	count, err := s.pool.Reload(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "credentials reloaded",
		"count":   count,
	})
}

func (s *Server) handleSSOResetUsage(w http.ResponseWriter, r *http.Request) {
	if err := s.pool.ResetDailyUsage(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "daily usage reset",
	})
}

func (s *Server) handleImagesList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	images, err := s.media.List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(images),
		"images": images,
	})
}

func (s *Server) handleImagesClear(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.media.Clear()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "images cleared",
		"deleted": deleted,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "history_disabled", "generation history is not enabled")
		return
	}
	limit := queryInt(r, "limit", 50)
	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"history": records,
	})
}

// queryInt lee un parámetro numérico de la query, con valor por defecto si
// falta o no parsea
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
