package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/elsanchez/imagine-gateway/internal/domain"
)

// imageRequest es la petición de generación compatible con OpenAI
type imageRequest struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
	Stream         bool   `json:"stream"`
}

type imageData struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

type imageResponse struct {
	Created int64       `json:"created"`
	Data    []imageData `json:"data"`
}

// sizeToAspectRatio traduce los tamaños de la API de OpenAI a los ratios
// del upstream
func sizeToAspectRatio(size string) string {
	switch size {
	case "1024x1024", "512x512", "256x256":
		return "1:1"
	case "1024x1536":
		return "2:3"
	case "1536x1024":
		return "3:2"
	default:
		return "2:3"
	}
}

func (s *Server) handleImageGenerations(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "prompt is required")
		return
	}
	if req.N < 0 || req.N > 4 {
		writeError(w, http.StatusBadRequest, "invalid_request", "n must be between 1 and 4")
		return
	}

	genReq := domain.GenerationRequest{
		Prompt:      req.Prompt,
		AspectRatio: sizeToAspectRatio(req.Size),
		Count:       req.N,
		EnableNSFW:  true,
	}
	if genReq.Count == 0 {
		genReq.Count = s.cfg.DefaultImageCount
	}

	slog.Info("server: generation requested", "n", genReq.Count, "stream", req.Stream)

	if req.Stream {
		s.streamImageGeneration(w, r, genReq)
		return
	}

	result, err := s.generator.Generate(r.Context(), genReq)
	s.recordHistory(r.Context(), genReq, result, err)
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	resp := imageResponse{Created: time.Now().Unix()}
	for _, img := range result.Images {
		if req.ResponseFormat == "b64_json" {
			resp.Data = append(resp.Data, imageData{B64JSON: img.B64})
		} else {
			resp.Data = append(resp.Data, imageData{URL: img.URL})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamImageGeneration emite el progreso como eventos SSE: progress por
// cada transición de etapa y complete o error como cierre
func (s *Server) streamImageGeneration(w http.ResponseWriter, r *http.Request, req domain.GenerationRequest) {
	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", err.Error())
		return
	}

	for ev := range s.generator.GenerateStream(r.Context(), req) {
		if !ev.Terminal() {
			p := ev.Progress
			if err := sse.Event("progress", map[string]any{
				"image_id":  p.ImageID,
				"stage":     p.Stage,
				"is_final":  p.IsFinal,
				"completed": p.Completed,
				"total":     p.Total,
				"progress":  fmt.Sprintf("%d/%d", p.Completed, p.Total),
			}); err != nil {
				// Consumidor desconectado: la cancelación del contexto de
				// la petición detiene al productor
				return
			}
			continue
		}

		s.recordHistory(r.Context(), req, ev.Result, ev.Err)
		if ev.Err != nil {
			sse.Event("error", map[string]any{"error": ev.Err.Error()})
			return
		}

		resp := imageResponse{Created: time.Now().Unix()}
		for _, img := range ev.Result.Images {
			resp.Data = append(resp.Data, imageData{URL: img.URL})
		}
		sse.Event("complete", resp)
		return
	}
}
