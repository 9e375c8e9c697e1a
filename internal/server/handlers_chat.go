package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/elsanchez/imagine-gateway/internal/domain"
)

// chatMessage es un mensaje del historial de chat
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest es la petición de chat completions compatible con OpenAI. El
// gateway la interpreta como una orden de generación: el último mensaje de
// usuario es el prompt.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	N        int           `json:"n"`
}

type chatDelta struct {
	Content          string `json:"content,omitempty"`
	Thinking         string `json:"thinking,omitempty"`
	ThinkingProgress *int   `json:"thinking_progress,omitempty"`
}

type chatChoice struct {
	Index        int          `json:"index"`
	Delta        *chatDelta   `json:"delta,omitempty"`
	Message      *chatMessage `json:"message,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

type chatChunk struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// extractPrompt toma el último mensaje de usuario no vacío como prompt
func extractPrompt(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			if content := strings.TrimSpace(messages[i].Content); content != "" {
				return content
			}
		}
	}
	return ""
}

// stageThinkingProgress mapea la etapa de una imagen al porcentaje de
// "thinking" reportado en los chunks
func stageThinkingProgress(stage domain.Stage) int {
	switch stage {
	case domain.StageFinal:
		return 99
	case domain.StageMedium:
		return 66
	default:
		return 33
	}
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return
	}

	prompt := extractPrompt(req.Messages)
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "no prompt found in messages")
		return
	}

	genReq := domain.GenerationRequest{
		Prompt:     prompt,
		Count:      req.N,
		EnableNSFW: true,
	}
	if genReq.Count == 0 {
		genReq.Count = s.cfg.DefaultImageCount
	}

	if req.Stream {
		s.streamChatGeneration(w, r, genReq)
		return
	}

	result, err := s.generator.Generate(r.Context(), genReq)
	s.recordHistory(r.Context(), genReq, result, err)
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	content := markdownImages(result.URLs())
	stop := "stop"
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      "chatcmpl-" + uuid.NewString()[:8],
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "grok-imagine",
		"choices": []chatChoice{{
			Message:      &chatMessage{Role: "assistant", Content: content},
			FinishReason: &stop,
		}},
		"usage": map[string]int{
			"prompt_tokens":     len(prompt),
			"completion_tokens": len(content),
			"total_tokens":      len(prompt) + len(content),
		},
	})
}

// streamChatGeneration reporta el progreso como chunks de chat con campos
// thinking, luego el contenido final en markdown, finish_reason stop y el
// marcador [DONE]
func (s *Server) streamChatGeneration(w http.ResponseWriter, r *http.Request, req domain.GenerationRequest) {
	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", err.Error())
		return
	}

	chunkID := "chatcmpl-" + uuid.NewString()[:8]
	zero := 0
	sse.Data(newChatChunk(chunkID, chatDelta{
		Thinking:         fmt.Sprintf("Generating images for: %.50s...", req.Prompt),
		ThinkingProgress: &zero,
	}, nil))

	// Una transición por imagen y etapa; el upstream repite frames
	reported := make(map[string]domain.Stage)
	for ev := range s.generator.GenerateStream(r.Context(), req) {
		if !ev.Terminal() {
			p := ev.Progress
			if prev, ok := reported[p.ImageID]; ok && p.Stage <= prev {
				continue
			}
			reported[p.ImageID] = p.Stage
			progress := stageThinkingProgress(p.Stage)
			if err := sse.Data(newChatChunk(chunkID, chatDelta{
				Thinking:         fmt.Sprintf("Image %d/%d - %s (%d%%)", p.Completed+1, p.Total, p.Stage, progress),
				ThinkingProgress: &progress,
			}, nil)); err != nil {
				return
			}
			continue
		}

		s.recordHistory(r.Context(), req, ev.Result, ev.Err)
		stop := "stop"
		if ev.Err != nil {
			sse.Data(newChatChunk(chunkID, chatDelta{
				Content: "Generation failed: " + ev.Err.Error(),
			}, nil))
		} else {
			hundred := 100
			sse.Data(newChatChunk(chunkID, chatDelta{
				Thinking:         fmt.Sprintf("Done! %d images generated", len(ev.Result.Images)),
				ThinkingProgress: &hundred,
			}, nil))
			sse.Data(newChatChunk(chunkID, chatDelta{
				Content: markdownImages(ev.Result.URLs()),
			}, nil))
		}
		sse.Data(newChatChunk(chunkID, chatDelta{}, &stop))
		sse.Raw("[DONE]")
		return
	}
}

func newChatChunk(id string, delta chatDelta, finishReason *string) chatChunk {
	return chatChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   "grok-imagine",
		Choices: []chatChoice{{Delta: &delta, FinishReason: finishReason}},
	}
}

func markdownImages(urls []string) string {
	var b strings.Builder
	b.WriteString("Here are your generated images:\n\n")
	for i, url := range urls {
		fmt.Fprintf(&b, "![image %d](%s)\n\n", i+1, url)
	}
	return b.String()
}
