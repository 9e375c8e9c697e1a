package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/elsanchez/imagine-gateway/internal/config"
	"github.com/elsanchez/imagine-gateway/internal/domain"
	"github.com/elsanchez/imagine-gateway/internal/repository"
	"github.com/elsanchez/imagine-gateway/internal/storage"
)

const version = "2.0.0"

// Generator es lo que el servidor necesita del cliente de generación
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error)
	GenerateStream(ctx context.Context, req domain.GenerationRequest) <-chan domain.StreamEvent
}

// Pool es la vista administrativa del pool de credenciales
type Pool interface {
	Status(ctx context.Context) (*domain.PoolStatus, error)
	Reload(ctx context.Context) (int, error)
	ResetDailyUsage(ctx context.Context) error
}

// Server expone el gateway por HTTP: la superficie compatible con OpenAI,
// la administración del pool y el servicio de imágenes generadas. Todas las
// dependencias llegan construidas desde main.
type Server struct {
	cfg       *config.Config
	generator Generator
	pool      Pool
	media     *storage.MediaStore
	history   repository.HistoryRepository // nil = sin historial

	httpServer *http.Server
}

// NewServer construye el servidor y su router
func NewServer(cfg *config.Config, generator Generator, pool Pool, media *storage.MediaStore, history repository.HistoryRepository) *Server {
	s := &Server{
		cfg:       cfg,
		generator: generator,
		pool:      pool,
		media:     media,
		history:   history,
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Addr(),
		Handler: s.router(),
		// Sin WriteTimeout: las respuestas SSE viven lo que dure la
		// generación
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware, corsMiddleware)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(s.authMiddleware)
	v1.HandleFunc("/images/generations", s.handleImageGenerations).Methods(http.MethodPost)
	v1.HandleFunc("/chat/completions", s.handleChatCompletions).Methods(http.MethodPost)
	v1.HandleFunc("/models", s.handleModels).Methods(http.MethodGet)
	v1.HandleFunc("/models/imagine", s.handleImagineModels).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(s.authMiddleware)
	admin.HandleFunc("/status", s.handleAdminStatus).Methods(http.MethodGet)
	admin.HandleFunc("/sso/reload", s.handleSSOReload).Methods(http.MethodPost)
	admin.HandleFunc("/sso/reset-usage", s.handleSSOResetUsage).Methods(http.MethodPost)
	admin.HandleFunc("/images/list", s.handleImagesList).Methods(http.MethodGet)
	admin.HandleFunc("/images/clear", s.handleImagesClear).Methods(http.MethodDelete)
	admin.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)

	// Las peticiones preflight deben casar con alguna ruta para que el
	// middleware CORS llegue a ejecutarse
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/gallery", s.handleGallery).Methods(http.MethodGet)
	r.PathPrefix("/images/").Handler(
		http.StripPrefix("/images/", http.FileServer(http.Dir(s.media.Dir()))))

	return r
}

// Start bloquea sirviendo hasta Shutdown o error del listener
func (s *Server) Start() error {
	slog.Info("server: listening", "addr", s.cfg.Addr())
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown detiene el servidor con gracia
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("server: shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler expone el router, para las pruebas
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "Imagine API Gateway",
		"version": version,
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.pool.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"sso_count":  status.Total,
		"sso_failed": status.Failed,
	})
}

// Listados de modelos estáticos, por compatibilidad con clientes OpenAI
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]any{{
			"id":       "grok-imagine",
			"object":   "model",
			"created":  1700000000,
			"owned_by": "xai",
		}},
	})
}

func (s *Server) handleImagineModels(w http.ResponseWriter, r *http.Request) {
	s.handleModels(w, r)
}

// recordHistory registra el desenlace de una generación. Best-effort: un
// fallo de escritura se loguea y nada más.
func (s *Server) recordHistory(ctx context.Context, req domain.GenerationRequest, result *domain.GenerationResult, genErr error) {
	if s.history == nil {
		return
	}

	rec := &domain.GenerationRecord{
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Requested:   req.Count,
		CreatedAt:   time.Now(),
	}
	if genErr != nil {
		rec.Status = domain.GenerationFailed
		rec.ErrorCode = string(domain.CodeOf(genErr))
	} else {
		rec.Status = domain.GenerationCompleted
		rec.Produced = len(result.Images)
		rec.URLs = result.URLs()
		rec.CredentialKey = result.CredentialKey
		rec.Duration = result.Duration
	}

	// La escritura sobrevive a la cancelación de la petición que la originó
	if _, err := s.history.Record(context.WithoutCancel(ctx), rec); err != nil {
		slog.Warn("server: history record failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("server: encode response failed", "error", err)
	}
}

// writeError emite un error con la forma de los errores de la API de OpenAI
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
			"code":    code,
		},
	})
}

// errorStatus mapea la clasificación de un fallo de generación al estatus
// HTTP que exponemos
func errorStatus(err error) (int, string) {
	code := domain.CodeOf(err)
	switch code {
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests, string(code)
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized, string(code)
	case domain.CodeNoCredential:
		return http.StatusServiceUnavailable, string(code)
	case "":
		return http.StatusInternalServerError, "internal_error"
	default:
		return http.StatusInternalServerError, string(code)
	}
}
