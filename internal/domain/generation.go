package domain

import "time"

// Stage representa la etapa de refinado de una imagen generada. El upstream
// envía la misma imagen varias veces con calidad creciente.
type Stage int

const (
	StagePreview Stage = iota
	StageMedium
	StageFinal
)

func (s Stage) String() string {
	switch s {
	case StageFinal:
		return "final"
	case StageMedium:
		return "medium"
	default:
		return "preview"
	}
}

// MarshalText serializa la etapa por nombre en JSON
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// GenerationRequest describe una petición lógica de generación
type GenerationRequest struct {
	Prompt      string
	AspectRatio string
	Count       int
	EnableNSFW  bool
	// Token fija la credencial a usar; vacío = rotación del pool
	Token string
}

// GeneratedImage es una imagen producida por un intento de generación
type GeneratedImage struct {
	ID    string
	URL   string // URL pública una vez persistida
	B64   string // payload codificado tal como llegó del upstream
	Stage Stage
	Size  int // longitud del payload codificado
}

// GenerationResult es el desenlace exitoso de una llamada generate
type GenerationResult struct {
	Images        []GeneratedImage
	Duration      time.Duration
	CredentialKey string // KeyHash de la credencial que completó la generación
}

// URLs retorna las referencias públicas en orden de producción
func (r *GenerationResult) URLs() []string {
	urls := make([]string, 0, len(r.Images))
	for _, img := range r.Images {
		urls = append(urls, img.URL)
	}
	return urls
}

// ProgressEvent notifica la transición de etapa de una imagen durante la
// generación. Se emite un evento por transición, no por frame recibido.
type ProgressEvent struct {
	ImageID   string `json:"image_id"`
	Stage     Stage  `json:"stage"`
	Size      int    `json:"blob_size"`
	IsFinal   bool   `json:"is_final"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// StreamEvent es un elemento de la secuencia de streaming: cero o más
// eventos de progreso seguidos de exactamente un evento terminal, que lleva
// Result o Err según el desenlace.
type StreamEvent struct {
	Progress *ProgressEvent
	Result   *GenerationResult
	Err      error
}

// Terminal indica si este evento cierra la secuencia
func (e StreamEvent) Terminal() bool {
	return e.Progress == nil
}
