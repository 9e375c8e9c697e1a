package domain

import "time"

// GenerationStatus es el desenlace registrado de una llamada generate
type GenerationStatus string

const (
	GenerationCompleted GenerationStatus = "completed"
	GenerationFailed    GenerationStatus = "failed"
)

// GenerationRecord es la entrada de historial de una generación lógica. Se
// registra siempre, con éxito o fallo; el registro es best-effort y nunca
// interfiere con la generación.
type GenerationRecord struct {
	ID            int64            `json:"id"`
	Prompt        string           `json:"prompt"`
	AspectRatio   string           `json:"aspect_ratio"`
	Requested     int              `json:"requested"`
	Produced      int              `json:"produced"`
	Status        GenerationStatus `json:"status"`
	ErrorCode     string           `json:"error_code,omitempty"`
	URLs          []string         `json:"urls,omitempty"`
	CredentialKey string           `json:"credential_key,omitempty"`
	Duration      time.Duration    `json:"duration_ms"`
	CreatedAt     time.Time        `json:"created_at"`
}
