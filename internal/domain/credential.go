package domain

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// RotationStrategy identifica el algoritmo de selección de credenciales
type RotationStrategy string

const (
	StrategyRoundRobin  RotationStrategy = "round_robin"
	StrategyLeastUsed   RotationStrategy = "least_used"
	StrategyLeastRecent RotationStrategy = "least_recent"
	StrategyWeighted    RotationStrategy = "weighted"
	StrategyHybrid      RotationStrategy = "hybrid"
)

// ParseStrategy valida el nombre de una estrategia de rotación
func ParseStrategy(s string) (RotationStrategy, bool) {
	switch RotationStrategy(s) {
	case StrategyRoundRobin, StrategyLeastUsed, StrategyLeastRecent,
		StrategyWeighted, StrategyHybrid:
		return RotationStrategy(s), true
	}
	return "", false
}

// Credential representa un secreto de sesión del upstream con su estado de
// uso en la ventana diaria actual
type Credential struct {
	Token       string
	UsageCount  int
	DailyLimit  int
	Failed      bool
	AgeVerified bool
	LastUsed    time.Time // cero = nunca usada
	FirstUsed   time.Time
}

// Selectable indica si la credencial puede ser elegida: no marcada como
// fallida y con cuota diaria disponible
func (c *Credential) Selectable() bool {
	return !c.Failed && c.UsageCount < c.DailyLimit
}

// Remaining retorna la cuota restante del día, nunca negativa
func (c *Credential) Remaining() int {
	if r := c.DailyLimit - c.UsageCount; r > 0 {
		return r
	}
	return 0
}

// KeyHash retorna el identificador corto de esta credencial
func (c *Credential) KeyHash() string {
	return KeyHash(c.Token)
}

// KeyHash deriva un identificador corto y estable de un secreto: los primeros
// 12 caracteres hex de su md5. Se usa como clave de persistencia para no
// escribir el secreto completo en disco ni en el store compartido.
func KeyHash(token string) string {
	sum := md5.Sum([]byte(token))
	return hex.EncodeToString(sum[:])[:12]
}

// CredentialStatus es la vista de una credencial para el endpoint de estado
type CredentialStatus struct {
	Key         string     `json:"key"`
	UsageCount  int        `json:"usage_count"`
	DailyLimit  int        `json:"daily_limit"`
	Remaining   int        `json:"remaining"`
	Failed      bool       `json:"failed"`
	AgeVerified bool       `json:"age_verified"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
}

// PoolStatus resume el estado del pool de credenciales
type PoolStatus struct {
	Total       int                `json:"total"`
	Available   int                `json:"available"`
	Failed      int                `json:"failed"`
	Exhausted   int                `json:"exhausted"`
	Strategy    RotationStrategy   `json:"strategy"`
	DailyLimit  int                `json:"daily_limit"`
	LastReset   time.Time          `json:"last_reset"`
	NextReset   time.Time          `json:"next_reset"`
	Credentials []CredentialStatus `json:"credentials"`
}
