package ssopool

import (
	"context"
	"time"
)

// ResetInterval es la ventana de cuota diaria
const ResetInterval = 24 * time.Hour

// CredState son los campos persistidos de una credencial. Las credenciales
// se identifican siempre por su KeyHash: el secreto completo nunca llega al
// store.
type CredState struct {
	Count       int
	LastUsed    time.Time // cero = nunca usada
	FirstUsed   time.Time
	Failed      bool
	AgeVerified bool
}

// Store persiste el estado del pool de credenciales. Hay dos backends
// intercambiables: archivo JSON local (un solo proceso) y Redis (compartido
// entre procesos). El Manager escribe sus algoritmos una sola vez contra
// este contrato.
//
// Garantías exigidas a las implementaciones: IncrUsage y NextIndex son
// atómicos, y TryDailyReset aplica como mucho un reset por ventana aunque
// varios llamadores observen el mismo vencimiento.
type Store interface {
	// Init registra credenciales sin pisar contadores ya persistidos
	Init(ctx context.Context, hashes []string, now time.Time) error

	// States lee el estado de las credenciales indicadas; las no
	// registradas aparecen con estado cero
	States(ctx context.Context, hashes []string) (map[string]CredState, error)

	// IncrUsage incrementa el contador de uso y actualiza last_used
	IncrUsage(ctx context.Context, hash string, now time.Time) error

	// SetFailed marca o desmarca una credencial como fallida
	SetFailed(ctx context.Context, hash string, failed bool) error

	// ClearFailed desmarca todas las credenciales fallidas
	ClearFailed(ctx context.Context) error

	AgeVerified(ctx context.Context, hash string) (bool, error)
	SetAgeVerified(ctx context.Context, hash string, verified bool) error

	// NextIndex avanza el cursor de round robin y retorna su nuevo valor
	NextIndex(ctx context.Context) (int64, error)

	// LastReset retorna el instante del último reset diario; cero si nunca
	LastReset(ctx context.Context) (time.Time, error)

	// TryDailyReset aplica el reset diario sólo si la ventana venció.
	// Retorna si este llamador lo aplicó. La primera invocación de la vida
	// del store únicamente sella el instante inicial, sin resetear.
	TryDailyReset(ctx context.Context, hashes []string, now time.Time, window time.Duration) (bool, error)

	// ResetUsage fuerza un reset incondicional (disparo manual)
	ResetUsage(ctx context.Context, hashes []string, now time.Time) error

	// Clear olvida la membresía del pool; los contadores persistidos se
	// conservan para que un reload no pierda el uso del día
	Clear(ctx context.Context) error

	Close() error
}
