package repository

import (
	"context"

	"github.com/elsanchez/imagine-gateway/internal/domain"
)

// HistoryRepository define las operaciones sobre el historial de
// generaciones
type HistoryRepository interface {
	// Record inserta una entrada y retorna su id
	Record(ctx context.Context, rec *domain.GenerationRecord) (int64, error)

	// Recent retorna las entradas más nuevas primero
	Recent(ctx context.Context, limit int) ([]*domain.GenerationRecord, error)

	// Estadísticas
	CountByStatus(ctx context.Context, status domain.GenerationStatus) (int, error)
	CountTotal(ctx context.Context) (int, error)
}
