package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/elsanchez/imagine-gateway/internal/domain"
	"github.com/elsanchez/imagine-gateway/internal/repository"
)

// HistoryRepository implementa repository.HistoryRepository sobre SQLite
type HistoryRepository struct {
	db *sqlx.DB
}

var _ repository.HistoryRepository = (*HistoryRepository)(nil)

// NewHistoryRepository crea el repositorio de historial
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// generationRow mapea la tabla generations
type generationRow struct {
	ID            int64          `db:"id"`
	Prompt        string         `db:"prompt"`
	AspectRatio   string         `db:"aspect_ratio"`
	Requested     int            `db:"requested"`
	Produced      int            `db:"produced"`
	Status        string         `db:"status"`
	ErrorCode     sql.NullString `db:"error_code"`
	URLsJSON      string         `db:"urls"`
	CredentialKey sql.NullString `db:"credential_key"`
	DurationMS    int64          `db:"duration_ms"`
	CreatedAt     int64          `db:"created_at"`
}

// Record inserta una entrada de historial
func (r *HistoryRepository) Record(ctx context.Context, rec *domain.GenerationRecord) (int64, error) {
	urlsJSON, err := json.Marshal(rec.URLs)
	if err != nil {
		return 0, fmt.Errorf("marshal urls: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO generations (prompt, aspect_ratio, requested, produced, status,
		                         error_code, urls, credential_key, duration_ms, created_at)
		VALUES (:prompt, :aspect_ratio, :requested, :produced, :status,
		        :error_code, :urls, :credential_key, :duration_ms, :created_at)
	`

	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"prompt":         rec.Prompt,
		"aspect_ratio":   rec.AspectRatio,
		"requested":      rec.Requested,
		"produced":       rec.Produced,
		"status":         string(rec.Status),
		"error_code":     nullString(rec.ErrorCode),
		"urls":           string(urlsJSON),
		"credential_key": nullString(rec.CredentialKey),
		"duration_ms":    rec.Duration.Milliseconds(),
		"created_at":     createdAt.Unix(),
	})
	if err != nil {
		return 0, fmt.Errorf("insert generation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// Recent retorna las últimas generaciones, la más nueva primero
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]*domain.GenerationRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []generationRow
	query := `SELECT * FROM generations ORDER BY created_at DESC, id DESC LIMIT ?`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("select generations: %w", err)
	}

	records := make([]*domain.GenerationRecord, 0, len(rows))
	for i := range rows {
		rec, err := rowToRecord(&rows[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// CountByStatus cuenta las generaciones con el estado indicado
func (r *HistoryRepository) CountByStatus(ctx context.Context, status domain.GenerationStatus) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM generations WHERE status = ?`
	if err := r.db.GetContext(ctx, &count, query, string(status)); err != nil {
		return 0, fmt.Errorf("count by status: %w", err)
	}
	return count, nil
}

// CountTotal cuenta todas las generaciones registradas
func (r *HistoryRepository) CountTotal(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM generations`); err != nil {
		return 0, fmt.Errorf("count total: %w", err)
	}
	return count, nil
}

func rowToRecord(row *generationRow) (*domain.GenerationRecord, error) {
	var urls []string
	if err := json.Unmarshal([]byte(row.URLsJSON), &urls); err != nil {
		return nil, fmt.Errorf("unmarshal urls: %w", err)
	}

	return &domain.GenerationRecord{
		ID:            row.ID,
		Prompt:        row.Prompt,
		AspectRatio:   row.AspectRatio,
		Requested:     row.Requested,
		Produced:      row.Produced,
		Status:        domain.GenerationStatus(row.Status),
		ErrorCode:     row.ErrorCode.String,
		URLs:          urls,
		CredentialKey: row.CredentialKey.String,
		Duration:      time.Duration(row.DurationMS) * time.Millisecond,
		CreatedAt:     time.Unix(row.CreatedAt, 0),
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
