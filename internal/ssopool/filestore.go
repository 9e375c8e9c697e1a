package ssopool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileState es el registro completo persistido en disco. Los timestamps se
// guardan como epoch en segundos.
type fileState struct {
	LastReset    float64                  `json:"last_reset"`
	CurrentIndex int64                    `json:"current_index"`
	Usage        map[string]fileCredState `json:"usage"`
}

type fileCredState struct {
	Count       int     `json:"count"`
	LastUsed    float64 `json:"last_used"`
	FirstUsed   float64 `json:"first_used"`
	Failed      bool    `json:"failed"`
	AgeVerified int     `json:"age_verified"`
}

// FileStore persiste el estado del pool en un archivo JSON, reescrito
// completo tras cada mutación. Pensado para un único proceso: la exclusión
// la da un mutex, no el sistema de archivos.
type FileStore struct {
	mu    sync.Mutex
	path  string
	state fileState
}

var _ Store = (*FileStore)(nil)

// NewFileStore abre o crea el estado en la ruta indicada. Un archivo
// corrupto no es fatal: se descarta con un aviso y se parte de cero.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:  path,
		state: fileState{Usage: make(map[string]fileCredState)},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pool state: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		slog.Warn("ssopool: discarding corrupt state file", "path", path, "error", err)
		s.state = fileState{Usage: make(map[string]fileCredState)}
	}
	if s.state.Usage == nil {
		s.state.Usage = make(map[string]fileCredState)
	}
	return s, nil
}

// save reescribe el archivo completo. Se llama con el mutex tomado.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pool state: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write pool state: %w", err)
	}
	return nil
}

func (s *FileStore) Init(_ context.Context, hashes []string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, h := range hashes {
		if _, ok := s.state.Usage[h]; !ok {
			s.state.Usage[h] = fileCredState{FirstUsed: toEpoch(now)}
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.save()
}

func (s *FileStore) States(_ context.Context, hashes []string) (map[string]CredState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]CredState, len(hashes))
	for _, h := range hashes {
		fc := s.state.Usage[h]
		out[h] = CredState{
			Count:       fc.Count,
			LastUsed:    fromEpoch(fc.LastUsed),
			FirstUsed:   fromEpoch(fc.FirstUsed),
			Failed:      fc.Failed,
			AgeVerified: fc.AgeVerified != 0,
		}
	}
	return out, nil
}

func (s *FileStore) IncrUsage(_ context.Context, hash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc := s.state.Usage[hash]
	fc.Count++
	fc.LastUsed = toEpoch(now)
	if fc.FirstUsed == 0 {
		fc.FirstUsed = toEpoch(now)
	}
	s.state.Usage[hash] = fc
	return s.save()
}

func (s *FileStore) SetFailed(_ context.Context, hash string, failed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc := s.state.Usage[hash]
	fc.Failed = failed
	s.state.Usage[hash] = fc
	return s.save()
}

func (s *FileStore) ClearFailed(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for h, fc := range s.state.Usage {
		fc.Failed = false
		s.state.Usage[h] = fc
	}
	return s.save()
}

func (s *FileStore) AgeVerified(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Usage[hash].AgeVerified != 0, nil
}

func (s *FileStore) SetAgeVerified(_ context.Context, hash string, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc := s.state.Usage[hash]
	if verified {
		fc.AgeVerified = 1
	} else {
		fc.AgeVerified = 0
	}
	s.state.Usage[hash] = fc
	return s.save()
}

func (s *FileStore) NextIndex(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.CurrentIndex++
	if err := s.save(); err != nil {
		return 0, err
	}
	return s.state.CurrentIndex, nil
}

func (s *FileStore) LastReset(_ context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fromEpoch(s.state.LastReset), nil
}

func (s *FileStore) TryDailyReset(_ context.Context, _ []string, now time.Time, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.LastReset == 0 {
		s.state.LastReset = toEpoch(now)
		return false, s.save()
	}
	if now.Sub(fromEpoch(s.state.LastReset)) < window {
		return false, nil
	}
	s.resetLocked(now)
	return true, s.save()
}

func (s *FileStore) ResetUsage(_ context.Context, _ []string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked(now)
	return s.save()
}

// resetLocked pone a cero los contadores y limpia los flags de fallo.
// last_used y age_verified sobreviven al reset.
func (s *FileStore) resetLocked(now time.Time) {
	for h, fc := range s.state.Usage {
		fc.Count = 0
		fc.Failed = false
		s.state.Usage[h] = fc
	}
	s.state.LastReset = toEpoch(now)
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.CurrentIndex = 0
	return s.save()
}

func (s *FileStore) Close() error {
	return nil
}

func toEpoch(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.Unix())
}

func fromEpoch(epoch float64) time.Time {
	if epoch == 0 {
		return time.Time{}
	}
	return time.Unix(int64(epoch), 0)
}
