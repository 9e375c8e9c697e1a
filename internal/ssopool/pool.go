package ssopool

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/elsanchez/imagine-gateway/internal/domain"
)

// Options configura el Manager del pool
type Options struct {
	// Source es el archivo de credenciales: un secreto por línea; líneas
	// vacías o que comienzan con # se ignoran
	Source     string
	Strategy   domain.RotationStrategy
	DailyLimit int
}

// Manager es el dueño del pool de credenciales: decide cuál usar según la
// estrategia configurada, aplica cuota diaria y exclusión por fallo, y
// dispara el reset de la ventana de 24h. Es el único componente que muta el
// estado de las credenciales.
type Manager struct {
	mu         sync.Mutex
	store      Store
	source     string
	strategy   domain.RotationStrategy
	dailyLimit int
	tokens     []string // orden de encuentro en el archivo

	now func() time.Time
	rnd func() float64
}

// NewManager construye el pool sobre el store indicado. No carga nada: la
// carga es explícita vía Load o implícita en la primera selección.
func NewManager(store Store, opts Options) *Manager {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = domain.StrategyHybrid
	}
	limit := opts.DailyLimit
	if limit <= 0 {
		limit = 10
	}
	return &Manager{
		store:      store,
		source:     opts.Source,
		strategy:   strategy,
		dailyLimit: limit,
		now:        time.Now,
		rnd:        rand.Float64,
	}
}

// Load lee el archivo de credenciales e inicializa el store sin pisar
// contadores ya persistidos. Retorna cuántas credenciales quedaron cargadas.
// Idempotente.
func (m *Manager) Load(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx)
}

func (m *Manager) loadLocked(ctx context.Context) (int, error) {
	tokens, err := readSecretsFile(m.source)
	if err != nil {
		return 0, err
	}
	m.tokens = tokens
	if len(tokens) == 0 {
		slog.Warn("ssopool: no credentials loaded", "source", m.source)
		return 0, nil
	}
	if err := m.store.Init(ctx, m.hashesLocked(), m.now()); err != nil {
		return 0, fmt.Errorf("init store: %w", err)
	}
	slog.Info("ssopool: credentials loaded", "count", len(tokens), "strategy", m.strategy)
	return len(tokens), nil
}

func readSecretsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Warn("ssopool: credential file missing", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	var tokens []string
	for _, line := range strings.Split(string(data), "\n") {
		token := strings.TrimSpace(line)
		if token == "" || strings.HasPrefix(token, "#") {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// NextCredential aplica la estrategia de rotación sobre el subconjunto
// elegible y retorna una credencial, o ErrNoCredentialAvailable si no hay
// ninguna. Antes de seleccionar comprueba el vencimiento de la ventana
// diaria.
func (m *Manager) NextCredential(ctx context.Context) (*domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tokens) == 0 {
		if _, err := m.loadLocked(ctx); err != nil {
			return nil, err
		}
		if len(m.tokens) == 0 {
			return nil, domain.ErrNoCredentialAvailable
		}
	}

	applied, err := m.store.TryDailyReset(ctx, m.hashesLocked(), m.now(), ResetInterval)
	if err != nil {
		return nil, fmt.Errorf("daily reset: %w", err)
	}
	if applied {
		slog.Info("ssopool: daily reset applied")
	}

	creds, err := m.credentialsLocked(ctx)
	if err != nil {
		return nil, err
	}

	selectable := make([]domain.Credential, 0, len(creds))
	for i := range creds {
		if creds[i].Selectable() {
			selectable = append(selectable, creds[i])
		}
	}
	if len(selectable) == 0 {
		return m.recoverExhaustedLocked(ctx, creds)
	}

	switch m.strategy {
	case domain.StrategyRoundRobin:
		cursor, err := m.store.NextIndex(ctx)
		if err != nil {
			return nil, fmt.Errorf("advance cursor: %w", err)
		}
		return pickRoundRobin(selectable, cursor), nil
	case domain.StrategyLeastUsed:
		return pickLeastUsed(selectable), nil
	case domain.StrategyLeastRecent:
		return pickLeastRecent(selectable), nil
	case domain.StrategyWeighted:
		return pickWeighted(selectable, m.rnd), nil
	default:
		return pickHybrid(selectable, m.now()), nil
	}
}

// recoverExhaustedLocked distingue las dos causas de agotamiento. Si todas
// las credenciales están marcadas como fallidas, se limpian los flags y se
// retorna la primera: un fallo generalizado sin gasto de cuota suele ser un
// problema transitorio del upstream, no credenciales malas. Si la cuota está
// genuinamente agotada no hay nada que recuperar.
func (m *Manager) recoverExhaustedLocked(ctx context.Context, creds []domain.Credential) (*domain.Credential, error) {
	slog.Warn("ssopool: all credentials exhausted or failed")

	if len(creds) == 0 {
		return nil, domain.ErrNoCredentialAvailable
	}
	for i := range creds {
		if !creds[i].Failed {
			return nil, domain.ErrNoCredentialAvailable
		}
	}

	if err := m.store.ClearFailed(ctx); err != nil {
		return nil, fmt.Errorf("clear failed flags: %w", err)
	}
	slog.Info("ssopool: cleared failed flags to recover")

	first := creds[0]
	first.Failed = false
	return &first, nil
}

func (m *Manager) credentialsLocked(ctx context.Context) ([]domain.Credential, error) {
	states, err := m.store.States(ctx, m.hashesLocked())
	if err != nil {
		return nil, fmt.Errorf("read credential states: %w", err)
	}

	creds := make([]domain.Credential, 0, len(m.tokens))
	for _, token := range m.tokens {
		st := states[domain.KeyHash(token)]
		creds = append(creds, domain.Credential{
			Token:       token,
			UsageCount:  st.Count,
			DailyLimit:  m.dailyLimit,
			Failed:      st.Failed,
			AgeVerified: st.AgeVerified,
			LastUsed:    st.LastUsed,
			FirstUsed:   st.FirstUsed,
		})
	}
	return creds, nil
}

func (m *Manager) hashesLocked() []string {
	hashes := make([]string, len(m.tokens))
	for i, t := range m.tokens {
		hashes[i] = domain.KeyHash(t)
	}
	return hashes
}

// RecordUsage incrementa atómicamente el contador de uso de la credencial y
// sella last_used
func (m *Manager) RecordUsage(ctx context.Context, token string) error {
	if err := m.store.IncrUsage(ctx, domain.KeyHash(token), m.now()); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	slog.Debug("ssopool: usage recorded", "key", domain.KeyHash(token))
	return nil
}

// MarkFailed excluye la credencial de la selección hasta el próximo reset o
// MarkSuccess
func (m *Manager) MarkFailed(ctx context.Context, token, reason string) error {
	if err := m.store.SetFailed(ctx, domain.KeyHash(token), true); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	slog.Warn("ssopool: credential marked failed", "key", domain.KeyHash(token), "reason", reason)
	return nil
}

// MarkSuccess limpia el flag de fallo
func (m *Manager) MarkSuccess(ctx context.Context, token string) error {
	if err := m.store.SetFailed(ctx, domain.KeyHash(token), false); err != nil {
		return fmt.Errorf("mark success: %w", err)
	}
	return nil
}

// AgeVerified consulta el flag de verificación de edad
func (m *Manager) AgeVerified(ctx context.Context, token string) (bool, error) {
	return m.store.AgeVerified(ctx, domain.KeyHash(token))
}

// SetAgeVerified actualiza el flag de verificación de edad
func (m *Manager) SetAgeVerified(ctx context.Context, token string, verified bool) error {
	if err := m.store.SetAgeVerified(ctx, domain.KeyHash(token), verified); err != nil {
		return fmt.Errorf("set age verified: %w", err)
	}
	slog.Info("ssopool: age verification updated", "key", domain.KeyHash(token), "verified", verified)
	return nil
}

// Status retorna la foto del pool: totales, estrategia y el detalle por
// credencial identificado por KeyHash
func (m *Manager) Status(ctx context.Context) (*domain.PoolStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	creds, err := m.credentialsLocked(ctx)
	if err != nil {
		return nil, err
	}
	lastReset, err := m.store.LastReset(ctx)
	if err != nil {
		return nil, fmt.Errorf("read last reset: %w", err)
	}

	status := &domain.PoolStatus{
		Total:      len(creds),
		Strategy:   m.strategy,
		DailyLimit: m.dailyLimit,
		LastReset:  lastReset,
	}
	if !lastReset.IsZero() {
		status.NextReset = lastReset.Add(ResetInterval)
	}

	for i := range creds {
		c := &creds[i]
		cs := domain.CredentialStatus{
			Key:         c.KeyHash(),
			UsageCount:  c.UsageCount,
			DailyLimit:  c.DailyLimit,
			Remaining:   c.Remaining(),
			Failed:      c.Failed,
			AgeVerified: c.AgeVerified,
		}
		if !c.LastUsed.IsZero() {
			lu := c.LastUsed
			cs.LastUsed = &lu
		}
		status.Credentials = append(status.Credentials, cs)

		switch {
		case c.Failed:
			status.Failed++
		case c.UsageCount >= c.DailyLimit:
			status.Exhausted++
		default:
			status.Available++
		}
	}
	return status, nil
}

// Reload olvida la membresía actual y vuelve a leer el archivo. Los
// contadores persistidos de las credenciales que permanecen se conservan.
func (m *Manager) Reload(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		return 0, fmt.Errorf("clear store: %w", err)
	}
	m.tokens = nil
	return m.loadLocked(ctx)
}

// ResetDailyUsage dispara el reset de cuotas incondicionalmente
func (m *Manager) ResetDailyUsage(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.ResetUsage(ctx, m.hashesLocked(), m.now()); err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	slog.Info("ssopool: manual usage reset")
	return nil
}

// Strategy retorna la estrategia configurada
func (m *Manager) Strategy() domain.RotationStrategy {
	return m.strategy
}
