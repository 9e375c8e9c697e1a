package imagine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/elsanchez/imagine-gateway/internal/domain"
)

// CredentialPool es lo que el cliente necesita del pool: adquirir una
// credencial y reportar el desenlace de cada intento
type CredentialPool interface {
	NextCredential(ctx context.Context) (*domain.Credential, error)
	RecordUsage(ctx context.Context, token string) error
	MarkFailed(ctx context.Context, token, reason string) error
	MarkSuccess(ctx context.Context, token string) error
	AgeVerified(ctx context.Context, token string) (bool, error)
	SetAgeVerified(ctx context.Context, token string, verified bool) error
}

// MediaSaver persiste un payload de imagen y retorna su referencia pública
type MediaSaver interface {
	Save(id, b64 string, final bool) (string, error)
}

// Options configura el cliente del protocolo de generación
type Options struct {
	WSURL             string
	ProxyURL          string
	CFClearance       string
	AttemptTimeout    time.Duration // presupuesto de un intento completo
	DefaultCount      int
	MaxRetries        int
	MaxBlockedRetries int
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.WSURL == "" {
		out.WSURL = DefaultWSURL
	}
	if out.AttemptTimeout <= 0 {
		out.AttemptTimeout = 120 * time.Second
	}
	if out.DefaultCount <= 0 {
		out.DefaultCount = 4
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = 5
	}
	if out.MaxBlockedRetries <= 0 {
		out.MaxBlockedRetries = 3
	}
	return out
}

// Client conduce sesiones de generación contra el upstream: una conexión
// streaming por intento, rotando credenciales del pool entre intentos según
// la clasificación del fallo.
type Client struct {
	pool  CredentialPool
	media MediaSaver
	opts  Options

	dialer *websocket.Dialer
	verify ageVerifyFunc

	// attempt es el conductor de un intento; las pruebas lo sustituyen
	attempt func(ctx context.Context, token string, req domain.GenerationRequest, onProgress progressFunc) (*domain.GenerationResult, error)

	now func() time.Time
}

type progressFunc func(domain.ProgressEvent)

// NewClient construye el cliente del protocolo. El pool y el almacenamiento
// llegan inyectados; no hay estado global.
func NewClient(pool CredentialPool, media MediaSaver, opts Options) (*Client, error) {
	dialer, err := newDialer(opts.ProxyURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		pool:   pool,
		media:  media,
		opts:   opts.withDefaults(),
		dialer: dialer,
		now:    time.Now,
	}
	c.verify = newAgeVerifier(opts.ProxyURL, opts.CFClearance)
	c.attempt = c.doGenerate
	return c, nil
}

// Generate ejecuta una llamada lógica de generación completa: hasta
// MaxRetries intentos del protocolo, rotando credenciales en los fallos
// recuperables
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error) {
	return c.generate(ctx, req, nil)
}

func (c *Client) generate(ctx context.Context, req domain.GenerationRequest, onProgress progressFunc) (*domain.GenerationResult, error) {
	if req.Count <= 0 {
		req.Count = c.opts.DefaultCount
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "2:3"
	}
	pinned := req.Token != ""

	start := c.now()
	var lastErr error
	blockedRetries := 0

	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		token := req.Token
		if !pinned {
			cred, err := c.pool.NextCredential(ctx)
			if err != nil {
				return nil, err
			}
			token = cred.Token
		}

		c.ensureAgeVerified(ctx, token)

		result, err := c.attempt(ctx, token, req, onProgress)
		if err == nil {
			if markErr := c.pool.MarkSuccess(ctx, token); markErr != nil {
				slog.Warn("imagine: mark success failed", "error", markErr)
			}
			if usageErr := c.pool.RecordUsage(ctx, token); usageErr != nil {
				slog.Warn("imagine: record usage failed", "error", usageErr)
			}
			result.Duration = c.now().Sub(start)
			result.CredentialKey = domain.KeyHash(token)
			return result, nil
		}

		switch domain.CodeOf(err) {
		case domain.CodeBlocked:
			blockedRetries++
			slog.Warn("imagine: generation blocked", "retry", blockedRetries, "max", c.opts.MaxBlockedRetries)
			if markErr := c.pool.MarkFailed(ctx, token, "blocked"); markErr != nil {
				slog.Warn("imagine: mark failed failed", "error", markErr)
			}
			if blockedRetries >= c.opts.MaxBlockedRetries {
				return nil, domain.NewGenError(domain.CodeBlocked,
					fmt.Sprintf("blocked %d consecutive times", c.opts.MaxBlockedRetries))
			}
			if pinned {
				return nil, err
			}
			lastErr = err
		case domain.CodeRateLimited, domain.CodeUnauthorized:
			if markErr := c.pool.MarkFailed(ctx, token, err.Error()); markErr != nil {
				slog.Warn("imagine: mark failed failed", "error", markErr)
			}
			if pinned {
				return nil, err
			}
			slog.Info("imagine: rotating credential", "attempt", attempt+1, "max", c.opts.MaxRetries, "code", domain.CodeOf(err))
			lastErr = err
		default:
			// Conexión, timeout o error sin clasificar: la rotación no
			// ayuda, se expone tal cual
			return nil, err
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, domain.NewGenError(domain.CodeIncomplete, "all retries failed")
}

// ensureAgeVerified dispara la verificación de edad una única vez por
// credencial no verificada. Es best-effort: su fallo nunca frena el intento.
func (c *Client) ensureAgeVerified(ctx context.Context, token string) {
	verified, err := c.pool.AgeVerified(ctx, token)
	if err != nil {
		slog.Warn("imagine: age verified lookup failed", "error", err)
		return
	}
	if verified {
		return
	}

	slog.Info("imagine: verifying credential age", "key", domain.KeyHash(token))
	if c.verify(ctx, token) {
		if err := c.pool.SetAgeVerified(ctx, token, true); err != nil {
			slog.Warn("imagine: persist age verified failed", "error", err)
		}
	} else {
		slog.Warn("imagine: age verification failed, generating anyway", "key", domain.KeyHash(token))
	}
}

const pingInterval = 20 * time.Second

// doGenerate conduce un intento del protocolo: una conexión, un mensaje de
// petición y el loop de recepción con sus heurísticas temporales
func (c *Client) doGenerate(ctx context.Context, token string, req domain.GenerationRequest, onProgress progressFunc) (*domain.GenerationResult, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.opts.WSURL, wsHeaders(token))
	if err != nil {
		return nil, domain.WrapGenError(domain.CodeConnection, "connect upstream", err)
	}
	defer conn.Close()

	// La cancelación del consumidor cierra la conexión para desbloquear la
	// lectura en curso
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	requestID := uuid.NewString()
	msg := newRequestMessage(requestID, req.Prompt, req.AspectRatio, req.EnableNSFW, c.now())
	if err := conn.WriteJSON(msg); err != nil {
		return nil, domain.WrapGenError(domain.CodeConnection, "send request", err)
	}
	slog.Info("imagine: request sent", "request_id", requestID, "n", req.Count, "aspect_ratio", req.AspectRatio)

	go c.pingLoop(conn, watchDone)

	start := c.now()
	deadline := start.Add(c.opts.AttemptTimeout)
	sess := newSession(req.Count, start)
	var frameErr *domain.GenError

receive:
	for c.now().Before(deadline) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readWait))
		_, data, err := conn.ReadMessage()
		now := c.now()

		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				if sess.blockedSince(now, blockedTimeoutThreshold) {
					slog.Warn("imagine: blocked after read timeout", "since_medium", now.Sub(sess.firstMedium))
					return nil, domain.NewGenError(domain.CodeBlocked, "no final image after moderation checkpoint")
				}
				if sess.idleComplete(now) {
					slog.Info("imagine: idle completion", "completed", sess.completed)
					break receive
				}
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("imagine: connection closed by upstream", "error", err)
			break receive
		}

		var frame serverFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("imagine: unparseable frame dropped", "error", err)
			continue
		}

		switch frame.Type {
		case frameTypeImage:
			if frame.Blob == "" || frame.URL == "" {
				continue
			}
			id := extractImageID(frame.URL)
			if id == "" {
				continue
			}
			stage := classifyStage(frame.URL, len(frame.Blob))
			if ev, changed := sess.observe(id, stage, frame.Blob, now); changed {
				slog.Info("imagine: image frame", "image_id", id, "stage", stage, "size", ev.Size, "completed", ev.Completed, "total", ev.Total)
				if onProgress != nil {
					onProgress(*ev)
				}
			}
		case frameTypeError:
			slog.Warn("imagine: error frame", "code", frame.ErrCode, "message", frame.ErrMsg)
			frameErr = domain.NewGenError(classifyErrCode(frame.ErrCode), frame.ErrMsg)
			if frameErr.Code == domain.CodeRateLimited {
				return nil, frameErr
			}
		}

		if sess.done() {
			slog.Info("imagine: all finals collected", "completed", sess.completed)
			break receive
		}
		if sess.blockedSince(now, blockedSteadyThreshold) {
			slog.Warn("imagine: blocked in steady state", "since_medium", now.Sub(sess.firstMedium))
			return nil, domain.NewGenError(domain.CodeBlocked, "no final image after moderation checkpoint")
		}
	}

	return c.finish(sess, req.Count, frameErr, start, deadline)
}

// classifyErrCode mapea el código crudo de un frame de error a la taxonomía
// del gateway; los códigos desconocidos pasan tal cual para no perderlos
func classifyErrCode(code string) domain.ErrorCode {
	switch code {
	case string(domain.CodeRateLimited):
		return domain.CodeRateLimited
	case string(domain.CodeUnauthorized):
		return domain.CodeUnauthorized
	case "":
		return domain.CodeIncomplete
	default:
		return domain.ErrorCode(code)
	}
}

// finish persiste lo capturado y clasifica el desenlace del intento
func (c *Client) finish(sess *session, n int, frameErr *domain.GenError, start, deadline time.Time) (*domain.GenerationResult, error) {
	var images []domain.GeneratedImage
	for _, img := range sess.candidates(n) {
		url, err := c.media.Save(img.id, img.blob, img.final)
		if err != nil {
			slog.Error("imagine: save image failed", "image_id", img.id, "error", err)
			continue
		}
		slog.Info("imagine: image saved", "image_id", img.id, "stage", img.stage, "size", img.size)
		images = append(images, domain.GeneratedImage{
			ID:    img.id,
			URL:   url,
			B64:   img.blob,
			Stage: img.stage,
			Size:  img.size,
		})
	}

	if len(images) > 0 {
		return &domain.GenerationResult{Images: images}, nil
	}
	if frameErr != nil {
		return nil, frameErr
	}
	if sess.looksBlocked() {
		return nil, domain.NewGenError(domain.CodeBlocked, "no final image after moderation checkpoint")
	}
	if len(sess.images) == 0 && !c.now().Before(deadline) {
		return nil, domain.NewGenError(domain.CodeTimeout,
			fmt.Sprintf("no usable result within %s", deadline.Sub(start)))
	}
	return nil, domain.NewGenError(domain.CodeIncomplete, "no image data received")
}

// pingLoop mantiene viva la conexión durante generaciones largas
func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
