package imagine

import (
	"context"

	"github.com/elsanchez/imagine-gateway/internal/domain"
)

// streamBuffer acota la cola entre el productor y el consumidor de eventos
const streamBuffer = 16

// GenerateStream expone la misma generación como una secuencia finita de
// eventos: cero o más de progreso y exactamente uno terminal. El canal se
// cierra tras el evento terminal. Cancelar el contexto abandona la
// secuencia: el productor se detiene y la conexión en vuelo se cierra, sin
// trabajo de fondo residual.
func (c *Client) GenerateStream(ctx context.Context, req domain.GenerationRequest) <-chan domain.StreamEvent {
	events := make(chan domain.StreamEvent, streamBuffer)

	go func() {
		defer close(events)

		onProgress := func(ev domain.ProgressEvent) {
			select {
			case events <- domain.StreamEvent{Progress: &ev}:
			case <-ctx.Done():
			}
		}

		result, err := c.generate(ctx, req, onProgress)

		terminal := domain.StreamEvent{Result: result, Err: err}
		select {
		case events <- terminal:
		case <-ctx.Done():
		}
	}()

	return events
}
