package imagine

import (
	"sort"
	"time"

	"github.com/elsanchez/imagine-gateway/internal/domain"
)

// Umbrales de las heurísticas temporales del loop de recepción. Los dos
// umbrales de blocked son deliberadamente distintos: 15s en el camino
// estable y 10s tras un timeout de lectura, igual que el upstream observado.
const (
	readWait                = 5 * time.Second
	blockedSteadyThreshold  = 15 * time.Second
	blockedTimeoutThreshold = 10 * time.Second
	idleCompleteThreshold   = 10 * time.Second
)

// imageState es el progreso de una imagen dentro de una sesión. La etapa
// nunca retrocede y una vez final no se vuelve a tocar.
type imageState struct {
	id    string
	stage domain.Stage
	blob  string
	size  int
	final bool
}

// session es el estado transitorio de un intento de generación: el mapa de
// imágenes por identificador y los instantes que alimentan las heurísticas.
// Vive y muere con el intento; nunca se persiste.
type session struct {
	total     int
	images    map[string]*imageState
	order     []string // orden de primera aparición
	completed int      // imágenes que alcanzaron final

	firstMedium  time.Time // cero = aún no llegó ningún medium
	lastActivity time.Time
}

func newSession(total int, start time.Time) *session {
	return &session{
		total:        total,
		images:       make(map[string]*imageState),
		lastActivity: start,
	}
}

// observe aplica un frame de imagen a la sesión respetando la invariante de
// monotonía: la etapa de un identificador nunca baja y un final nunca se
// sobreescribe. Retorna el evento de progreso sólo si hubo transición de
// etapa; los frames repetidos de la misma etapa actualizan el payload en
// silencio.
func (s *session) observe(id string, stage domain.Stage, blob string, now time.Time) (*domain.ProgressEvent, bool) {
	s.lastActivity = now

	if stage == domain.StageMedium && s.firstMedium.IsZero() {
		s.firstMedium = now
	}

	img, ok := s.images[id]
	if !ok {
		img = &imageState{id: id}
		img.stage = -1 // fuerza transición en el primer frame
		s.images[id] = img
		s.order = append(s.order, id)
	}

	if img.final {
		return nil, false
	}
	if stage < img.stage {
		return nil, false
	}

	transition := stage > img.stage
	img.stage = stage
	img.blob = blob
	img.size = len(blob)

	if stage == domain.StageFinal {
		img.final = true
		s.completed++
	}
	if !transition {
		return nil, false
	}

	return &domain.ProgressEvent{
		ImageID:   id,
		Stage:     stage,
		Size:      img.size,
		IsFinal:   img.final,
		Completed: s.completed,
		Total:     s.total,
	}, true
}

// done indica si ya se reunieron todas las imágenes finales pedidas
func (s *session) done() bool {
	return s.completed >= s.total
}

// blockedSince es la heurística de bloqueo silencioso: con algún medium
// recibido y cero finales, superar el umbral desde el primer medium delata
// que el upstream pasó un checkpoint de moderación y no va a completar.
func (s *session) blockedSince(now time.Time, threshold time.Duration) bool {
	if s.firstMedium.IsZero() || s.completed > 0 {
		return false
	}
	return now.Sub(s.firstMedium) > threshold
}

// looksBlocked indica si la sesión agotada muestra la firma de bloqueo:
// llegó al menos un medium pero ningún final
func (s *session) looksBlocked() bool {
	return !s.firstMedium.IsZero() && s.completed == 0
}

// idleComplete es la heurística de cierre por silencio: con al menos un
// final producido, más de 10s sin frames se toma como generación terminada
// en vez de esperar al timeout completo.
func (s *session) idleComplete(now time.Time) bool {
	return s.completed > 0 && now.Sub(s.lastActivity) > idleCompleteThreshold
}

// candidates retorna las imágenes a persistir: finales primero y después
// las de mayor payload, deduplicadas por identificador, hasta n en total
func (s *session) candidates(n int) []*imageState {
	all := make([]*imageState, 0, len(s.images))
	for _, id := range s.order {
		all = append(all, s.images[id])
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].final != all[j].final {
			return all[i].final
		}
		return all[i].size > all[j].size
	})

	if len(all) > n {
		all = all[:n]
	}
	return all
}
