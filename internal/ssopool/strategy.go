package ssopool

import (
	"math"
	"time"

	"github.com/elsanchez/imagine-gateway/internal/domain"
)

// Las estrategias operan siempre sobre el subconjunto elegible, en orden de
// encuentro. Son funciones puras: el Manager aporta cursor, azar y reloj.

// pickRoundRobin rota cíclicamente según el cursor compartido. El cursor
// llega post-incremento, por eso el -1.
func pickRoundRobin(selectable []domain.Credential, cursor int64) *domain.Credential {
	idx := int((cursor - 1) % int64(len(selectable)))
	return &selectable[idx]
}

// pickLeastUsed elige la credencial con menor uso hoy; empates por orden de
// encuentro
func pickLeastUsed(selectable []domain.Credential) *domain.Credential {
	best := &selectable[0]
	for i := range selectable {
		if selectable[i].UsageCount < best.UsageCount {
			best = &selectable[i]
		}
	}
	return best
}

// pickLeastRecent elige la credencial con el last_used más antiguo; nunca
// usada gana siempre
func pickLeastRecent(selectable []domain.Credential) *domain.Credential {
	best := &selectable[0]
	for i := range selectable {
		if lastUsedEpoch(&selectable[i]) < lastUsedEpoch(best) {
			best = &selectable[i]
		}
	}
	return best
}

func lastUsedEpoch(c *domain.Credential) int64 {
	if c.LastUsed.IsZero() {
		return 0
	}
	return c.LastUsed.Unix()
}

// credWeight es el peso de sorteo: la cuota restante, con mínimo 1
func credWeight(c *domain.Credential) int {
	if r := c.Remaining(); r > 1 {
		return r
	}
	return 1
}

// pickWeighted hace un sorteo ponderado por cuota restante. rnd debe
// retornar un valor en [0, 1).
func pickWeighted(selectable []domain.Credential, rnd func() float64) *domain.Credential {
	total := 0
	for i := range selectable {
		total += credWeight(&selectable[i])
	}

	roll := rnd() * float64(total)
	cumulative := 0.0
	for i := range selectable {
		cumulative += float64(credWeight(&selectable[i]))
		if roll <= cumulative {
			return &selectable[i]
		}
	}
	return &selectable[len(selectable)-1]
}

// hybridScore puntúa una credencial combinando cuota restante y tiempo sin
// uso: score = remaining * (1 + time_factor). El factor de tiempo crece 0.1
// por minuto hasta 10; una credencial nunca usada recibe el máximo directo.
func hybridScore(c *domain.Credential, now time.Time) float64 {
	remaining := float64(c.Remaining())

	var timeFactor float64
	if c.LastUsed.IsZero() {
		timeFactor = 10
	} else {
		minutes := now.Sub(c.LastUsed).Minutes()
		timeFactor = math.Min(10, minutes*0.1)
	}
	return remaining * (1 + timeFactor)
}

// pickHybrid maximiza hybridScore; empates por orden de encuentro
func pickHybrid(selectable []domain.Credential, now time.Time) *domain.Credential {
	best := &selectable[0]
	bestScore := hybridScore(best, now)
	for i := range selectable {
		if score := hybridScore(&selectable[i], now); score > bestScore {
			best = &selectable[i]
			bestScore = score
		}
	}
	return best
}
