package simulated

import (
	"math"
	"time"
)

// phase is the current intensity regime for a simulated pair's tick rate.
type phase int

const (
	phaseCalm phase = iota
	phaseActive
	phaseBurst
)

// stressConfig holds the timing bounds for each phase.
type stressConfig struct {
	CalmMinMs, CalmMaxMs     int
	ActiveMinMs, ActiveMaxMs int
	BurstMinMs, BurstMaxMs   int
}

func defaultStressConfig() stressConfig {
	return stressConfig{
		CalmMinMs: 200, CalmMaxMs: 800,
		ActiveMinMs: 50, ActiveMaxMs: 200,
		BurstMinMs: 10, BurstMaxMs: 40,
	}
}

// stressController produces a variable tick interval using a sine-wave plus
// random-walk intensity, cycling between calm, active, and burst phases for
// every simulated pair.
type stressController struct {
	rng    *rng
	config stressConfig

	phase         phase
	phaseStart    time.Time
	phaseDuration time.Duration
	intensity     float64

	t          float64
	tStep      float64
	randomWalk float64
}

func newStressController(r *rng, cfg stressConfig) *stressController {
	sc := &stressController{rng: r, config: cfg, phase: phaseCalm, phaseStart: time.Now(), tStep: 0.02}
	sc.phaseDuration = sc.randomDuration(20, 90)
	return sc
}

// next returns the interval to wait before the next tick.
func (sc *stressController) next() time.Duration {
	sc.t += sc.tStep
	sineComponent := (math.Sin(sc.t) + 1) / 2

	sc.randomWalk += sc.rng.Gaussian() * 0.02
	sc.randomWalk *= 0.98

	sc.intensity = sineComponent + sc.randomWalk
	if sc.intensity < 0 {
		sc.intensity = 0
	}
	if sc.intensity > 1 {
		sc.intensity = 1
	}

	if sc.rng.Float64() < 0.001 {
		sc.intensity = 1.0
	}

	now := time.Now()
	if now.Sub(sc.phaseStart) >= sc.phaseDuration {
		sc.phaseStart = now
		sc.updatePhase()
	}

	var minMs, maxMs float64
	switch sc.phase {
	case phaseCalm:
		minMs, maxMs = float64(sc.config.CalmMinMs), float64(sc.config.CalmMaxMs)
	case phaseActive:
		minMs, maxMs = float64(sc.config.ActiveMinMs), float64(sc.config.ActiveMaxMs)
	case phaseBurst:
		minMs, maxMs = float64(sc.config.BurstMinMs), float64(sc.config.BurstMaxMs)
	}
	ms := maxMs - (maxMs-minMs)*sc.intensity
	interval := time.Duration(ms) * time.Millisecond
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return interval
}

func (sc *stressController) updatePhase() {
	switch {
	case sc.intensity < 0.3:
		sc.phase = phaseCalm
		sc.phaseDuration = sc.randomDuration(20, 90)
	case sc.intensity < 0.7:
		sc.phase = phaseActive
		sc.phaseDuration = sc.randomDuration(8, 40)
	default:
		sc.phase = phaseBurst
		sc.phaseDuration = sc.randomDuration(3, 20)
	}
}

func (sc *stressController) randomDuration(minSec, maxSec int) time.Duration {
	return time.Duration(sc.rng.IntRange(minSec, maxSec)) * time.Second
}
