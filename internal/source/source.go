// Package source provides value generators standing in for sensor hardware.
package source

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/sensorsim/internal/errors"
)

const driftFraction = 0.001

// Source supplies the raw quantity for each sample.
type Source interface {
	Next() (float64, error)
}

// Func adapts a plain function into a Source.
type Func func() (float64, error)

func (f Func) Next() (float64, error) {
	return f()
}

// Constant always returns the same value.
type Constant float64

func NewConstant(v float64) Constant {
	return Constant(v)
}

func (c Constant) Next() (float64, error) {
	return float64(c), nil
}

// Uniform draws values uniformly from [min, max).
type Uniform struct {
	min, max float64
	mu       sync.Mutex
	rnd      *rand.Rand
}

// NewUniform creates a uniform source. A zero seed seeds from the clock.
func NewUniform(minValue, maxValue float64, seed int64) (*Uniform, error) {
	if maxValue < minValue {
		return nil, errors.New().WithData(errors.ErrInvalidSource, struct {
			Min float64
			Max float64
		}{minValue, maxValue})
	}

	return &Uniform{min: minValue, max: maxValue, rnd: newRand(seed)}, nil
}

func (u *Uniform) Next() (float64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.min + u.rnd.Float64()*(u.max-u.min), nil
}

// WalkConfig describes a noisy, slowly drifting signal.
type WalkConfig struct {
	Min   float64
	Max   float64
	Noise float64 // relative amplitude of per-sample noise
	Seed  int64
}

// RandomWalk produces a base value with multiplicative noise that drifts by a
// small fraction of the range after every sample. Values stay within range.
type RandomWalk struct {
	cfg  WalkConfig
	mu   sync.Mutex
	rnd  *rand.Rand
	base float64
}

func NewRandomWalk(cfg WalkConfig) (*RandomWalk, error) {
	if cfg.Max < cfg.Min || cfg.Noise < 0 {
		return nil, errors.New().WithData(errors.ErrInvalidSource, cfg)
	}

	rnd := newRand(cfg.Seed)

	return &RandomWalk{
		cfg:  cfg,
		rnd:  rnd,
		base: cfg.Min + rnd.Float64()*(cfg.Max-cfg.Min),
	}, nil
}

func (w *RandomWalk) Next() (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	noise := (w.rnd.Float64()*2 - 1) * w.cfg.Noise * w.base
	value := clamp(w.base+noise, w.cfg.Min, w.cfg.Max)

	drift := (w.rnd.Float64()*2 - 1) * (w.cfg.Max - w.cfg.Min) * driftFraction
	w.base = clamp(w.base+drift, w.cfg.Min, w.cfg.Max)

	return value, nil
}

// Spec names a source kind and its parameters, as read from configuration.
type Spec struct {
	Kind  string
	Min   float64
	Max   float64
	Noise float64
	Seed  int64
}

// FromSpec builds the source named by spec.Kind.
func FromSpec(spec Spec) (Source, error) {
	switch strings.ToLower(spec.Kind) {
	case "", "uniform":
		u, err := NewUniform(spec.Min, spec.Max, spec.Seed)
		if err != nil {
			return nil, err
		}
		return u, nil
	case "walk":
		w, err := NewRandomWalk(WalkConfig{Min: spec.Min, Max: spec.Max, Noise: spec.Noise, Seed: spec.Seed})
		if err != nil {
			return nil, err
		}
		return w, nil
	case "constant":
		return NewConstant(spec.Min), nil
	default:
		return nil, errors.New().WithData(errors.ErrInvalidSource, spec.Kind)
	}
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func clamp(value, minValue, maxValue float64) float64 {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}

	return value
}
