// Package sensor simulates CO2 sensors for bench runs and demos. Each
// simulated sensor publishes readings on the event bus at a paced rate,
// with a diurnal cycle, measurement noise, slow calibration drift, and
// battery drain, so the processing pipeline sees realistic input.
package sensor

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/carbonloop/edgesentry/pkg/models"
)

// Simulator generates readings for one sensor. Not safe for concurrent
// use; each sensor goroutine owns one.
type Simulator struct {
	sensorID string
	cfg      Config
	rng      *rand.Rand

	start   time.Time
	battery float64
	drift   float64
}

// NewSimulator creates a simulator seeded per sensor so runs differ
// between sensors but readings stay plausible.
func NewSimulator(sensorID string, cfg Config, seed int64) *Simulator {
	return &Simulator{
		sensorID: sensorID,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(seed)),
		start:    time.Now(),
		battery:  100,
	}
}

// Next produces the reading for the given instant. Battery drains a
// little per reading; calibration drift accumulates as a slow random walk.
func (s *Simulator) Next(now time.Time) models.SensorReading {
	// Diurnal cycle peaks mid-afternoon when occupancy is highest.
	hour := float64(now.Hour()) + float64(now.Minute())/60
	diurnal := s.cfg.DiurnalAmplitude * math.Sin((hour-6)/24*2*math.Pi)

	noise := s.rng.NormFloat64() * s.cfg.NoiseAmplitude
	s.drift += s.rng.NormFloat64() * s.cfg.DriftStep

	ppm := s.cfg.BaselinePPM + diurnal + noise + s.drift
	if ppm < 0 {
		ppm = 0
	}

	s.battery -= s.cfg.BatteryDrainPerReading
	if s.battery < 0 {
		s.battery = 0
	}

	signal := s.cfg.SignalBase + s.rng.Intn(2*s.cfg.SignalJitter+1) - s.cfg.SignalJitter

	return models.SensorReading{
		SensorID:       s.sensorID,
		Timestamp:      now.UTC(),
		CO2PPM:         ppm,
		Temperature:    20 + 3*math.Sin((hour-8)/24*2*math.Pi) + s.rng.NormFloat64()*0.3,
		Humidity:       45 + s.rng.NormFloat64()*5,
		Latitude:       s.cfg.Latitude,
		Longitude:      s.cfg.Longitude,
		BatteryLevel:   s.battery,
		SignalStrength: signal,
	}
}

// Battery returns the remaining battery percentage.
func (s *Simulator) Battery() float64 { return s.battery }

// pacer controls a sensor's sampling rate with temporary boosts. Safe
// for concurrent use: the engine's escalator boosts from another
// goroutine while the sensor loop waits on the limiter.
type pacer struct {
	limiter *rate.Limiter

	mu    sync.Mutex
	base  rate.Limit
	boost rate.Limit
	timer *time.Timer
}

func newPacer(interval time.Duration, boostFactor int) *pacer {
	if boostFactor < 1 {
		boostFactor = 1
	}
	base := rate.Every(interval)
	return &pacer{
		limiter: rate.NewLimiter(base, 1),
		base:    base,
		boost:   rate.Every(interval / time.Duration(boostFactor)),
	}
}

// Wait blocks until the next sample is due.
func (p *pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Boost raises the sampling rate for d, then reverts. A second boost
// during an active one restarts the revert timer.
func (p *pacer) Boost(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.limiter.SetLimit(p.boost)
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(d, func() {
		p.limiter.SetLimit(p.base)
	})
}
