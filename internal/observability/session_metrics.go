package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (c *VisibilityCollector) registerSessionMetrics(reg prometheus.Registerer) error {
	pairs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sightline_pairs_total",
		Help: "Observer-target pairs processed, labeled by outcome (visible, occluded, degenerate, failed).",
	}, []string{"outcome"})
	pairs, err := registerCounterVec(reg, pairs, "sightline_pairs_total")
	if err != nil {
		return err
	}

	query := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sightline_scene_query_duration_seconds",
		Help:    "Duration of nearest-intersection scene queries.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
	query, err = registerHistogram(reg, query, "sightline_scene_query_duration_seconds")
	if err != nil {
		return err
	}

	sessions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sightline_sessions_total",
		Help: "Visibility sessions run to completion or cancellation.",
	})
	sessions, err = registerCounter(reg, sessions, "sightline_sessions_total")
	if err != nil {
		return err
	}

	sessionDur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sightline_session_duration_seconds",
		Help:    "Wall-clock duration of visibility sessions.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
	sessionDur, err = registerHistogram(reg, sessionDur, "sightline_session_duration_seconds")
	if err != nil {
		return err
	}

	layers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sightline_scene_layers",
		Help: "Number of enabled scene layers.",
	}), "sightline_scene_layers")
	if err != nil {
		return err
	}

	c.Pairs = pairs
	c.QueryDuration = query
	c.Sessions = sessions
	c.SessionDurations = sessionDur
	c.SceneLayers = layers
	return nil
}

// ObservePair counts one pair outcome and records its scene query duration.
// Pairs that never reached the scene (zero duration) are only counted.
func (c *VisibilityCollector) ObservePair(outcome string, queryDuration time.Duration) {
	if c == nil {
		return
	}
	if c.Pairs != nil {
		c.Pairs.WithLabelValues(outcome).Inc()
	}
	if c.QueryDuration != nil && queryDuration > 0 {
		c.QueryDuration.Observe(queryDuration.Seconds())
	}
}

// ObserveSession records a finished session.
func (c *VisibilityCollector) ObserveSession(_ int, d time.Duration) {
	if c == nil {
		return
	}
	if c.Sessions != nil {
		c.Sessions.Inc()
	}
	if c.SessionDurations != nil {
		c.SessionDurations.Observe(d.Seconds())
	}
}

// SetSceneLayers updates the enabled layer gauge.
func (c *VisibilityCollector) SetSceneLayers(n int) {
	if c == nil || c.SceneLayers == nil {
		return
	}
	c.SceneLayers.Set(float64(n))
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
