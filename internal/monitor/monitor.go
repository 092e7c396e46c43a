// internal/monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	OnlinePlayers     prometheus.Gauge
	QueuedPlayers     *prometheus.GaugeVec
	ActiveLobbies     prometheus.Gauge
	ActiveTournaments prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	MessagesReceived  *prometheus.CounterVec
	MessagesDropped   prometheus.Counter
	TickDuration      prometheus.Histogram
}

// NewMetrics builds the collectors on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of connected players",
		}),
		QueuedPlayers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued_players",
			Help:      "Players waiting in the matchmaking queue",
		}, []string{"game_type"}),
		ActiveLobbies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_lobbies",
			Help:      "Number of lobbies counting down",
		}),
		ActiveTournaments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_tournaments",
			Help:      "Number of tournaments waiting or in progress",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of live game rooms",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages by event type",
		}, []string{"type"}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound messages dropped by the rate limiter",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Simulation tick processing time",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12),
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OnlinePlayers,
		m.QueuedPlayers,
		m.ActiveLobbies,
		m.ActiveTournaments,
		m.ActiveRooms,
		m.MessagesReceived,
		m.MessagesDropped,
		m.TickDuration,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SetOnlinePlayers(n int) {
	if m == nil {
		return
	}
	m.OnlinePlayers.Set(float64(n))
}

func (m *Metrics) SetQueued(gameType string, n int) {
	if m == nil {
		return
	}
	m.QueuedPlayers.WithLabelValues(gameType).Set(float64(n))
}

func (m *Metrics) SetActive(lobbies, tournaments, rooms int) {
	if m == nil {
		return
	}
	m.ActiveLobbies.Set(float64(lobbies))
	m.ActiveTournaments.Set(float64(tournaments))
	m.ActiveRooms.Set(float64(rooms))
}

func (m *Metrics) IncMessagesReceived(eventType string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncMessagesDropped() {
	if m == nil {
		return
	}
	m.MessagesDropped.Inc()
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(d.Seconds())
}
