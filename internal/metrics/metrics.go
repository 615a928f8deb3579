// Package metrics defines the Prometheus collectors exported by gatekeep.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Proxy counts per-connection proxy outcomes. A nil *Proxy is valid and
// records nothing.
type Proxy struct {
	requestsTotal     *prometheus.CounterVec
	blockedTotal      *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	activeConnections prometheus.Gauge
}

// NewProxy creates the proxy collectors and registers them with registerer.
func NewProxy(registerer prometheus.Registerer) *Proxy {
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatekeep",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Requests parsed, by kind (connect, http, socks5).",
		},
		[]string{"kind"},
	)
	registerer.MustRegister(requestsTotal)

	blockedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatekeep",
			Subsystem: "proxy",
			Name:      "blocked_total",
			Help:      "Requests refused by the blacklist, by kind.",
		},
		[]string{"kind"},
	)
	registerer.MustRegister(blockedTotal)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatekeep",
			Subsystem: "proxy",
			Name:      "errors_total",
			Help:      "Error responses sent to clients, by status code.",
		},
		[]string{"status"},
	)
	registerer.MustRegister(errorsTotal)

	activeConnections := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatekeep",
		Subsystem: "proxy",
		Name:      "active_connections",
		Help:      "Client connections currently being handled.",
	})
	registerer.MustRegister(activeConnections)

	return &Proxy{
		requestsTotal:     requestsTotal,
		blockedTotal:      blockedTotal,
		errorsTotal:       errorsTotal,
		activeConnections: activeConnections,
	}
}

func (m *Proxy) Request(kind string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(kind).Inc()
}

func (m *Proxy) Blocked(kind string) {
	if m == nil {
		return
	}
	m.blockedTotal.WithLabelValues(kind).Inc()
}

func (m *Proxy) Error(status int) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *Proxy) ConnOpened() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
}

func (m *Proxy) ConnClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}
