// Package metrics exposes Prometheus instrumentation for the
// connection engine. Every method is nil-receiver safe so components
// can hold a possibly-nil *Collector and call into it unconditionally,
// the same way they publish to the event bus unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector registers and updates the connection engine's metrics.
type Collector struct {
	reconnectsTotal     prometheus.Counter
	pendingRequests     prometheus.Gauge
	framesSentTotal     *prometheus.CounterVec
	framesReceivedTotal *prometheus.CounterVec
	phoneProbeRTT       prometheus.Histogram
}

// New creates and registers a Collector against reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wawire_reconnects_total",
			Help: "Total number of reconnect attempts initiated by the state machine.",
		}),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wawire_pending_requests",
			Help: "Current number of in-flight correlator waiters.",
		}),
		framesSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wawire_frames_sent_total",
			Help: "Total frames sent, by kind.",
		}, []string{"kind"}),
		framesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wawire_frames_received_total",
			Help: "Total frames received, by kind.",
		}, []string{"kind"}),
		phoneProbeRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wawire_phone_probe_round_trip_seconds",
			Help:    "Round trip time of admin-test phone liveness probes.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		c.reconnectsTotal,
		c.pendingRequests,
		c.framesSentTotal,
		c.framesReceivedTotal,
		c.phoneProbeRTT,
	)
	return c
}

func (c *Collector) ReconnectScheduled() {
	if c == nil {
		return
	}
	c.reconnectsTotal.Inc()
}

func (c *Collector) SetPendingRequests(n int) {
	if c == nil {
		return
	}
	c.pendingRequests.Set(float64(n))
}

func (c *Collector) FrameSent(kind string) {
	if c == nil {
		return
	}
	c.framesSentTotal.WithLabelValues(kind).Inc()
}

func (c *Collector) FrameReceived(kind string) {
	if c == nil {
		return
	}
	c.framesReceivedTotal.WithLabelValues(kind).Inc()
}

func (c *Collector) ObservePhoneProbeRTT(seconds float64) {
	if c == nil {
		return
	}
	c.phoneProbeRTT.Observe(seconds)
}
