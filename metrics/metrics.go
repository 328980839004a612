// Package metrics exports handshake activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
)

// Collector counts handshake attempts, states and frames. It satisfies
// handshake.Observer.
type Collector struct {
	clock clock.Clock

	Attempts       *prometheus.CounterVec
	Duration       prometheus.Histogram
	States         *prometheus.CounterVec
	FramesSent     prometheus.Counter
	FramesReceived prometheus.Counter
	BytesSent      prometheus.Counter
	BytesReceived  prometheus.Counter
	Resolved       prometheus.Counter
	Suggested      prometheus.Counter
	LastSuccess    prometheus.Gauge
}

// NewCollector creates the collectors under namespace. A nil clock uses the
// wall clock.
func NewCollector(namespace string, clk clock.Clock) *Collector {
	if clk == nil {
		clk = clock.New()
	}
	return &Collector{
		clock: clk,
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handshake_attempts_total",
				Help:      "Handshake attempts by outcome",
			},
			[]string{"outcome"},
		),
		Duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handshake_duration_seconds",
				Help:      "Time from dial to the end of a handshake attempt",
				Buckets:   prometheus.DefBuckets,
			},
		),
		States: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handshake_states_total",
				Help:      "State machine transitions by target state",
			},
			[]string{"state"},
		),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to peers",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames read from peers",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Frame bytes written to peers, length prefix included",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Frame bytes read from peers, length prefix included",
		}),
		Resolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bootstrap_addresses_resolved_total",
			Help:      "Peer addresses obtained from bootstrap DNS names",
		}),
		Suggested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alternate_peers_received_total",
			Help:      "Alternate peers suggested in nack messages",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful handshake",
		}),
	}
}

// Register adds every collector to reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	var err error
	for _, col := range []prometheus.Collector{
		c.Attempts, c.Duration, c.States,
		c.FramesSent, c.FramesReceived, c.BytesSent, c.BytesReceived,
		c.Resolved, c.Suggested, c.LastSuccess,
	} {
		err = multierr.Append(err, reg.Register(col))
	}
	return err
}

// FrameSent records one written frame of size bytes.
func (c *Collector) FrameSent(size int) {
	c.FramesSent.Inc()
	c.BytesSent.Add(float64(size))
}

// FrameReceived records one read frame of size bytes.
func (c *Collector) FrameReceived(size int) {
	c.FramesReceived.Inc()
	c.BytesReceived.Add(float64(size))
}

// StateEntered records a state machine transition.
func (c *Collector) StateEntered(state string) {
	c.States.WithLabelValues(state).Inc()
}

// HandshakeCompleted records the outcome and duration of one attempt.
func (c *Collector) HandshakeCompleted(outcome string, elapsed time.Duration) {
	c.Attempts.WithLabelValues(outcome).Inc()
	c.Duration.Observe(elapsed.Seconds())
	if outcome == "success" {
		c.LastSuccess.Set(float64(c.clock.Now().Unix()))
	}
}

// AddressesResolved records addresses returned by bootstrap resolution.
func (c *Collector) AddressesResolved(n int) {
	c.Resolved.Add(float64(n))
}

// PeersSuggested records alternate peers received in a nack.
func (c *Collector) PeersSuggested(n int) {
	c.Suggested.Add(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
