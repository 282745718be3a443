// Package metrics exports XBDM session traffic to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gni.dev/xbox/internal/dbg/xbdm"
)

// Observer implements xbdm.Observer.
type Observer struct {
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
	binary   prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "xbtool",
				Subsystem: "xbdm",
				Name:      "commands_total",
				Help:      "Commands sent to the console by status class.",
			},
			[]string{"command", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "xbtool",
				Subsystem: "xbdm",
				Name:      "command_duration_seconds",
				Help:      "Time from sending a command to reading its status line.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		binary: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "xbtool",
				Subsystem: "xbdm",
				Name:      "binary_bytes_total",
				Help:      "Bytes received in binary payloads.",
			},
		),
	}
	for _, c := range []prometheus.Collector{o.commands, o.duration, o.binary} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *Observer) CommandDone(name string, resp xbdm.Response, elapsed time.Duration) {
	o.commands.WithLabelValues(name, resp.Status().String()).Inc()
	o.duration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (o *Observer) BinaryRead(n int) {
	o.binary.Add(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
