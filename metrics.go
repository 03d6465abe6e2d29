package mdnssd

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "mdnssd"

type metrics struct {
	datagrams    prometheus.Counter
	malformed    prometheus.Counter
	queries      prometheus.Counter
	sendFailures prometheus.Counter
	expired      prometheus.Counter
	instances    prometheus.Gauge
}

// newMetrics creates the finder's collectors and registers them on reg.
// A nil reg leaves them unregistered. Finders created one after another on
// the same reg share the collectors registered first.
func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		datagrams: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "datagrams_received_total",
			Help:      "Datagrams received on all sockets.",
		})),
		malformed: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "datagrams_malformed_total",
			Help:      "Datagrams dropped because they could not be decoded.",
		})),
		queries: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queries_sent_total",
			Help:      "PTR queries sent, counted per socket.",
		})),
		sendFailures: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "query_send_failures_total",
			Help:      "PTR queries that could not be sent.",
		})),
		expired: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "instances_expired_total",
			Help:      "Service instances removed because their TTL ran out.",
		})),
		instances: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "instances",
			Help:      "Service instances currently known.",
		})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if reg == nil {
		return c
	}
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	logger.Warn("Failed to register metric", "error", err)
	return c
}
