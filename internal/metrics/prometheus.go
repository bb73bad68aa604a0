package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "funding_arb_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry      *prometheus.Registry
	opportunities prometheus.Counter
	opened        prometheus.Counter
	closed        prometheus.Counter
	rejected      prometheus.Counter
	skipped       prometheus.Counter
	ordersPlaced  prometheus.Counter
	ordersFailed  prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	opportunities := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "opportunities_detected_total",
		Help:      "Total number of funding spread opportunities detected.",
	})
	opened := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "positions_opened_total",
		Help:      "Total number of hedge positions opened.",
	})
	closed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "positions_closed_total",
		Help:      "Total number of hedge positions closed by the lifecycle sweep.",
	})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "admission_rejected_total",
		Help:      "Total number of opportunities rejected by the daily notional cap.",
	})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "ticks_skipped_total",
		Help:      "Total number of opportunity ticks skipped due to venue failures.",
	})
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_placed_total",
		Help:      "Total number of hedge leg orders placed.",
	})
	ordersFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_failed_total",
		Help:      "Total number of hedge leg order failures.",
	})

	registry.MustRegister(opportunities, opened, closed, rejected, skipped, ordersPlaced, ordersFailed)

	m := &Metrics{
		OpportunitiesDetected: promCounter{opportunities},
		PositionsOpened:       promCounter{opened},
		PositionsClosed:       promCounter{closed},
		AdmissionRejected:     promCounter{rejected},
		TicksSkipped:          promCounter{skipped},
		OrdersPlaced:          promCounter{ordersPlaced},
		OrdersFailed:          promCounter{ordersFailed},
	}

	return &Prometheus{
		Metrics:       m,
		registry:      registry,
		opportunities: opportunities,
		opened:        opened,
		closed:        closed,
		rejected:      rejected,
		skipped:       skipped,
		ordersPlaced:  ordersPlaced,
		ordersFailed:  ordersFailed,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
