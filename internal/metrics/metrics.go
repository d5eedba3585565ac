// Package metrics exports operational counters in Prometheus exposition
// format. The collector subscribes to engine events, so the counters
// track committed operations only.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tiervault/tiervault/internal/staking"
)

// Collector registers TierVault metrics in a dedicated registry so they
// do not interfere with the default global registry.
type Collector struct {
	registry *prometheus.Registry

	deposits        prometheus.Counter
	claims          prometheus.Counter
	depositedAmount prometheus.Counter
	payouts         prometheus.Counter
	tierUpdates     prometheus.Counter
	approvalChanges prometheus.Counter
	rejections      *prometheus.CounterVec

	eventSeq      prometheus.Gauge
	uptimeSeconds prometheus.Gauge

	rpcDuration *prometheus.HistogramVec

	startTime time.Time
}

// NewCollector creates a Collector with all metrics registered.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	deposits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tiervault",
		Name:      "deposits_total",
		Help:      "Total number of committed deposits.",
	})

	claims := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tiervault",
		Name:      "claims_total",
		Help:      "Total number of committed claims.",
	})

	depositedAmount := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tiervault",
		Name:      "deposited_amount_total",
		Help:      "Sum of deposited amounts in base units.",
	})

	payouts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tiervault",
		Name:      "payouts_total",
		Help:      "Sum of claim payouts in base units.",
	})

	tierUpdates := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tiervault",
		Name:      "tier_updates_total",
		Help:      "Total number of tier configuration updates.",
	})

	approvalChanges := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tiervault",
		Name:      "approval_changes_total",
		Help:      "Total number of whitelist changes.",
	})

	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tiervault",
		Name:      "rejections_total",
		Help:      "Total number of rejected operations by reason.",
	}, []string{"reason"})

	eventSeq := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tiervault",
		Name:      "event_seq",
		Help:      "Sequence number of the latest audit event.",
	})

	uptimeSec := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tiervault",
		Name:      "uptime_seconds",
		Help:      "Time since the daemon started in seconds.",
	})

	rpcDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tiervault",
		Name:      "rpc_duration_seconds",
		Help:      "RPC request latency histogram by method.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method"})

	reg.MustRegister(deposits)
	reg.MustRegister(claims)
	reg.MustRegister(depositedAmount)
	reg.MustRegister(payouts)
	reg.MustRegister(tierUpdates)
	reg.MustRegister(approvalChanges)
	reg.MustRegister(rejections)
	reg.MustRegister(eventSeq)
	reg.MustRegister(uptimeSec)
	reg.MustRegister(rpcDuration)

	return &Collector{
		registry:        reg,
		deposits:        deposits,
		claims:          claims,
		depositedAmount: depositedAmount,
		payouts:         payouts,
		tierUpdates:     tierUpdates,
		approvalChanges: approvalChanges,
		rejections:      rejections,
		eventSeq:        eventSeq,
		uptimeSeconds:   uptimeSec,
		rpcDuration:     rpcDuration,
		startTime:       time.Now(),
	}
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Publish updates counters from a committed engine event. Implements
// staking.EventSink.
func (c *Collector) Publish(e *staking.Event) {
	c.eventSeq.Set(float64(e.Seq))

	switch e.Kind {
	case staking.EventDeposited:
		c.deposits.Inc()
		c.depositedAmount.Add(float64(e.Amount))
	case staking.EventClaimed:
		c.claims.Inc()
		c.payouts.Add(float64(e.Payout))
	case staking.EventTierUpdated:
		c.tierUpdates.Inc()
	case staking.EventWhitelistChanged:
		c.approvalChanges.Inc()
	}
}

// RecordRejection counts a rejected operation by reason.
func (c *Collector) RecordRejection(reason string) {
	c.rejections.WithLabelValues(reason).Inc()
}

// RecordRPCRequest records the latency of one RPC dispatch.
func (c *Collector) RecordRPCRequest(method string, duration time.Duration) {
	c.rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// Handler returns an http.Handler serving the Prometheus text exposition
// format. Uptime is refreshed before each scrape.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.uptimeSeconds.Set(time.Since(c.startTime).Seconds())
		promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
