// Package observability exposes the node's link and command-pipeline
// state as Prometheus metrics.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lora-node/lora-node-agent/internal/command"
	"github.com/lora-node/lora-node-agent/internal/link"
)

// LinkCollector registers node metrics that read the live manager and
// command queue at scrape time.
type LinkCollector struct {
	gatherer prometheus.Gatherer
}

// NewLinkCollector registers the node metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewLinkCollector(reg prometheus.Registerer, mgr *link.Manager, queue *command.Queue) (*LinkCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "node_tx_attempts_total",
			Help: "Total radio transmission attempts, including retries.",
		}, func() float64 { return float64(mgr.Stats().Snapshot().TxCount) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "node_tx_success_total",
			Help: "Total confirmed transmissions.",
		}, func() float64 { return float64(mgr.Stats().Snapshot().TxSuccessCount) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "node_tx_failed_total",
			Help: "Total failed transmission attempts.",
		}, func() float64 { return float64(mgr.Stats().Snapshot().TxFailCount) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "node_rx_total",
			Help: "Total downlink frames received.",
		}, func() float64 { return float64(mgr.Stats().Snapshot().RxCount) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "node_join_retries_total",
			Help: "Total join attempts.",
		}, func() float64 { return float64(mgr.Stats().Snapshot().JoinRetryCount) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "node_link_state",
			Help: "Link state: 0 idle, 1 joining, 2 connected, 3 disconnected.",
		}, func() float64 { return float64(mgr.State()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "node_duty_cycle_usage_percent",
			Help: "Share of the duty-cycle window consumed by airtime.",
		}, func() float64 { return mgr.DutyCycle().UsagePercent() }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "node_command_queue_depth",
			Help: "Commands waiting for execution.",
		}, func() float64 { return float64(queue.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "node_uptime_seconds",
			Help: "Seconds since the agent started.",
		}, func() float64 { return mgr.Uptime().Seconds() }),
	}

	for _, c := range collectors {
		if err := register(reg, c); err != nil {
			return nil, err
		}
	}

	return &LinkCollector{gatherer: gatherer}, nil
}

// Handler serves the metrics in Prometheus exposition format.
func (c *LinkCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func register(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return fmt.Errorf("register collector: %w", err)
	}
	return nil
}
