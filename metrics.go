package memcache

import "github.com/prometheus/client_golang/prometheus"

// PrometheusCollector adapts a Client's stats (and those of the
// Connections it owns) into a prometheus.Collector, so a caller registers
// one object with a prometheus.Registry instead of polling Stats() to
// build gauges by hand.
type PrometheusCollector struct {
	client *Client

	opsTotal     *prometheus.Desc
	cacheResult  *prometheus.Desc
	errorsTotal  *prometheus.Desc
	connDials    *prometheus.Desc
	connRetries  *prometheus.Desc
	connTimeouts *prometheus.Desc
	connFatal    *prometheus.Desc
}

var _ prometheus.Collector = (*PrometheusCollector)(nil)

// NewPrometheusCollector wraps client. The returned collector reads
// client's stats live on every Collect call; it holds no state of its own.
func NewPrometheusCollector(client *Client) *PrometheusCollector {
	const ns = "memcache"
	return &PrometheusCollector{
		client: client,
		opsTotal: prometheus.NewDesc(
			ns+"_operations_total", "Total client operations by kind.",
			[]string{"op"}, nil),
		cacheResult: prometheus.NewDesc(
			ns+"_cache_result_total", "Get results by hit/miss.",
			[]string{"result"}, nil),
		errorsTotal: prometheus.NewDesc(
			ns+"_errors_total", "Total operations that returned an error.",
			nil, nil),
		connDials: prometheus.NewDesc(
			ns+"_connection_dials_total", "Successful dials by server.",
			[]string{"server"}, nil),
		connRetries: prometheus.NewDesc(
			ns+"_connection_reconnects_total", "Reconnects after a broken connection, by server.",
			[]string{"server"}, nil),
		connTimeouts: prometheus.NewDesc(
			ns+"_connection_timeouts_total", "Connect timeouts, by server.",
			[]string{"server"}, nil),
		connFatal: prometheus.NewDesc(
			ns+"_connection_fatal_failures_total", "Fatal failure cascades, by server.",
			[]string{"server"}, nil),
	}
}

func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.opsTotal
	ch <- c.cacheResult
	ch <- c.errorsTotal
	ch <- c.connDials
	ch <- c.connRetries
	ch <- c.connTimeouts
	ch <- c.connFatal
}

func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.client.Stats()

	ch <- prometheus.MustNewConstMetric(c.opsTotal, prometheus.CounterValue, float64(s.Gets), "get")
	ch <- prometheus.MustNewConstMetric(c.opsTotal, prometheus.CounterValue, float64(s.Sets), "set")
	ch <- prometheus.MustNewConstMetric(c.opsTotal, prometheus.CounterValue, float64(s.Deletes), "delete")
	ch <- prometheus.MustNewConstMetric(c.opsTotal, prometheus.CounterValue, float64(s.Increments), "increment")
	ch <- prometheus.MustNewConstMetric(c.opsTotal, prometheus.CounterValue, float64(s.Decrements), "decrement")

	ch <- prometheus.MustNewConstMetric(c.cacheResult, prometheus.CounterValue, float64(s.CacheHits), "hit")
	ch <- prometheus.MustNewConstMetric(c.cacheResult, prometheus.CounterValue, float64(s.CacheMisses), "miss")

	ch <- prometheus.MustNewConstMetric(c.errorsTotal, prometheus.CounterValue, float64(s.Errors))

	for server, cs := range c.client.ConnectionStats() {
		ch <- prometheus.MustNewConstMetric(c.connDials, prometheus.CounterValue, float64(cs.Dials), server)
		ch <- prometheus.MustNewConstMetric(c.connRetries, prometheus.CounterValue, float64(cs.Reconnects), server)
		ch <- prometheus.MustNewConstMetric(c.connTimeouts, prometheus.CounterValue, float64(cs.Timeouts), server)
		ch <- prometheus.MustNewConstMetric(c.connFatal, prometheus.CounterValue, float64(cs.FatalFailures), server)
	}
}
