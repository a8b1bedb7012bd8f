package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/reactorflow/internal/runtime/messagepool"
)

// PoolSource reports pool occupancy per message type.
type PoolSource interface {
	All() []messagepool.Stats
}

// QueueSource reports dispatcher ring occupancy.
type QueueSource interface {
	Pending() int
	Capacity() int
}

// Collector reads pool and ring gauges at scrape time so the hot path never
// touches them.
type Collector struct {
	pools PoolSource
	queue QueueSource

	live      *prometheus.Desc
	available *prometheus.Desc
	capacity  *prometheus.Desc
	limit     *prometheus.Desc
	depth     *prometheus.Desc
	ringCap   *prometheus.Desc
}

// NewCollector builds a scrape-time collector. Either source may be nil.
func NewCollector(pools PoolSource, queue QueueSource) *Collector {
	labels := []string{"type_id", "type"}
	return &Collector{
		pools:     pools,
		queue:     queue,
		live:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "live"), "Instances created and not discarded", labels, nil),
		available: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "available"), "Instances idle in the pool", labels, nil),
		capacity:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "capacity"), "Current backing store capacity", labels, nil),
		limit:     prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "max"), "Maximum number of live instances", labels, nil),
		depth:     prometheus.NewDesc(prometheus.BuildFQName(namespace, "dispatch", "queue_depth"), "Messages waiting in the dispatch ring", nil, nil),
		ringCap:   prometheus.NewDesc(prometheus.BuildFQName(namespace, "dispatch", "queue_capacity"), "Dispatch ring capacity", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.live
	ch <- c.available
	ch <- c.capacity
	ch <- c.limit
	ch <- c.depth
	ch <- c.ringCap
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.pools != nil {
		for _, s := range c.pools.All() {
			id := strconv.FormatInt(int64(s.TypeID), 10)
			ch <- prometheus.MustNewConstMetric(c.live, prometheus.GaugeValue, float64(s.Live), id, s.Name)
			ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, float64(s.Available), id, s.Name)
			ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity), id, s.Name)
			ch <- prometheus.MustNewConstMetric(c.limit, prometheus.GaugeValue, float64(s.Max), id, s.Name)
		}
	}
	if c.queue != nil {
		ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(c.queue.Pending()))
		ch <- prometheus.MustNewConstMetric(c.ringCap, prometheus.GaugeValue, float64(c.queue.Capacity()))
	}
}
