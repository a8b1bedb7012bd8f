// Package metrics exposes reactor counters and pool gauges to Prometheus.
package metrics

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
)

const namespace = "reactorflow"

// Result classifies the outcome of one inbound fragment.
type Result int

const (
	ResultOK Result = iota
	ResultBounds
	ResultUnknownType
	ResultDecodeError
	ResultUnhandled
	ResultHandlerError
	ResultRejected
	resultCount
)

var resultNames = [resultCount]string{
	ResultOK:           "ok",
	ResultBounds:       "bounds",
	ResultUnknownType:  "unknown_type",
	ResultDecodeError:  "decode_error",
	ResultUnhandled:    "unhandled",
	ResultHandlerError: "handler_error",
	ResultRejected:     "rejected",
}

func (r Result) String() string {
	if r < 0 || r >= resultCount {
		return "invalid"
	}
	return resultNames[r]
}

// Metrics tracks fragment outcomes, dispatch outcomes per message type and
// outbound signals.
type Metrics struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	fragmentsTotal  *prometheus.CounterVec
	dispatchedTotal *prometheus.CounterVec
	unhandledTotal  *prometheus.CounterVec
	failedTotal     *prometheus.CounterVec
	signalsTotal    *prometheus.CounterVec
	transitSeconds  prometheus.Histogram

	fragments [resultCount]prometheus.Counter
	counts    [resultCount]atomic.Uint64
	perType   *xsync.MapOf[int32, *typeCounters]
}

type typeCounters struct {
	dispatched prometheus.Counter
	unhandled  prometheus.Counter
	failed     prometheus.Counter
}

// Snapshot is a point-in-time view of the fragment outcome counters.
type Snapshot struct {
	Fragments   map[string]uint64 `json:"fragments"`
	CollectedAt time.Time         `json:"collected_at"`
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// New creates the collectors. Nothing is registered until Register is called.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registerer:      registerer,
		fragmentsTotal:  newCounterVec("fragment", "total", "Inbound fragments by processing result", []string{"result"}),
		dispatchedTotal: newCounterVec("dispatch", "delivered_total", "Messages delivered to their handlers", []string{"type_id"}),
		unhandledTotal:  newCounterVec("dispatch", "unhandled_total", "Messages released without any registered handler", []string{"type_id"}),
		failedTotal:     newCounterVec("dispatch", "handler_errors_total", "Handler invocations that failed or panicked", []string{"type_id"}),
		signalsTotal:    newCounterVec("signal", "total", "Outbound signals by target and result", []string{"target", "result"}),
		transitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fragment",
			Name:      "transit_seconds",
			Help:      "Time between a frame being signalled and consumed",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		perType: xsync.NewMapOf[int32, *typeCounters](),
	}
	for r := Result(0); r < resultCount; r++ {
		m.fragments[r] = m.fragmentsTotal.WithLabelValues(r.String())
	}
	return m
}

// Register registers the collectors plus any extra ones. Safe to call
// multiple times.
func (m *Metrics) Register(extra ...prometheus.Collector) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	collectors := extra
	if !m.registered {
		collectors = append([]prometheus.Collector{
			m.fragmentsTotal,
			m.dispatchedTotal,
			m.unhandledTotal,
			m.failedTotal,
			m.signalsTotal,
			m.transitSeconds,
		}, extra...)
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

// Fragment counts one inbound fragment outcome.
func (m *Metrics) Fragment(r Result) {
	if r < 0 || r >= resultCount {
		return
	}
	m.fragments[r].Inc()
	m.counts[r].Add(1)
}

// Transit observes the latency of one frame.
func (m *Metrics) Transit(d time.Duration) {
	m.transitSeconds.Observe(d.Seconds())
}

// Signal counts one outbound send.
func (m *Metrics) Signal(target string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.signalsTotal.WithLabelValues(target, result).Inc()
}

// Dispatched implements dispatch.Observer.
func (m *Metrics) Dispatched(typeID int32) { m.forType(typeID).dispatched.Inc() }

// Unhandled implements dispatch.Observer.
func (m *Metrics) Unhandled(typeID int32) { m.forType(typeID).unhandled.Inc() }

// HandlerFailed implements dispatch.Observer.
func (m *Metrics) HandlerFailed(typeID int32) { m.forType(typeID).failed.Inc() }

func (m *Metrics) forType(typeID int32) *typeCounters {
	if tc, ok := m.perType.Load(typeID); ok {
		return tc
	}
	tc, _ := m.perType.LoadOrCompute(typeID, func() *typeCounters {
		label := strconv.FormatInt(int64(typeID), 10)
		return &typeCounters{
			dispatched: m.dispatchedTotal.WithLabelValues(label),
			unhandled:  m.unhandledTotal.WithLabelValues(label),
			failed:     m.failedTotal.WithLabelValues(label),
		}
	})
	return tc
}

// GetSnapshot returns the fragment counters.
func (m *Metrics) GetSnapshot() Snapshot {
	s := Snapshot{
		Fragments:   make(map[string]uint64, resultCount),
		CollectedAt: time.Now(),
	}
	for r := Result(0); r < resultCount; r++ {
		s.Fragments[r.String()] = m.counts[r].Load()
	}
	return s
}
