package pullpool

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// queueDepth is a Gauge tracking the current dispatch queue depth
	queueDepth prometheus.Gauge
	// dispatchCount is a Counter vector of scheduling decisions
	dispatchCount *prometheus.CounterVec
)

// EnableMetrics will enable metrics collection for the pool.
// Available metrics are...
//   - git_dispatch_queue_depth
//     A Gauge for the number of repositories waiting on the dispatch queue.
//   - git_dispatch_count - (tags: repo,enqueued)
//     A Counter for each time a repository came due, tagged with whether
//     it was enqueued or skipped because an update was already in flight.
func EnableMetrics(metricsNamespace string, registerer prometheus.Registerer) {
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "git_dispatch_queue_depth",
		Help:      "Number of repositories waiting on the dispatch queue",
	})

	dispatchCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "git_dispatch_count",
		Help:      "Count of due repositories, by enqueue decision",
	},
		[]string{
			// name of the repository
			"repo",
			// Whether the repo was enqueued or skipped
			"enqueued",
		},
	)

	registerer.MustRegister(
		queueDepth,
		dispatchCount,
	)
}

func recordDispatch(repo string, enqueued bool) {
	// if metrics not enabled return
	if dispatchCount == nil {
		return
	}
	dispatchCount.With(prometheus.Labels{
		"repo":     repo,
		"enqueued": strconv.FormatBool(enqueued),
	}).Inc()
}

func updateQueueDepth(depth int) {
	// if metrics not enabled return
	if queueDepth == nil {
		return
	}
	queueDepth.Set(float64(depth))
}
