package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Recorder implements tl2.Recorder with Prometheus counters and a
// histogram of write-set sizes at commit. A Region's Recorder must be
// registered with a prometheus.Registerer (see cmd/stmbench) for its
// metrics to actually be exported; an unregistered Recorder still counts
// correctly, it simply isn't scraped.
type Recorder struct {
	commits     *prometheus.CounterVec
	aborts      *prometheus.CounterVec
	writeSetLen prometheus.Histogram
}

// NewRecorder constructs a Recorder. Call Collectors to register it.
func NewRecorder() *Recorder {
	return &Recorder{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stm",
			Name:      "commits_total",
			Help:      "Transactions that reached a committed terminal state.",
		}, []string{"read_only"}),
		aborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stm",
			Name:      "aborts_total",
			Help:      "Transactions that reached an aborted terminal state.",
		}, []string{"read_only"}),
		writeSetLen: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stm",
			Name:      "commit_write_set_size",
			Help:      "Number of addresses written by a committed read-write transaction.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

// Collectors returns every metric a caller should pass to
// prometheus.Registerer.MustRegister.
func (r *Recorder) Collectors() []prometheus.Collector {
	return []prometheus.Collector{r.commits, r.aborts, r.writeSetLen}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ObserveCommit implements tl2.Recorder.
func (r *Recorder) ObserveCommit(readOnly bool, writeSetSize int) {
	r.commits.WithLabelValues(boolLabel(readOnly)).Inc()
	if !readOnly && writeSetSize > 0 {
		r.writeSetLen.Observe(float64(writeSetSize))
	}
}

// ObserveAbort implements tl2.Recorder.
func (r *Recorder) ObserveAbort(readOnly bool) {
	r.aborts.WithLabelValues(boolLabel(readOnly)).Inc()
}
