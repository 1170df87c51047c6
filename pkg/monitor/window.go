package monitor

import (
	"math"
	"slices"
	"time"

	"mercator-hq/relay/pkg/types"
)

// sample is one health-bearing attempt in the rolling window.
type sample struct {
	at      time.Time
	task    types.TaskType
	failed  bool
	latency time.Duration
	cost    float64
}

// window is a rolling window bounded by sample count and age. Not safe for
// concurrent use; the owning record serializes access.
type window struct {
	size    int
	maxAge  time.Duration
	samples []sample
}

func newWindow(size int, maxAge time.Duration) *window {
	return &window{size: size, maxAge: maxAge, samples: make([]sample, 0, min(size, 64))}
}

func (w *window) add(s sample) {
	w.samples = append(w.samples, s)
	if over := len(w.samples) - w.size; w.size > 0 && over > 0 {
		w.samples = slices.Delete(w.samples, 0, over)
	}
}

// expire drops samples older than maxAge relative to now.
func (w *window) expire(now time.Time) {
	if w.maxAge <= 0 {
		return
	}
	cutoff := now.Add(-w.maxAge)
	i := 0
	for i < len(w.samples) && w.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = slices.Delete(w.samples, 0, i)
	}
}

// Stats summarizes a provider's rolling window.
type Stats struct {
	Samples     int     `json:"samples"`
	SuccessRate float64 `json:"success_rate"`
	ErrorRate   float64 `json:"error_rate"`

	// SuccessByTask is the success rate per task type for samples that
	// carried one.
	SuccessByTask map[types.TaskType]float64 `json:"success_by_task,omitempty"`

	LatencyP50 time.Duration `json:"latency_p50"`
	LatencyP95 time.Duration `json:"latency_p95"`
	LatencyP99 time.Duration `json:"latency_p99"`
	MeanCost   float64       `json:"mean_cost"`
}

// successRate is the share of samples in the window that succeeded, 1 when
// the window is empty.
func (w *window) successRate() float64 {
	if len(w.samples) == 0 {
		return 1
	}
	ok := 0
	for _, s := range w.samples {
		if !s.failed {
			ok++
		}
	}
	return float64(ok) / float64(len(w.samples))
}

func (w *window) stats() Stats {
	st := Stats{Samples: len(w.samples)}
	if st.Samples == 0 {
		return st
	}

	var failed int
	var cost float64
	latencies := make([]time.Duration, 0, len(w.samples))
	taskTotal := make(map[types.TaskType]int)
	taskOK := make(map[types.TaskType]int)

	for _, s := range w.samples {
		if s.failed {
			failed++
		}
		cost += s.cost
		latencies = append(latencies, s.latency)
		if s.task != "" {
			taskTotal[s.task]++
			if !s.failed {
				taskOK[s.task]++
			}
		}
	}

	n := float64(st.Samples)
	st.ErrorRate = float64(failed) / n
	st.SuccessRate = 1 - st.ErrorRate
	st.MeanCost = cost / n

	if len(taskTotal) > 0 {
		st.SuccessByTask = make(map[types.TaskType]float64, len(taskTotal))
		for task, total := range taskTotal {
			st.SuccessByTask[task] = float64(taskOK[task]) / float64(total)
		}
	}

	slices.Sort(latencies)
	st.LatencyP50 = percentile(latencies, 0.50)
	st.LatencyP95 = percentile(latencies, 0.95)
	st.LatencyP99 = percentile(latencies, 0.99)
	return st
}

// percentile returns the nearest-rank percentile of sorted values.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	return sorted[max(0, min(rank, len(sorted)-1))]
}
