package routing

import (
	"cmp"
	"math"
	"slices"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/registry"
)

// Normalization modes.
const (
	NormalizeRelative = "relative"
	NormalizeMinMax   = "minmax"
)

// scoreEpsilon is the score difference below which two candidates tie.
const scoreEpsilon = 1e-9

// score ranks eligible providers under w. Each metric is normalized across
// the eligible set so the best value scores 1.0. Ties go to the lower
// recent error rate, then to the smaller id.
func score(eligible []registry.ModelProvider, w config.Weights, mode string) []Candidate {
	n := len(eligible)
	costs := make([]float64, n)
	latencies := make([]float64, n)
	accuracies := make([]float64, n)
	for i, p := range eligible {
		costs[i] = p.CostPerUnit
		latencies[i] = float64(p.BaselineLatency.Milliseconds())
		accuracies[i] = p.Accuracy
	}

	norm := normalizeRelative
	if mode == NormalizeMinMax {
		norm = normalizeMinMax
	}
	costScores := norm(costs, true)
	latencyScores := norm(latencies, true)
	accuracyScores := norm(accuracies, false)

	out := make([]Candidate, n)
	for i, p := range eligible {
		out[i] = Candidate{
			ProviderID:    p.ID,
			CostScore:     costScores[i],
			LatencyScore:  latencyScores[i],
			AccuracyScore: accuracyScores[i],
			Score:         w.Cost*costScores[i] + w.Latency*latencyScores[i] + w.Accuracy*accuracyScores[i],
			ErrorRate:     p.Health.ErrorRate,
			Status:        p.Status(),
		}
	}

	slices.SortStableFunc(out, compareCandidates)
	return out
}

func compareCandidates(a, b Candidate) int {
	if d := a.Score - b.Score; math.Abs(d) >= scoreEpsilon {
		if d > 0 {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.ErrorRate, b.ErrorRate); c != 0 {
		return c
	}
	return cmp.Compare(a.ProviderID, b.ProviderID)
}

// normalizeRelative scores each value relative to the best one: best/v for
// lower-is-better metrics and v/best otherwise. A zero cost or latency is
// the best possible value and scores 1.0.
func normalizeRelative(values []float64, lowerIsBetter bool) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	if lowerIsBetter {
		best := slices.Min(values)
		for i, v := range values {
			switch {
			case v <= 0:
				out[i] = 1
			case best <= 0:
				out[i] = 0
			default:
				out[i] = best / v
			}
		}
		return out
	}

	best := slices.Max(values)
	for i, v := range values {
		if best <= 0 {
			out[i] = 1
			continue
		}
		out[i] = v / best
	}
	return out
}

// normalizeMinMax maps the range of values onto [0,1]. When every value is
// equal they all score 1.0.
func normalizeMinMax(values []float64, lowerIsBetter bool) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	lo, hi := slices.Min(values), slices.Max(values)
	span := hi - lo
	for i, v := range values {
		switch {
		case span == 0:
			out[i] = 1
		case lowerIsBetter:
			out[i] = (hi - v) / span
		default:
			out[i] = (v - lo) / span
		}
	}
	return out
}
