package routing

import (
	"math"
	"testing"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/types"
)

func approxEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func TestNormalizeRelative(t *testing.T) {
	tests := []struct {
		name          string
		values        []float64
		lowerIsBetter bool
		want          []float64
	}{
		{"cost", []float64{1, 2, 0.5}, true, []float64{0.5, 0.25, 1}},
		{"accuracy", []float64{0.9, 0.95, 0.7}, false, []float64{0.9 / 0.95, 1, 0.7 / 0.95}},
		{"free provider", []float64{0, 2}, true, []float64{1, 0}},
		{"all zero accuracy", []float64{0, 0}, false, []float64{1, 1}},
		{"single", []float64{3}, true, []float64{1}},
		{"empty", nil, true, []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeRelative(tt.values, tt.lowerIsBetter); !approxEqual(got, tt.want) {
				t.Errorf("normalizeRelative(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}

func TestNormalizeMinMax(t *testing.T) {
	tests := []struct {
		name          string
		values        []float64
		lowerIsBetter bool
		want          []float64
	}{
		{"latency", []float64{50, 30, 200}, true, []float64{150.0 / 170, 1, 0}},
		{"accuracy", []float64{0.9, 0.95, 0.7}, false, []float64{0.8, 1, 0}},
		{"all equal", []float64{4, 4, 4}, true, []float64{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeMinMax(tt.values, tt.lowerIsBetter); !approxEqual(got, tt.want) {
				t.Errorf("normalizeMinMax(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}

func TestCompareCandidates(t *testing.T) {
	tests := []struct {
		name string
		a, b Candidate
		want int
	}{
		{"higher score first", Candidate{ProviderID: "b", Score: 0.9}, Candidate{ProviderID: "a", Score: 0.8}, -1},
		{"near-equal scores use error rate", Candidate{ProviderID: "a", Score: 0.8, ErrorRate: 0.2}, Candidate{ProviderID: "b", Score: 0.8 + 1e-12}, 1},
		{"then id", Candidate{ProviderID: "a", Score: 0.5}, Candidate{ProviderID: "b", Score: 0.5}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compareCandidates(tt.a, tt.b); got != tt.want {
				t.Errorf("compareCandidates() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScore_Rationale(t *testing.T) {
	out := score(abcProviders(), config.Weights{Cost: 0.7, Latency: 0.2, Accuracy: 0.1}, NormalizeRelative)

	c := out[0]
	if c.ProviderID != "C" {
		t.Fatalf("top = %q, want C", c.ProviderID)
	}
	if c.CostScore != 1 {
		t.Errorf("CostScore = %v, want 1", c.CostScore)
	}
	want := 0.7*c.CostScore + 0.2*c.LatencyScore + 0.1*c.AccuracyScore
	if math.Abs(c.Score-want) > 1e-12 {
		t.Errorf("Score = %v, want weighted sum %v", c.Score, want)
	}
	if c.Status != types.StatusHealthy {
		t.Errorf("Status = %q", c.Status)
	}
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint([]byte("hello world"), types.TaskGeneral, []string{"eu", "fast"})

	tests := []struct {
		name    string
		payload string
		task    types.TaskType
		tags    []string
		same    bool
	}{
		{"identical", "hello world", types.TaskGeneral, []string{"eu", "fast"}, true},
		{"surrounding whitespace", "  hello world\n", types.TaskGeneral, []string{"eu", "fast"}, true},
		{"tag order and duplicates", "hello world", types.TaskGeneral, []string{"fast", "eu", "eu"}, true},
		{"unclassified is general", "hello world", types.TaskUnclassified, []string{"eu", "fast"}, true},
		{"different payload", "hello there", types.TaskGeneral, []string{"eu", "fast"}, false},
		{"different task", "hello world", types.TaskCoding, []string{"eu", "fast"}, false},
		{"different tags", "hello world", types.TaskGeneral, []string{"eu"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fingerprint([]byte(tt.payload), tt.task, tt.tags)
			if (got == base) != tt.same {
				t.Errorf("Fingerprint() equal = %v, want %v", got == base, tt.same)
			}
			if len(got) != 64 {
				t.Errorf("len = %d, want 64 hex chars", len(got))
			}
		})
	}

	crlf := Fingerprint([]byte("a\r\nb"), types.TaskGeneral, nil)
	lf := Fingerprint([]byte("a\nb"), types.TaskGeneral, nil)
	if crlf != lf {
		t.Error("line endings change the fingerprint")
	}
}
