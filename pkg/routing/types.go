package routing

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/types"
)

// RoutingRequest is the router's view of one inbound request. It is not
// modified after creation.
type RoutingRequest struct {
	// ID is the request id used for logs and events.
	ID string

	TaskType                 types.TaskType
	ClassificationConfidence float64

	// Objective selects the weight table. Empty uses the configured default.
	Objective types.Objective

	// MaxCost excludes providers whose cost per unit exceeds it. Zero
	// disables the constraint.
	MaxCost float64

	// MaxLatency excludes providers whose baseline latency exceeds it. Zero
	// disables the constraint.
	MaxLatency time.Duration

	// RequiredTags are capability tags every candidate must carry in
	// addition to the task type.
	RequiredTags []string

	// Fingerprint identifies equivalent requests for caching.
	Fingerprint string
}

// Fingerprint returns the SHA-256 of the normalized payload, the task type
// and the sorted required tags. Normalization trims surrounding whitespace
// and unifies line endings.
func Fingerprint(payload []byte, task types.TaskType, requiredTags []string) string {
	norm := strings.TrimSpace(strings.ReplaceAll(string(payload), "\r\n", "\n"))

	tags := slices.Clone(requiredTags)
	slices.Sort(tags)
	tags = slices.Compact(tags)

	h := sha256.New()
	h.Write([]byte(norm))
	h.Write([]byte{0})
	h.Write([]byte(task.Normalize()))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(tags, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

// Candidate is one ranked provider with its scoring rationale.
type Candidate struct {
	ProviderID string `json:"provider_id"`

	CostScore     float64 `json:"cost_score"`
	LatencyScore  float64 `json:"latency_score"`
	AccuracyScore float64 `json:"accuracy_score"`
	Score         float64 `json:"score"`

	// ErrorRate is the recent error rate used to break ties.
	ErrorRate float64      `json:"error_rate"`
	Status    types.Status `json:"status"`
}

// ExclusionReason says why a provider was filtered out.
type ExclusionReason string

const (
	ReasonCapability  ExclusionReason = "capability"
	ReasonUnavailable ExclusionReason = "unavailable"
	ReasonMaxCost     ExclusionReason = "max_cost"
	ReasonMaxLatency  ExclusionReason = "max_latency"
	ReasonRequiredTag ExclusionReason = "required_tag"
)

// Exclusion records a filtered provider.
type Exclusion struct {
	ProviderID string          `json:"provider_id"`
	Reason     ExclusionReason `json:"reason"`
}

// RoutingDecision is the ranked fallback chain for one request.
type RoutingDecision struct {
	RequestID string         `json:"request_id"`
	TaskType  types.TaskType `json:"task_type"`

	// Candidates is the fallback chain, best first. Never empty.
	Candidates []Candidate `json:"candidates"`

	// Objective is the objective the chain was scored with. It differs
	// from RequestedObjective when the tier forced accuracy.
	Objective          types.Objective `json:"objective"`
	RequestedObjective types.Objective `json:"requested_objective"`
	Weights            config.Weights  `json:"weights"`

	Tier types.Tier `json:"tier"`

	// BlendedConfidence is the value the tier was derived from.
	BlendedConfidence float64 `json:"blended_confidence"`

	Exclusions []Exclusion `json:"exclusions,omitempty"`
	DecidedAt  time.Time   `json:"decided_at"`
}

// ProviderIDs returns the chain's provider ids in order.
func (d *RoutingDecision) ProviderIDs() []string {
	ids := make([]string, len(d.Candidates))
	for i, c := range d.Candidates {
		ids[i] = c.ProviderID
	}
	return ids
}
