// Package types defines the domain enums shared by the router packages.
//
// The values are plain strings so they serialize unchanged into YAML
// configuration, JSON responses, log attributes, and the event store.
package types

import (
	"fmt"
	"strings"
)

// TaskType is the coarse category of a request used to select eligible
// providers. Every category doubles as a capability tag.
type TaskType string

const (
	// TaskUnclassified is the zero value before classification has run.
	// Lookups treat it as TaskGeneral.
	TaskUnclassified TaskType = "unclassified"
	TaskCoding       TaskType = "coding"
	TaskReasoning    TaskType = "reasoning"
	TaskSpeed        TaskType = "speed"
	TaskMultilingual TaskType = "multilingual"
	TaskGeneral      TaskType = "general"
)

// TaskTypes lists the categories the classifier can produce, in rule order.
var TaskTypes = []TaskType{TaskCoding, TaskReasoning, TaskSpeed, TaskMultilingual, TaskGeneral}

// Valid reports whether t is one of the classifier categories.
func (t TaskType) Valid() bool {
	for _, known := range TaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Normalize maps the empty and unclassified task types to TaskGeneral.
func (t TaskType) Normalize() TaskType {
	if t == "" || t == TaskUnclassified {
		return TaskGeneral
	}
	return t
}

// ParseTaskType parses a category name, case-insensitively.
func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(strings.ToLower(strings.TrimSpace(s)))
	if t == TaskUnclassified || t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// Status is the health status of a provider as derived by the metrics
// collector.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusHealthy, StatusDegraded, StatusUnavailable:
		return true
	}
	return false
}

// Gauge returns the numeric encoding used by the provider status gauge.
func (s Status) Gauge() float64 {
	switch s {
	case StatusDegraded:
		return 1
	case StatusUnavailable:
		return 2
	default:
		return 0
	}
}

// Objective selects the weight table used to score candidates.
type Objective string

const (
	ObjectiveCost     Objective = "cost"
	ObjectiveLatency  Objective = "latency"
	ObjectiveAccuracy Objective = "accuracy"
)

// Objectives lists every optimization objective.
var Objectives = []Objective{ObjectiveCost, ObjectiveLatency, ObjectiveAccuracy}

// Valid reports whether o is a known objective.
func (o Objective) Valid() bool {
	switch o {
	case ObjectiveCost, ObjectiveLatency, ObjectiveAccuracy:
		return true
	}
	return false
}

// ParseObjective parses an objective name, case-insensitively.
func ParseObjective(s string) (Objective, error) {
	o := Objective(strings.ToLower(strings.TrimSpace(s)))
	if !o.Valid() {
		return "", fmt.Errorf("unknown optimization objective %q", s)
	}
	return o, nil
}

// Tier is the confidence tier attached to a routing decision.
type Tier string

const (
	// TierAuto means the router is confident in its top choice.
	TierAuto Tier = "AUTO"
	// TierNotify flags the decision for advisory notification.
	TierNotify Tier = "NOTIFY"
	// TierBlock flags the decision for external approval. Dispatch still
	// proceeds; blocking is the approval collaborator's decision.
	TierBlock Tier = "BLOCK"
)

// Escalated reports whether the tier requires external notification.
func (t Tier) Escalated() bool {
	return t == TierNotify || t == TierBlock
}

// Outcome is the result of one provider attempt.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeTimeout         Outcome = "timeout"
	OutcomeError           Outcome = "error"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeCredentialError Outcome = "credential_error"

	// OutcomeCancelled marks an attempt cut short by the caller or the
	// request budget.
	OutcomeCancelled Outcome = "cancelled"
)

// HealthBearing reports whether the outcome says anything about the
// provider's health. Rate limits, credential failures and cancellations
// are local conditions and do not count.
func (o Outcome) HealthBearing() bool {
	switch o {
	case OutcomeSuccess, OutcomeTimeout, OutcomeError:
		return true
	}
	return false
}

// Failed reports whether the outcome is a failure.
func (o Outcome) Failed() bool {
	return o != OutcomeSuccess
}
