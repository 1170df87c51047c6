package tracing

// Span attribute keys. Custom keys use the "relay." namespace.
const (
	AttrRequestID   = "relay.request_id"
	AttrTaskType    = "relay.task_type"
	AttrConfidence  = "relay.classification.confidence"
	AttrTier        = "relay.tier"
	AttrObjective   = "relay.objective"
	AttrCandidates  = "relay.candidates"
	AttrProvider    = "relay.provider"
	AttrAttempt     = "relay.attempt"
	AttrOutcome     = "relay.outcome"
	AttrCost        = "relay.cost"
	AttrCacheResult = "relay.cache.result"
	AttrFingerprint = "relay.cache.fingerprint"
)
