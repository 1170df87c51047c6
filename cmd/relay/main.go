// Relay is a multi-provider LLM request router.
//
// It classifies each request, ranks the configured model providers by
// cost, latency and accuracy, dispatches along a fallback chain and
// collapses identical requests into one provider call.
//
// Usage:
//
//	# Start the router
//	relay run --config relay.yaml
//
//	# Check a configuration file
//	relay validate --config relay.yaml
//
//	# Show how a prompt would be routed, without calling any provider
//	relay route "summarize this contract"
//
//	# Query the event log
//	relay events --outcome chain_depleted --since 24h
package main

func main() {
	Execute()
}
