// Package tasks contains task handlers for async job processing.
package tasks

// Task type constants.
// Use colon-separated naming: {domain}:{action}
const (
	// TypeCCUScan is the task type for scanning online presence keys and
	// updating the ccu_total gauge.
	TypeCCUScan = "ccu:scan"

	// TypePolicyRefresh is the task type for reloading the policy set from
	// its source.
	TypePolicyRefresh = "policy:refresh"

	// TypeCCUPresence is the task type for refreshing one user's
	// online:<user_id> presence key. Enqueued fire-and-forget by the
	// Enrichment filter on every authenticated request.
	TypeCCUPresence = "ccu:presence"
)
