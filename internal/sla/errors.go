package sla

import "errors"

var (
	// ErrNoApplicableRule means no rule matched a work item and the org
	// has no active default. The item stays unevaluated and is retried
	// on the next pass.
	ErrNoApplicableRule = errors.New("no applicable sla rule")

	// ErrRuleInactive means an operation referenced a deactivated rule,
	// for example promoting it to default.
	ErrRuleInactive = errors.New("sla rule is inactive")

	// ErrConcurrentUpdate means a conditional state write lost the race
	// against another writer. The caller skips and retries next tick.
	ErrConcurrentUpdate = errors.New("sla state modified concurrently")

	// ErrStateNotFound means no SLA state row exists for a work item.
	ErrStateNotFound = errors.New("sla state not found")

	// ErrNotFound means a requested record does not exist.
	ErrNotFound = errors.New("not found")
)
