// Package engine pre-flight checks a course's VM profile against the
// guardrail constraints before any cloud call is made, so a profile the
// initiative would reject fails fast instead of mid-provisioning.
package engine

import "context"

// Profile is the VM shape a course wants to provision.
type Profile struct {
	Size     string
	Location string
	Tags     map[string]string
}

// Constraints mirrors the initiative bundle contents: empty lists allow everything.
type Constraints struct {
	AllowedSizes     []string
	AllowedLocations []string
	RequiredTags     []string
}

// Result is the outcome of a pre-flight check.
type Result struct {
	Allowed    bool
	Violations []string
}

// Evaluator checks VM profiles against guardrail constraints.
type Evaluator interface {
	Evaluate(ctx context.Context, profile Profile, constraints Constraints) (Result, error)
}
