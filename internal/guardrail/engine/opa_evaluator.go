package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

// Default Rego policy expressing the initiative constraints: size and location
// allowlists plus required tags.
const defaultRegoPolicy = `package cloudlab.guardrail

default allow = false

allow if {
	count(violations) == 0
}

violations contains msg if {
	count(input.constraints.allowed_sizes) > 0
	not input.profile.size in input.constraints.allowed_sizes
	msg := sprintf("vm size %q not allowed", [input.profile.size])
}

violations contains msg if {
	count(input.constraints.allowed_locations) > 0
	not input.profile.location in input.constraints.allowed_locations
	msg := sprintf("location %q not allowed", [input.profile.location])
}

violations contains msg if {
	some tag in input.constraints.required_tags
	not input.profile.tags[tag]
	msg := sprintf("required tag %q missing", [tag])
}
`

// OPAEvaluator evaluates VM profiles with OPA Rego. The policy source can be
// replaced to match a customized initiative; the default mirrors the stock one.
type OPAEvaluator struct {
	policy string
}

// NewOPAEvaluator returns an evaluator using the given Rego source, or the
// default policy when source is empty.
func NewOPAEvaluator(source string) *OPAEvaluator {
	if source == "" {
		source = defaultRegoPolicy
	}
	return &OPAEvaluator{policy: source}
}

// HealthCheck verifies the policy compiles and evaluates. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.Evaluate(ctx, Profile{Size: "s", Location: "l"}, Constraints{})
	return err
}

// Evaluate runs the policy against the profile and constraints.
func (e *OPAEvaluator) Evaluate(ctx context.Context, profile Profile, constraints Constraints) (Result, error) {
	compiler, err := ast.CompileModules(map[string]string{"guardrail.rego": e.policy})
	if err != nil {
		return Result{}, fmt.Errorf("compile guardrail policy: %w", err)
	}
	input := buildInput(profile, constraints)

	out := Result{}
	allowRS, err := rego.New(
		rego.Query("data.cloudlab.guardrail.allow"),
		rego.Compiler(compiler),
		rego.Input(input),
	).Eval(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("eval guardrail policy: %w", err)
	}
	if len(allowRS) == 0 || len(allowRS[0].Expressions) == 0 {
		return Result{}, fmt.Errorf("guardrail policy returned no result")
	}
	if v, ok := allowRS[0].Expressions[0].Value.(bool); ok {
		out.Allowed = v
	}

	violRS, err := rego.New(
		rego.Query("data.cloudlab.guardrail.violations"),
		rego.Compiler(compiler),
		rego.Input(input),
	).Eval(ctx)
	if err == nil && len(violRS) > 0 && len(violRS[0].Expressions) > 0 {
		if items, ok := violRS[0].Expressions[0].Value.([]interface{}); ok {
			for _, item := range items {
				if s, ok := item.(string); ok {
					out.Violations = append(out.Violations, s)
				}
			}
		}
	}
	return out, nil
}

func buildInput(profile Profile, constraints Constraints) map[string]interface{} {
	tags := map[string]interface{}{}
	for k, v := range profile.Tags {
		tags[k] = v
	}
	return map[string]interface{}{
		"profile": map[string]interface{}{
			"size":     profile.Size,
			"location": profile.Location,
			"tags":     tags,
		},
		"constraints": map[string]interface{}{
			"allowed_sizes":     toAny(constraints.AllowedSizes),
			"allowed_locations": toAny(constraints.AllowedLocations),
			"required_tags":     toAny(constraints.RequiredTags),
		},
	}
}

func toAny(in []string) []interface{} {
	out := make([]interface{}, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}
