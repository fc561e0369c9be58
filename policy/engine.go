// Package policy evaluates the risk screening policy with OPA.
package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/storage/inmem"
)

// Engine is the OPA policy engine used for risk screening.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares the screening policy with the given keyword list.
// Keywords are matched case-insensitively as substrings of the narrative.
func NewEngine(ctx context.Context, policyContent string, keywords []string) (*Engine, error) {
	lowered := make([]interface{}, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		lowered = append(lowered, kw)
	}

	store := inmem.NewFromObject(map[string]interface{}{
		"screening": map[string]interface{}{
			"keywords": lowered,
		},
	})

	r := rego.New(
		rego.Query("data.risk_screen.risk_factor"),
		rego.Module("risk_screen.rego", policyContent),
		rego.Store(store),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Screen reports whether the narrative contains any risk keyword.
func (e *Engine) Screen(ctx context.Context, narrative string) (bool, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"narrative": narrative,
	}))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}

	flag, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}
	return flag, nil
}

// DefaultPolicy is the default screening policy.
const DefaultPolicy = `
package risk_screen

default risk_factor := false

risk_factor if {
	narrative := lower(input.narrative)
	some keyword in data.screening.keywords
	contains(narrative, keyword)
}
`
