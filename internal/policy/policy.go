// Package policy evaluates deployment-configured retry rules on top of the
// error classifier. Rules can veto a retry the classifier would allow (for
// example capping fallback depth for high amounts); they can never turn a
// terminal classification back into a retryable one.
package policy

import (
	"fmt"

	"github.com/Knetic/govaluate"

	"github.com/yourorg/gateway-fallback/internal/gateway"
)

// RuleConfig is one named rule expression. The expression must evaluate to a
// boolean; false vetoes further retries.
//
// Available parameters: attempt_number, error_code, retryable, gateway,
// payment_method, amount_cents.
type RuleConfig struct {
	Name       string
	Expression string
}

// Params describes one failed attempt for rule evaluation.
type Params struct {
	AttemptNumber int
	ErrorCode     gateway.ErrorCode
	Retryable     bool
	Gateway       gateway.GatewayType
	Method        gateway.PaymentMethod
	AmountCents   int64
}

// Decision is the outcome of evaluating the rules for one failed attempt.
type Decision struct {
	AllowRetry bool
	Reason     string
}

type compiledRule struct {
	name string
	expr *govaluate.EvaluableExpression
}

// Enforcer holds the compiled rule set. A nil or empty rule set defers
// entirely to the classifier verdict.
type Enforcer struct {
	rules []compiledRule
}

// NewEnforcer compiles the configured rules.
func NewEnforcer(rules []RuleConfig) (*Enforcer, error) {
	e := &Enforcer{}
	for _, rc := range rules {
		expr, err := govaluate.NewEvaluableExpression(rc.Expression)
		if err != nil {
			return nil, fmt.Errorf("policy: compiling rule %q: %w", rc.Name, err)
		}
		e.rules = append(e.rules, compiledRule{name: rc.Name, expr: expr})
	}
	return e, nil
}

// Evaluate applies every rule to the failed attempt. The classifier verdict
// is the starting point; the first rule that evaluates to false vetoes the
// retry. Rule evaluation errors fail closed for that rule (the rule counts
// as a veto) so a broken expression cannot silently widen retries.
func (e *Enforcer) Evaluate(p Params) Decision {
	if !p.Retryable {
		return Decision{AllowRetry: false, Reason: "terminal error classification"}
	}
	if e == nil || len(e.rules) == 0 {
		return Decision{AllowRetry: true, Reason: "retryable error classification"}
	}

	params := map[string]interface{}{
		"attempt_number": p.AttemptNumber,
		"error_code":     string(p.ErrorCode),
		"retryable":      p.Retryable,
		"gateway":        string(p.Gateway),
		"payment_method": string(p.Method),
		"amount_cents":   p.AmountCents,
	}

	for _, rule := range e.rules {
		result, err := rule.expr.Evaluate(params)
		if err != nil {
			return Decision{AllowRetry: false, Reason: fmt.Sprintf("rule %s failed to evaluate: %v", rule.name, err)}
		}
		allowed, ok := result.(bool)
		if !ok {
			return Decision{AllowRetry: false, Reason: fmt.Sprintf("rule %s did not evaluate to a boolean", rule.name)}
		}
		if !allowed {
			return Decision{AllowRetry: false, Reason: fmt.Sprintf("vetoed by rule %s", rule.name)}
		}
	}
	return Decision{AllowRetry: true, Reason: "allowed by all rules"}
}
