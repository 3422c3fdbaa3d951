package flows

import (
	"context"

	"github.com/MrEthical07/warden/internal/rate"
)

// RateDeps captures request throttling dependencies.
type RateDeps struct {
	Limiter RateChecker
	Policy  rate.Policy
	// FailOpen admits requests when the limiter store is unavailable.
	FailOpen bool
}

// RateResult carries the decision and whether it was made without the store.
type RateResult struct {
	Decision   rate.Decision
	Rule       rate.Rule
	FailedOpen bool
	Err        error
}

// RunCheckRate applies the route's rule to the caller. Store failures deny
// unless FailOpen is set, in which case the request is allowed and the error
// is still reported for logging.
func RunCheckRate(ctx context.Context, id rate.Identity, route string, deps RateDeps) RateResult {
	rule := deps.Policy.RuleFor(route)

	d, err := deps.Limiter.Check(ctx, rule, id, route)
	if err != nil {
		if deps.FailOpen {
			return RateResult{
				Decision:   rate.Decision{Allowed: true, Key: rate.Key(rule.KeyBy, id, route), Limit: rule.Limit},
				Rule:       rule,
				FailedOpen: true,
				Err:        err,
			}
		}
		return RateResult{Rule: rule, Err: err}
	}

	return RateResult{Decision: d, Rule: rule}
}
