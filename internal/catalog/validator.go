package catalog

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/digital-menu/ordering-service/internal/breaker"
)

// ValidationResult is the validator's answer for a batch of product
// identifiers. Degraded means no definite answer could be obtained (the
// catalog was unreachable, slow, returned non-200, or the circuit is open);
// in that case Unavailable is empty and the caller decides policy.
type ValidationResult struct {
	AllAvailable bool
	Unavailable  []string
	Degraded     bool
}

// Validator checks product availability against the catalog service through
// a circuit breaker.
type Validator struct {
	client  *Client
	breaker *breaker.Breaker
}

func NewValidator(client *Client, b *breaker.Breaker) *Validator {
	return &Validator{client: client, breaker: b}
}

// Validate issues one batched availability request for ids. It never
// returns an error: dependency failure is reported as Degraded so the
// ordering service stays available when the catalog is impaired.
func (v *Validator) Validate(ctx context.Context, ids []string) ValidationResult {
	if len(ids) == 0 {
		return ValidationResult{AllAvailable: true}
	}

	var availability map[string]ProductAvailability

	err := v.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		availability, callErr = v.client.ValidateProducts(ctx, ids)
		return callErr
	})
	if err != nil {
		log.Warn().Err(err).Int("product_count", len(ids)).Msg("validator: product validation degraded")
		return ValidationResult{Degraded: true}
	}

	var unavailable []string
	for _, id := range ids {
		entry, ok := availability[id]
		if !ok || !entry.Available {
			unavailable = append(unavailable, id)
		}
	}

	return ValidationResult{
		AllAvailable: len(unavailable) == 0,
		Unavailable:  unavailable,
	}
}
