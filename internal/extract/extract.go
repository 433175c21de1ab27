package extract

import (
	"context"

	"github.com/sirupsen/logrus"

	"voice-booking-relay-go/internal/model"
)

// Provider is one tier of the entity-detection chain. A provider failure
// is non-fatal to the overall extraction: the chain falls through to the
// next tier.
type Provider interface {
	Name() string
	Detect(ctx context.Context, text string) (model.ExtractedEntities, error)
}

// Chain tries providers in priority order with first-success-wins
// semantics. The last tier is expected to be infallible (regex), so
// Extract itself never fails.
type Chain struct {
	providers []Provider
}

// NewChain creates an extraction chain; providers are tried in the order
// given
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Extract returns the first tier's successful result. External provider
// errors are logged and treated as "provider unavailable".
func (c *Chain) Extract(ctx context.Context, text string) model.ExtractedEntities {
	for _, p := range c.providers {
		entities, err := p.Detect(ctx, text)
		if err != nil {
			logrus.Warnf("Entity provider %s unavailable: %v", p.Name(), err)
			continue
		}
		logrus.Debugf("Entity provider %s succeeded with confidence %.2f", p.Name(), entities.Confidence)
		return entities
	}
	// Unreachable when the chain ends with the regex tier.
	return model.ExtractedEntities{}
}
