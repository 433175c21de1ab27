package extract

import (
	"context"
	"regexp"

	"voice-booking-relay-go/internal/model"
)

var (
	phonePattern = regexp.MustCompile(`\d{3}[-.]?\d{3}[-.]?\d{4}`)
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// Confidence policy for the deterministic tier: both entities found beats
// one, and neither leaves the result below any booking threshold so the
// caller asks for confirmation instead of trusting it.
const (
	confidenceBoth    = 0.7
	confidencePartial = 0.5
)

// RegexProvider is the deterministic fallback tier; it cannot fail
type RegexProvider struct{}

// NewRegexProvider creates the regex fallback provider
func NewRegexProvider() *RegexProvider {
	return &RegexProvider{}
}

// Name returns the provider name
func (p *RegexProvider) Name() string {
	return "regex"
}

// Detect scans the raw text for phone/email patterns
func (p *RegexProvider) Detect(_ context.Context, text string) (model.ExtractedEntities, error) {
	entities := model.ExtractedEntities{
		Phone: phonePattern.FindString(text),
		Email: emailPattern.FindString(text),
	}

	switch {
	case entities.Phone != "" && entities.Email != "":
		entities.Confidence = confidenceBoth
	case entities.Phone != "" || entities.Email != "":
		entities.Confidence = confidencePartial
	default:
		entities.Confidence = 0
	}

	return entities, nil
}
