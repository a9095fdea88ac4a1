package service

import (
	"context"
	"strings"

	"inbox_crm_backend/internal/events"
)

// KeywordPolicy opens a lead when an inbound message contains one of the
// configured buying-signal phrases. It is the default policy; a model-backed
// classifier can replace it behind the same interface.
type KeywordPolicy struct {
	phrases []string
}

// DefaultKeywordPhrases are the buying signals matched when no custom list is
// configured.
var DefaultKeywordPhrases = []string{
	"price",
	"how much",
	"quote",
	"order",
	"buy",
	"interested in",
	"prijs",
	"offerte",
	"bestellen",
	"kopen",
}

// NewKeywordPolicy creates a keyword eligibility policy. An empty phrase list
// falls back to the defaults.
func NewKeywordPolicy(phrases []string) *KeywordPolicy {
	if len(phrases) == 0 {
		phrases = DefaultKeywordPhrases
	}
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	return &KeywordPolicy{phrases: lowered}
}

// ShouldOpenLead reports whether the message body contains a buying signal.
// The matched phrase becomes the lead note.
func (p *KeywordPolicy) ShouldOpenLead(_ context.Context, event events.MessageIngested) (bool, string) {
	body := strings.ToLower(event.Body)
	for _, phrase := range p.phrases {
		if strings.Contains(body, phrase) {
			return true, "detected buying signal: " + phrase
		}
	}
	return false, ""
}

// Compile-time check that KeywordPolicy implements EligibilityPolicy.
var _ EligibilityPolicy = (*KeywordPolicy)(nil)
