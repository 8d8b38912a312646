package router

import (
	"strings"

	"github.com/zen-systems/finroute/pkg/config"
)

// IntentClassifier maps query text to intents, a jurisdiction and suggested
// responders using ordered keyword tables. It holds no mutable state.
type IntentClassifier struct {
	intents          []keywordRule
	jurisdictions    []keywordRule
	defaultResponder string
}

// NewIntentClassifier compiles the keyword tables of cfg.
func NewIntentClassifier(cfg *config.OrchestrationConfig) *IntentClassifier {
	c := &IntentClassifier{}
	if cfg == nil {
		return c
	}
	c.defaultResponder = cfg.DefaultResponder
	for _, in := range cfg.Intents {
		c.intents = append(c.intents, newKeywordRule(in.Tag, in.Keywords, in.Responder, false))
	}
	for _, j := range cfg.Jurisdictions {
		c.jurisdictions = append(c.jurisdictions, newKeywordRule(j.Code, j.Keywords, "", j.WholeWord))
	}
	return c
}

// Classify analyzes query. It never fails: no match degrades to the default responder.
func (c *IntentClassifier) Classify(query string) *IntentAnalysis {
	text := strings.ToLower(query)
	analysis := &IntentAnalysis{}

	seenIntent := make(map[string]bool)
	seenResponder := make(map[string]bool)
	for _, rule := range c.intents {
		if seenIntent[rule.tag] {
			continue
		}
		matched := rule.match(text)
		if len(matched) == 0 {
			continue
		}
		seenIntent[rule.tag] = true
		analysis.DetectedIntents = append(analysis.DetectedIntents, rule.tag)
		analysis.Matches = append(analysis.Matches, IntentMatch{Tag: rule.tag, Keywords: matched})
		if rule.responder != "" && !seenResponder[rule.responder] {
			seenResponder[rule.responder] = true
			analysis.SuggestedResponders = append(analysis.SuggestedResponders, rule.responder)
		}
	}
	analysis.RequiresCollaboration = len(analysis.DetectedIntents) > 1

	for _, rule := range c.jurisdictions {
		if len(rule.match(text)) > 0 {
			analysis.Jurisdiction = rule.tag
			break
		}
	}

	if len(analysis.SuggestedResponders) == 0 && c.defaultResponder != "" {
		analysis.SuggestedResponders = []string{c.defaultResponder}
	}
	return analysis
}
