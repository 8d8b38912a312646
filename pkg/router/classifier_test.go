package router

import (
	"reflect"
	"testing"

	"github.com/zen-systems/finroute/pkg/config"
)

func defaultClassifier() *IntentClassifier {
	return NewIntentClassifier(config.DefaultOrchestrationConfig())
}

func TestClassifySimpleTaxQuery(t *testing.T) {
	analysis := defaultClassifier().Classify("What is my TPS filing deadline?")

	if !reflect.DeepEqual(analysis.DetectedIntents, []string{"tax"}) {
		t.Fatalf("expected [tax], got %v", analysis.DetectedIntents)
	}
	if !reflect.DeepEqual(analysis.SuggestedResponders, []string{"TaxAgent"}) {
		t.Fatalf("expected [TaxAgent], got %v", analysis.SuggestedResponders)
	}
	if analysis.RequiresCollaboration {
		t.Fatalf("single intent should not require collaboration")
	}
	if analysis.Jurisdiction != "" {
		t.Fatalf("expected no jurisdiction, got %q", analysis.Jurisdiction)
	}
}

func TestClassifyEmptyQueryUsesDefault(t *testing.T) {
	analysis := defaultClassifier().Classify("")

	if len(analysis.DetectedIntents) != 0 {
		t.Fatalf("expected no intents, got %v", analysis.DetectedIntents)
	}
	if !reflect.DeepEqual(analysis.SuggestedResponders, []string{"AccountantAgent"}) {
		t.Fatalf("expected default responder, got %v", analysis.SuggestedResponders)
	}
	if analysis.RequiresCollaboration {
		t.Fatalf("empty query should not require collaboration")
	}
}

func TestClassifyMultiIntent(t *testing.T) {
	analysis := defaultClassifier().Classify("Please audit my tax return")

	if !analysis.RequiresCollaboration {
		t.Fatalf("tax + audit should require collaboration")
	}
	if !analysis.HasIntent("tax") || !analysis.HasIntent("audit") {
		t.Fatalf("expected tax and audit intents, got %v", analysis.DetectedIntents)
	}
	if analysis.SuggestedResponders[0] != "TaxAgent" {
		t.Fatalf("suggestions follow table order, got %v", analysis.SuggestedResponders)
	}
}

func TestClassifySynonymsCountOnce(t *testing.T) {
	analysis := defaultClassifier().Classify("Impôt, TPS et TVQ: quel crédit fiscal?")

	if !reflect.DeepEqual(analysis.DetectedIntents, []string{"tax"}) {
		t.Fatalf("expected a single tax intent, got %v", analysis.DetectedIntents)
	}
	if len(analysis.Matches) != 1 || len(analysis.Matches[0].Keywords) < 4 {
		t.Fatalf("expected all tax keywords in one match, got %+v", analysis.Matches)
	}
}

func TestClassifyUnmappedIntentStillCounts(t *testing.T) {
	cfg := &config.OrchestrationConfig{
		Intents: []config.IntentRule{
			{Tag: "tax", Keywords: []string{"tax"}, Responder: "TaxAgent"},
			{Tag: "payroll", Keywords: []string{"payroll"}},
		},
		DefaultResponder: "AccountantAgent",
	}
	analysis := NewIntentClassifier(cfg).Classify("payroll tax")

	if !analysis.RequiresCollaboration {
		t.Fatalf("unmapped intents still count toward collaboration")
	}
	if !reflect.DeepEqual(analysis.SuggestedResponders, []string{"TaxAgent"}) {
		t.Fatalf("unmapped intent should be dropped from suggestions, got %v", analysis.SuggestedResponders)
	}
}

func TestClassifyJurisdiction(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected string
	}{
		{name: "quebec accent", query: "Crédit d'impôt au Québec", expected: "CA-QC"},
		{name: "quebec code", query: "TVQ rules for QC businesses", expected: "CA-QC"},
		{name: "ontario", query: "HST filing in Ontario", expected: "CA-ON"},
		{name: "first match wins", query: "Canadian company based in Ontario", expected: "CA"},
		{name: "france", query: "Tax rules in France", expected: "FR"},
		{name: "earlier rule wins over later", query: "Déduction fiscale en France", expected: "CA-ON"},
		{name: "united states", query: "Tax treaty with the United States", expected: "US"},
		{name: "short code inside word", query: "A question about my budget", expected: "CA-ON"},
		{name: "substring of deduction", query: "Explain my tax deduction", expected: "CA-ON"},
		{name: "substring of qcm", query: "Quel est le qcm fiscal", expected: "CA-QC"},
		{name: "short code as word", query: "tax on dividends", expected: "CA-ON"},
		{name: "none", query: "Compute my debt ratio", expected: ""},
	}

	c := defaultClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.query).Jurisdiction; got != tt.expected {
				t.Errorf("Classify(%q).Jurisdiction = %q, want %q", tt.query, got, tt.expected)
			}
		})
	}
}

func TestClassifyJurisdictionWholeWordOptIn(t *testing.T) {
	cfg := config.DefaultOrchestrationConfig()
	for i := range cfg.Jurisdictions {
		cfg.Jurisdictions[i].WholeWord = true
	}
	c := NewIntentClassifier(cfg)

	tests := []struct {
		query    string
		expected string
	}{
		{"A question about my budget", ""},
		{"Quel est le qcm fiscal", ""},
		{"tax on dividends", "CA-ON"},
		{"TVQ rules for QC businesses", "CA-QC"},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.query).Jurisdiction; got != tt.expected {
			t.Errorf("Classify(%q).Jurisdiction = %q, want %q", tt.query, got, tt.expected)
		}
	}
}

func TestClassifyIsPure(t *testing.T) {
	c := defaultClassifier()
	first := c.Classify("Budget forecast and audit report for Québec")
	second := c.Classify("Budget forecast and audit report for Québec")
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("classification should be deterministic:\n%+v\n%+v", first, second)
	}
}

func TestContainsKeyword(t *testing.T) {
	tests := []struct {
		text      string
		keyword   string
		wholeWord bool
		expected  bool
	}{
		{"taxes due", "tax", false, true},
		{"taxes due", "tax", true, false},
		{"only on fridays", "on", true, true},
		{"only", "on", true, false},
		{"québec, canada", "québec", true, true},
		{"préquébec", "québec", true, false},
		{"on", "on", true, true},
		{"", "on", true, false},
	}

	for _, tt := range tests {
		if got := containsKeyword(tt.text, tt.keyword, tt.wholeWord); got != tt.expected {
			t.Errorf("containsKeyword(%q, %q, %v) = %v, want %v", tt.text, tt.keyword, tt.wholeWord, got, tt.expected)
		}
	}
}
