package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/finroute/pkg/responder"
	"github.com/zen-systems/finroute/pkg/router"
)

func desc(id string, priority int, active bool) responder.Descriptor {
	return responder.Descriptor{ID: id, Active: active, IsLocal: true, StaticPriority: priority}
}

func TestChooseFallbackFromRemainingSuggestions(t *testing.T) {
	reg := responder.NewRegistry(
		desc("AccountantAgent", 10, true),
		desc("TaxAgent", 10, true),
		desc("ComplianceAgent", 9, true),
		desc("AuditAgent", 9, true),
	)
	p := NewPolicy(router.NewSelector(nil))

	got := p.ChooseFallback("TaxAgent", []string{"TaxAgent", "ComplianceAgent", "AuditAgent"}, reg)
	require.NotNil(t, got)
	assert.Equal(t, "ComplianceAgent", got.ID, "scored among remaining suggestions, registry order on ties")
}

func TestChooseFallbackIgnoresJurisdiction(t *testing.T) {
	quebec := desc("QuebecTax", 8, true)
	quebec.JurisdictionAffinity = []string{"CA-QC"}
	reg := responder.NewRegistry(desc("TaxAgent", 10, true), quebec, desc("GenericTax", 9, true))

	got := NewPolicy(nil).ChooseFallback("TaxAgent", []string{"TaxAgent", "QuebecTax", "GenericTax"}, reg)
	require.NotNil(t, got)
	assert.Equal(t, "GenericTax", got.ID)
}

func TestChooseFallbackUsesRegistryOrderWhenNoSuggestionsRemain(t *testing.T) {
	reg := responder.NewRegistry(
		desc("TaxAgent", 10, true),
		desc("Dormant", 10, false),
		desc("ReporterAgent", 7, true),
		desc("AccountantAgent", 10, true),
	)

	got := NewPolicy(nil).ChooseFallback("TaxAgent", []string{"TaxAgent"}, reg)
	require.NotNil(t, got)
	assert.Equal(t, "ReporterAgent", got.ID, "first other active responder, not the best scored")
}

func TestChooseFallbackNeverReturnsFailed(t *testing.T) {
	reg := responder.NewRegistry(desc("TaxAgent", 10, true), desc("Dormant", 9, false))
	p := NewPolicy(nil)

	assert.Nil(t, p.ChooseFallback("TaxAgent", []string{"TaxAgent"}, reg))
	assert.Nil(t, p.ChooseFallback("TaxAgent", []string{"TaxAgent", "Dormant"}, reg),
		"widening over inactive suggestions must not pick the failed responder")
	assert.Nil(t, p.ChooseFallback("TaxAgent", nil, responder.NewRegistry()))
}

func TestCannedRegistryLanguages(t *testing.T) {
	r := NewCannedRegistry("fr")

	fr, err := r.Get(KeyServiceUnavailable, "fr")
	require.NoError(t, err)
	assert.Contains(t, fr.Text, "temporairement indisponible")
	assert.True(t, fr.Canned)
	assert.Equal(t, "system", fr.ResponderID)
	assert.Equal(t, KeyServiceUnavailable, fr.Metadata["canned_key"])

	en, err := r.Get(KeyServiceUnavailable, "en")
	require.NoError(t, err)
	assert.Contains(t, en.Text, "temporarily unavailable")

	de, err := r.Get(KeyServiceUnavailable, "de")
	require.NoError(t, err)
	assert.Equal(t, "fr", de.Language, "unknown language falls back to the default")

	_, err = r.Get("missing", "fr")
	require.Error(t, err)
}

func TestCannedAnswerNeverFails(t *testing.T) {
	r := NewCannedRegistry("en")
	r.RegisterAll(map[string]map[string]string{
		KeyNoResponders: {"en": "Nobody home."},
	})

	assert.Equal(t, "Nobody home.", r.Answer(KeyNoResponders, "en").Text)
	assert.Contains(t, r.Answer("missing", "en").Text, "temporarily unavailable")
	assert.Contains(t, r.Keys(), KeyRemoteUnreachable)
}

func TestCannedAnswersAreIndependentCopies(t *testing.T) {
	r := NewCannedRegistry("fr")
	a := r.Answer(KeyServiceUnavailable, "fr")
	a.Text = "mutated"
	a.Metadata["x"] = "y"

	b := r.Answer(KeyServiceUnavailable, "fr")
	assert.NotEqual(t, "mutated", b.Text)
	assert.Empty(t, b.Metadata["x"])
	assert.NotEqual(t, a.ID, b.ID)
}
