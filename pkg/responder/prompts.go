package responder

import (
	"fmt"
	"strings"
)

// Supported answer languages.
const (
	LanguageFrench  = "fr"
	LanguageEnglish = "en"
)

// NormalizeLanguage maps lang to a supported language, or def when unknown.
func NormalizeLanguage(lang, def string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case LanguageFrench:
		return LanguageFrench
	case LanguageEnglish:
		return LanguageEnglish
	}
	if def == LanguageEnglish {
		return LanguageEnglish
	}
	return LanguageFrench
}

var roles = map[Kind]map[string]string{
	KindTax: {
		LanguageFrench:  "un expert en fiscalité (impôt sur le revenu, TPS/TVQ, déductions et crédits)",
		LanguageEnglish: "a tax expert (income tax, GST/QST, deductions and credits)",
	},
	KindAccounting: {
		LanguageFrench:  "un comptable professionnel agréé (états financiers, IFRS, NCECF, ratios)",
		LanguageEnglish: "a chartered professional accountant (financial statements, IFRS, ASPE, ratios)",
	},
	KindForecast: {
		LanguageFrench:  "un spécialiste en prévisions financières (budgets, flux de trésorerie, scénarios)",
		LanguageEnglish: "a financial forecasting specialist (budgets, cash flow, scenarios)",
	},
	KindCompliance: {
		LanguageFrench:  "un expert en conformité réglementaire financière",
		LanguageEnglish: "a financial regulatory compliance expert",
	},
	KindAudit: {
		LanguageFrench:  "un auditeur financier spécialisé dans la détection d'anomalies et de fraude",
		LanguageEnglish: "a financial auditor focused on anomaly and fraud detection",
	},
	KindReport: {
		LanguageFrench:  "un expert en communication financière et en rédaction de rapports",
		LanguageEnglish: "a financial communication and reporting expert",
	},
	KindGeneral: {
		LanguageFrench:  "un assistant financier généraliste",
		LanguageEnglish: "a general financial assistant",
	},
}

// SystemPrompt returns the system instruction for d in lang. A descriptor with
// its own SystemPrompt overrides the built-in one.
func SystemPrompt(d Descriptor, lang string) string {
	if strings.TrimSpace(d.SystemPrompt) != "" {
		return d.SystemPrompt
	}
	lang = NormalizeLanguage(lang, LanguageFrench)
	kind := d.Kind
	if _, ok := roles[kind]; !ok {
		kind = KindGeneral
	}
	role := roles[kind][lang]

	if lang == LanguageEnglish {
		return fmt.Sprintf(`You are %s, %s.

Instructions:
1. Answer precisely and cite your sources when you have them
2. Say clearly when you do not know
3. Stay within your area of expertise

Answer in English, clearly and with structure.`, d.DisplayName(), role)
	}
	return fmt.Sprintf(`Tu es %s, %s.

Instructions :
1. Réponds avec précision et cite tes sources lorsque tu en as
2. Si tu ne sais pas, dis-le clairement
3. Reste dans ton domaine d'expertise

Réponds en français de manière claire et structurée.`, d.DisplayName(), role)
}

// QueryPrompt prefixes the query with the jurisdiction when one is known.
func QueryPrompt(text, jurisdiction string) string {
	if jurisdiction == "" {
		return text
	}
	return fmt.Sprintf("[Jurisdiction: %s]\n\n%s", jurisdiction, text)
}

// SynthesisPrompt lays out the contributions in the given order followed by the
// merge instructions.
func SynthesisPrompt(req SynthesisRequest) string {
	var b strings.Builder
	if NormalizeLanguage(req.Language, LanguageFrench) == LanguageEnglish {
		fmt.Fprintf(&b, "Synthesize the following responses from different expert responders for the question:\n\n**Question**: %s\n\n**Responses**:\n", req.Query)
		writeContributions(&b, req.Contributions)
		b.WriteString(`
**Instructions**:
1. Create a coherent and complete synthesis
2. Remove redundancies
3. Highlight the key points from each responder
4. Point out any contradictions
5. End with a clear, actionable conclusion
`)
		return b.String()
	}

	fmt.Fprintf(&b, "Synthétise les réponses suivantes de différents experts pour la question :\n\n**Question** : %s\n\n**Réponses** :\n", req.Query)
	writeContributions(&b, req.Contributions)
	b.WriteString(`
**Instructions** :
1. Crée une synthèse cohérente et complète
2. Élimine les redondances
3. Mets en évidence les points clés de chaque expert
4. Signale les contradictions éventuelles
5. Termine par une conclusion claire et actionnable
`)
	return b.String()
}

func writeContributions(b *strings.Builder, contributions []Contribution) {
	for _, c := range contributions {
		name := c.Name
		if name == "" {
			name = c.ResponderID
		}
		fmt.Fprintf(b, "\n### %s\n%s\n", name, c.Text)
	}
}
