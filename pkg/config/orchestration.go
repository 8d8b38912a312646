package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/finroute/pkg/gate"
	"github.com/zen-systems/finroute/pkg/responder"
)

const defaultPriority = 5

// OrchestrationConfig holds the responder set and routing tables.
type OrchestrationConfig struct {
	Responders       []ResponderConfig            `yaml:"responders"`
	Intents          []IntentRule                 `yaml:"intents"`
	Jurisdictions    []JurisdictionRule           `yaml:"jurisdictions"`
	DefaultResponder string                       `yaml:"default_responder"`
	Synthesizer      string                       `yaml:"synthesizer"`
	DefaultAdapter   string                       `yaml:"default_adapter,omitempty"`
	Gate             GateConfig                   `yaml:"gate,omitempty"`
	Collaboration    CollaborationConfig          `yaml:"collaboration,omitempty"`
	Canned           map[string]map[string]string `yaml:"canned,omitempty"`
}

// ResponderConfig is the file form of a responder descriptor. Pointer fields
// distinguish "unset" from the zero value.
type ResponderConfig struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name,omitempty" json:"name,omitempty"`
	Kind          string   `yaml:"kind" json:"kind"`
	Active        *bool    `yaml:"active,omitempty" json:"active,omitempty"`
	Local         *bool    `yaml:"local,omitempty" json:"local,omitempty"`
	Priority      *int     `yaml:"priority,omitempty" json:"priority,omitempty"`
	Jurisdictions []string `yaml:"jurisdictions,omitempty" json:"jurisdictions,omitempty"`
	Adapter       string   `yaml:"adapter,omitempty" json:"adapter,omitempty"`
	Model         string   `yaml:"model,omitempty" json:"model,omitempty"`
	Endpoint      string   `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	SystemPrompt  string   `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
}

// IntentRule maps an intent tag to its keywords and suggested responder.
type IntentRule struct {
	Tag       string   `yaml:"tag"`
	Keywords  []string `yaml:"keywords"`
	Responder string   `yaml:"responder,omitempty"`
}

// JurisdictionRule maps a jurisdiction code to its keywords. Keywords match as
// plain substrings unless WholeWord is set.
type JurisdictionRule struct {
	Code      string   `yaml:"code"`
	Keywords  []string `yaml:"keywords"`
	WholeWord bool     `yaml:"whole_word,omitempty"`
}

// GateConfig configures the per-responder failure gates.
type GateConfig struct {
	FailureThreshold int           `yaml:"failure_threshold,omitempty"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout,omitempty"`
}

// CollaborationConfig bounds collaboration fan-out.
type CollaborationConfig struct {
	MaxParallel int           `yaml:"max_parallel,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// LoadOrchestrationConfig reads responders configuration from a YAML file.
func LoadOrchestrationConfig(path string) (*OrchestrationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseOrchestrationConfig(data)
}

// ParseOrchestrationConfig decodes YAML and fills defaults for omitted sections.
func ParseOrchestrationConfig(data []byte) (*OrchestrationConfig, error) {
	var cfg OrchestrationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyOrchestrationDefaults(&cfg)
	return &cfg, nil
}

// Descriptors converts the responder list into registry descriptors, preserving order.
func (c *OrchestrationConfig) Descriptors() []responder.Descriptor {
	out := make([]responder.Descriptor, 0, len(c.Responders))
	for _, r := range c.Responders {
		out = append(out, r.Descriptor())
	}
	return out
}

// Descriptor converts a single responder entry.
func (r ResponderConfig) Descriptor() responder.Descriptor {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	local := r.Endpoint == ""
	if r.Local != nil {
		local = *r.Local
	}
	priority := defaultPriority
	if r.Priority != nil {
		priority = *r.Priority
	}
	kind := responder.Kind(strings.ToLower(r.Kind))
	if kind == "" {
		kind = responder.KindGeneral
	}
	return responder.Descriptor{
		ID:                   r.ID,
		Name:                 r.Name,
		Kind:                 kind,
		Active:               active,
		IsLocal:              local,
		StaticPriority:       priority,
		JurisdictionAffinity: append([]string(nil), r.Jurisdictions...),
		Adapter:              r.Adapter,
		Model:                r.Model,
		Endpoint:             r.Endpoint,
		SystemPrompt:         r.SystemPrompt,
	}
}

// GateSettings returns the gate configuration.
func (c *OrchestrationConfig) GateSettings() gate.Config {
	return gate.Config{
		FailureThreshold: c.Gate.FailureThreshold,
		RecoveryTimeout:  c.Gate.RecoveryTimeout,
	}
}

// Validate checks a single responder entry.
func (r ResponderConfig) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("responder: missing id")
	case r.Kind != "" && !responder.Kind(strings.ToLower(r.Kind)).Valid():
		return fmt.Errorf("responder %q: unknown kind %q", r.ID, r.Kind)
	case r.Priority != nil && *r.Priority < 0:
		return fmt.Errorf("responder %q: negative priority", r.ID)
	}
	return nil
}

// Validate reports every structural problem in the configuration.
func (c *OrchestrationConfig) Validate() []error {
	var errs []error
	ids := make(map[string]bool, len(c.Responders))
	for i, r := range c.Responders {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("responder #%d: missing id", i))
			continue
		}
		if ids[r.ID] {
			errs = append(errs, fmt.Errorf("responder %q: duplicate id", r.ID))
		}
		ids[r.ID] = true
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	tags := make(map[string]bool, len(c.Intents))
	for _, in := range c.Intents {
		if in.Tag == "" {
			errs = append(errs, fmt.Errorf("intent without tag"))
			continue
		}
		if tags[in.Tag] {
			errs = append(errs, fmt.Errorf("intent %q: duplicate tag", in.Tag))
		}
		tags[in.Tag] = true
		if len(in.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("intent %q: no keywords", in.Tag))
		}
		if in.Responder != "" && !ids[in.Responder] {
			errs = append(errs, fmt.Errorf("intent %q: unknown responder %q", in.Tag, in.Responder))
		}
	}

	for _, j := range c.Jurisdictions {
		if j.Code == "" || len(j.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("jurisdiction %q: code and keywords are required", j.Code))
		}
	}

	if c.DefaultResponder == "" {
		errs = append(errs, fmt.Errorf("default_responder is required"))
	} else if !ids[c.DefaultResponder] {
		errs = append(errs, fmt.Errorf("default_responder %q is not a configured responder", c.DefaultResponder))
	}
	if c.Synthesizer != "" && !ids[c.Synthesizer] {
		errs = append(errs, fmt.Errorf("synthesizer %q is not a configured responder", c.Synthesizer))
	}
	if c.Gate.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("gate.failure_threshold must be at least 1"))
	}
	if c.Gate.RecoveryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("gate.recovery_timeout must be positive"))
	}
	return errs
}

// DefaultOrchestrationConfig returns the built-in financial responder set.
func DefaultOrchestrationConfig() *OrchestrationConfig {
	allJurisdictions := []string{"CA", "CA-QC", "CA-ON", "FR", "US"}
	cfg := &OrchestrationConfig{
		Responders: []ResponderConfig{
			{ID: "AccountantAgent", Name: "Accountant", Kind: "accounting", Priority: intPtr(10), Jurisdictions: []string{"CA"}},
			{ID: "TaxAgent", Name: "Tax Expert", Kind: "tax", Priority: intPtr(10), Jurisdictions: allJurisdictions},
			{ID: "ForecastAgent", Name: "Forecaster", Kind: "forecast", Priority: intPtr(8)},
			{ID: "ComplianceAgent", Name: "Compliance Officer", Kind: "compliance", Priority: intPtr(9), Jurisdictions: allJurisdictions},
			{ID: "AuditAgent", Name: "Auditor", Kind: "audit", Priority: intPtr(9)},
			{ID: "ReporterAgent", Name: "Reporter", Kind: "report", Priority: intPtr(7)},
		},
		Intents: []IntentRule{
			{Tag: "tax", Responder: "TaxAgent", Keywords: []string{"tax", "fiscal", "impôt", "t1", "t2", "tps", "tvq", "déduction", "crédit"}},
			{Tag: "accounting", Responder: "AccountantAgent", Keywords: []string{"comptable", "accounting", "ratio", "bilan", "compte de résultat", "ifrs", "aspe"}},
			{Tag: "forecast", Responder: "ForecastAgent", Keywords: []string{"prévision", "forecast", "budget", "cashflow", "projection", "scénario"}},
			{Tag: "compliance", Responder: "ComplianceAgent", Keywords: []string{"conformité", "compliance", "norme", "réglementation", "audit"}},
			{Tag: "audit", Responder: "AuditAgent", Keywords: []string{"audit", "vérification", "anomalie", "fraude", "contrôle"}},
			{Tag: "report", Responder: "ReporterAgent", Keywords: []string{"rapport", "report", "synthèse", "résumé", "présentation"}},
		},
		Jurisdictions: []JurisdictionRule{
			{Code: "CA", Keywords: []string{"canada", "canadian", "canadien"}},
			{Code: "CA-QC", Keywords: []string{"québec", "quebec", "qc"}},
			{Code: "CA-ON", Keywords: []string{"ontario", "on"}},
			{Code: "FR", Keywords: []string{"france", "français", "french"}},
			{Code: "US", Keywords: []string{"usa", "états-unis", "united states", "american"}},
		},
		DefaultResponder: "AccountantAgent",
		Synthesizer:      "ReporterAgent",
	}
	applyOrchestrationDefaults(cfg)
	return cfg
}

func applyOrchestrationDefaults(cfg *OrchestrationConfig) {
	if cfg == nil {
		return
	}
	def := gate.DefaultConfig()
	if cfg.Gate.FailureThreshold == 0 {
		cfg.Gate.FailureThreshold = def.FailureThreshold
	}
	if cfg.Gate.RecoveryTimeout == 0 {
		cfg.Gate.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.Collaboration.MaxParallel == 0 {
		cfg.Collaboration.MaxParallel = 4
	}
	if cfg.Collaboration.Timeout == 0 {
		cfg.Collaboration.Timeout = 2 * time.Minute
	}
	if cfg.DefaultResponder == "" && len(cfg.Responders) > 0 {
		cfg.DefaultResponder = cfg.Responders[0].ID
	}
}

func intPtr(v int) *int {
	return &v
}
