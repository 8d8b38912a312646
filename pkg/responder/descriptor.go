package responder

import "strings"

// Kind is the capability tag of a responder, resolved once at registration.
type Kind string

const (
	KindTax        Kind = "tax"
	KindAccounting Kind = "accounting"
	KindForecast   Kind = "forecast"
	KindCompliance Kind = "compliance"
	KindAudit      Kind = "audit"
	KindReport     Kind = "report"
	KindGeneral    Kind = "general"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTax, KindAccounting, KindForecast, KindCompliance, KindAudit, KindReport, KindGeneral:
		return true
	}
	return false
}

// Descriptor holds the identity and static facts about a responder. The
// orchestration core reads descriptors but never mutates them.
type Descriptor struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Kind                 Kind     `json:"kind"`
	Active               bool     `json:"active"`
	IsLocal              bool     `json:"is_local"`
	StaticPriority       int      `json:"static_priority"`
	JurisdictionAffinity []string `json:"jurisdiction_affinity,omitempty"`

	// Backend selection. Endpoint set means the responder is reached over HTTP.
	Adapter      string `json:"adapter,omitempty"`
	Model        string `json:"model,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"`
	SystemPrompt string `json:"-"`
}

// HasAffinity reports whether the responder is preferred for the jurisdiction code.
func (d Descriptor) HasAffinity(code string) bool {
	if code == "" {
		return false
	}
	for _, c := range d.JurisdictionAffinity {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

// DisplayName returns Name, or ID when no name is set.
func (d Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Remote reports whether the responder is invoked through an HTTP endpoint.
func (d Descriptor) Remote() bool {
	return d.Endpoint != ""
}

func (d Descriptor) clone() Descriptor {
	cp := d
	if d.JurisdictionAffinity != nil {
		cp.JurisdictionAffinity = append([]string(nil), d.JurisdictionAffinity...)
	}
	return cp
}
