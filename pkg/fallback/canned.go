package fallback

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zen-systems/finroute/pkg/answer"
)

// Canned response keys registered by default.
const (
	KeyServiceUnavailable = "service_unavailable"
	KeyNoResponders       = "no_responders"
	KeyRemoteUnreachable  = "remote_unreachable"
)

// CannedRegistry maps a key and language to a static answer text.
type CannedRegistry struct {
	mu              sync.RWMutex
	texts           map[string]map[string]string
	defaultLanguage string
}

// NewCannedRegistry creates a registry holding the default responses.
func NewCannedRegistry(defaultLanguage string) *CannedRegistry {
	if defaultLanguage == "" {
		defaultLanguage = "fr"
	}
	r := &CannedRegistry{
		texts:           make(map[string]map[string]string),
		defaultLanguage: defaultLanguage,
	}

	r.Register(KeyServiceUnavailable, "fr", "Le service est temporairement indisponible. Veuillez réessayer dans quelques instants.")
	r.Register(KeyServiceUnavailable, "en", "The service is temporarily unavailable. Please try again in a few moments.")
	r.Register(KeyNoResponders, "fr", "Aucun expert n'est disponible pour traiter votre demande pour le moment.")
	r.Register(KeyNoResponders, "en", "No expert is available to handle your request right now.")
	r.Register(KeyRemoteUnreachable, "fr", "Impossible de joindre l'expert distant. Vérifiez sa configuration réseau.")
	r.Register(KeyRemoteUnreachable, "en", "The remote expert could not be reached. Check its network configuration.")

	return r
}

// Register sets the text for key in lang, replacing any previous one.
func (r *CannedRegistry) Register(key, lang, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.texts[key] == nil {
		r.texts[key] = make(map[string]string)
	}
	r.texts[key][lang] = text
}

// RegisterAll merges a key -> language -> text table.
func (r *CannedRegistry) RegisterAll(table map[string]map[string]string) {
	for key, byLang := range table {
		for lang, text := range byLang {
			r.Register(key, lang, text)
		}
	}
}

// Get returns the canned answer for key in lang, falling back to the default language.
func (r *CannedRegistry) Get(key, lang string) (*answer.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byLang, ok := r.texts[key]
	if !ok {
		return nil, fmt.Errorf("canned response not found: %s", key)
	}
	if text, ok := byLang[lang]; ok {
		return answer.NewCanned(text, lang).WithMetadata("canned_key", key), nil
	}
	if text, ok := byLang[r.defaultLanguage]; ok {
		return answer.NewCanned(text, r.defaultLanguage).WithMetadata("canned_key", key), nil
	}
	return nil, fmt.Errorf("canned response %s has no %s or %s text", key, lang, r.defaultLanguage)
}

// Answer is like Get but never fails: unknown keys degrade to the
// service-unavailable text.
func (r *CannedRegistry) Answer(key, lang string) *answer.Answer {
	if a, err := r.Get(key, lang); err == nil {
		return a
	}
	if a, err := r.Get(KeyServiceUnavailable, lang); err == nil {
		return a
	}
	return answer.NewCanned("Service unavailable.", lang).WithMetadata("canned_key", KeyServiceUnavailable)
}

// Keys returns the registered keys, sorted.
func (r *CannedRegistry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.texts))
	for k := range r.texts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
