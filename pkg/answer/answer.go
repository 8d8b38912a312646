package answer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source is a reference a responder cited while producing an answer.
type Source struct {
	Title   string  `json:"title"`
	Excerpt string  `json:"excerpt,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// Answer is the structured payload returned by a responder or synthesizer.
type Answer struct {
	ID          string            `json:"id"`
	ResponderID string            `json:"responder_id"`
	Text        string            `json:"text"`
	Sources     []Source          `json:"sources,omitempty"`
	Model       string            `json:"model,omitempty"`
	Language    string            `json:"language,omitempty"`
	Canned      bool              `json:"canned,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Hash        string            `json:"hash"`
}

// New creates an Answer with a fresh id and computed hash.
func New(responderID, text, model string, sources []Source) *Answer {
	a := &Answer{
		ID:          uuid.NewString(),
		ResponderID: responderID,
		Text:        text,
		Sources:     sources,
		Model:       model,
		Metadata:    make(map[string]string),
		CreatedAt:   time.Now().UTC(),
	}
	a.Hash = a.computeHash()
	return a
}

// NewCanned creates a pre-registered answer that is not produced by any responder.
func NewCanned(text, language string) *Answer {
	a := New("system", text, "", nil)
	a.Canned = true
	a.Language = language
	return a
}

// WithMetadata returns a copy of the answer with an extra metadata entry.
func (a *Answer) WithMetadata(key, value string) *Answer {
	cp := a.Clone()
	cp.Metadata[key] = value
	return cp
}

// Clone returns a deep copy. Canned answers are cloned before being handed out so
// callers cannot mutate the registered payload.
func (a *Answer) Clone() *Answer {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Metadata = copyMetadata(a.Metadata)
	if a.Sources != nil {
		cp.Sources = append([]Source(nil), a.Sources...)
	}
	return &cp
}

// Validate rejects answers that are structurally unusable.
func (a *Answer) Validate() error {
	if a == nil {
		return fmt.Errorf("answer is nil")
	}
	if strings.TrimSpace(a.Text) == "" {
		return fmt.Errorf("answer from %s is empty", a.ResponderID)
	}
	return nil
}

func (a *Answer) computeHash() string {
	h := sha256.New()
	h.Write([]byte(a.ResponderID))
	h.Write([]byte(a.Text))
	h.Write([]byte(a.Model))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func copyMetadata(m map[string]string) map[string]string {
	newM := make(map[string]string, len(m))
	for k, v := range m {
		newM[k] = v
	}
	return newM
}
