package answer

import "testing"

func TestNewComputesHash(t *testing.T) {
	a := New("TaxAgent", "file by April 30", "mock-1", nil)
	b := New("TaxAgent", "file by April 30", "mock-1", nil)
	if a.Hash == "" || a.Hash != b.Hash {
		t.Fatalf("expected equal non-empty hashes, got %q and %q", a.Hash, b.Hash)
	}
	if a.ID == b.ID {
		t.Fatalf("expected distinct ids")
	}
}

func TestWithMetadataDoesNotMutateOriginal(t *testing.T) {
	a := New("TaxAgent", "text", "", nil)
	b := a.WithMetadata("jurisdiction", "CA-QC")
	if _, ok := a.Metadata["jurisdiction"]; ok {
		t.Fatalf("original answer mutated")
	}
	if b.Metadata["jurisdiction"] != "CA-QC" {
		t.Fatalf("metadata not set on copy")
	}
}

func TestValidate(t *testing.T) {
	var nilAnswer *Answer
	if err := nilAnswer.Validate(); err == nil {
		t.Fatalf("expected error for nil answer")
	}
	if err := New("X", "   ", "", nil).Validate(); err == nil {
		t.Fatalf("expected error for blank answer")
	}
	if err := New("X", "ok", "", nil).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCannedIsMarked(t *testing.T) {
	a := NewCanned("unavailable", "en")
	if !a.Canned || a.Language != "en" || a.ResponderID != "system" {
		t.Fatalf("unexpected canned answer: %+v", a)
	}
}
