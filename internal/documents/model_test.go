package documents

import (
	"errors"
	"strings"
	"testing"
)

func TestNewDocumentIDTrimsInput(t *testing.T) {
	id, err := NewDocumentID("  doc-1  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != "doc-1" {
		t.Fatalf("expected trimmed identifier, got %q", id.String())
	}
}

func TestNewDocumentIDRejectsUnsafeInput(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		`{"$gt":""}`,
		"<script>",
		"doc 1",
		"doc$1",
		strings.Repeat("a", maxIdentifierLength+1),
	}
	for _, input := range inputs {
		if _, err := NewDocumentID(input); !errors.Is(err, ErrInvalidDocumentID) {
			t.Fatalf("expected ErrInvalidDocumentID for %q, got %v", input, err)
		}
	}
}

func TestNewEditorIDRejectsEmpty(t *testing.T) {
	if _, err := NewEditorID(" "); !errors.Is(err, ErrInvalidEditorID) {
		t.Fatalf("expected ErrInvalidEditorID, got %v", err)
	}
}
