package documents

import (
	"errors"
	"fmt"
	"strings"
)

// DocumentType enumerates the kinds of documents stored in the workspace.
type DocumentType string

const (
	// DocumentTypeText marks a document whose content is edited collaboratively.
	DocumentTypeText DocumentType = "text"
	// DocumentTypeFile marks an uploaded file referenced by URL.
	DocumentTypeFile DocumentType = "file"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidDocumentID indicates that a document identifier is empty, too long or contains unsafe characters.
	ErrInvalidDocumentID = errors.New("documents: invalid document id")
	// ErrInvalidEditorID indicates that an editor identifier is empty or exceeds storage bounds.
	ErrInvalidEditorID = errors.New("documents: invalid editor id")
	// ErrDocumentNotFound indicates that no document exists for the identifier.
	ErrDocumentNotFound = errors.New("documents: document not found")
	// ErrNotTextDocument indicates that the document carries a file rather than editable text.
	ErrNotTextDocument = errors.New("documents: not a text document")
)

// DocumentID represents a validated document identifier.
type DocumentID string

// NewDocumentID validates raw input and returns a DocumentID.
// Identifiers may not contain whitespace or any of the characters {, }, $, < and >.
func NewDocumentID(rawInput string) (DocumentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDocumentID, maxIdentifierLength)
	}
	if strings.ContainsAny(trimmed, "{}$<> \t\r\n") {
		return "", fmt.Errorf("%w: unsafe characters", ErrInvalidDocumentID)
	}
	return DocumentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DocumentID) String() string {
	return string(id)
}

// EditorID represents a validated identifier of the user persisting content.
type EditorID string

// NewEditorID validates raw input and returns an EditorID.
func NewEditorID(rawInput string) (EditorID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEditorID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidEditorID, maxIdentifierLength)
	}
	return EditorID(trimmed), nil
}

// String returns the underlying string identifier.
func (id EditorID) String() string {
	return string(id)
}

// Document models a workspace document with its latest persisted content.
type Document struct {
	DocumentID       string       `gorm:"column:document_id;primaryKey;size:190;not null"`
	Name             string       `gorm:"column:name;size:320;not null"`
	Type             DocumentType `gorm:"column:type;size:16;not null;default:'text'"`
	Content          string       `gorm:"column:content;type:text;not null;default:''"`
	FileURL          string       `gorm:"column:file_url;size:512;not null;default:''"`
	OwnerID          string       `gorm:"column:owner_id;size:190;not null;index"`
	LastModifiedBy   string       `gorm:"column:last_modified_by;size:190;not null;default:''"`
	CreatedAtSeconds int64        `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64        `gorm:"column:updated_at_s;not null"`
	Version          int64        `gorm:"column:version;not null;default:1"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}

// DocumentRevision captures an append-only audit trail for persisted saves.
type DocumentRevision struct {
	RevisionID       string `gorm:"column:revision_id;primaryKey;size:190;not null"`
	DocumentID       string `gorm:"column:document_id;size:190;not null;index:idx_revisions_document_time,priority:1"`
	EditorID         string `gorm:"column:editor_id;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null;index:idx_revisions_document_time,priority:2"`
	PreviousVersion  int64  `gorm:"column:prev_version;not null"`
	NewVersion       int64  `gorm:"column:new_version;not null"`
	ContentLength    int    `gorm:"column:content_length;not null"`
}

// TableName provides the explicit table binding for GORM.
func (DocumentRevision) TableName() string {
	return "document_revisions"
}

// CreateRequest describes a new document inserted into the store.
type CreateRequest struct {
	DocumentID DocumentID
	Name       string
	Type       DocumentType
	Content    string
	FileURL    string
	OwnerID    EditorID
}
