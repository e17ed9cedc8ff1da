package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// StoreError carries an operation.reason code alongside the underlying cause.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

func (e *StoreError) Code() string {
	return e.code
}

const (
	opStoreNew    = "documents.store.new"
	opLoadContent = "documents.load"
	opSaveContent = "documents.save"
	opCreate      = "documents.create"
	opRevisions   = "documents.list_revisions"

	fieldDocumentID = "document_id"
	fieldEditorID   = "editor_id"
	queryDocumentID = fieldDocumentID + " = ?"
)

func newStoreError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &StoreError{code: code, err: cause}
}

// StoreConfig describes the dependencies of the gorm-backed document store.
type StoreConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Store persists document content and records a revision for every save.
type Store struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewStore validates the configuration and constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newStoreError(opStoreNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Load returns the current text content of a document.
func (s *Store) Load(ctx context.Context, documentID DocumentID) (string, error) {
	var document Document
	err := s.db.WithContext(ctx).Where(queryDocumentID, documentID.String()).Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrDocumentNotFound
	}
	if err != nil {
		s.logError(opLoadContent, "query_failed", err, zap.String(fieldDocumentID, documentID.String()))
		return "", newStoreError(opLoadContent, "query_failed", err)
	}
	if document.Type == DocumentTypeFile {
		return "", ErrNotTextDocument
	}
	return document.Content, nil
}

// Save replaces the document content, bumps its version and appends a revision record.
func (s *Store) Save(ctx context.Context, documentID DocumentID, content string, editorID EditorID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var document Document
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(queryDocumentID, documentID.String()).
			Take(&document).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDocumentNotFound
		}
		if err != nil {
			s.logError(opSaveContent, "document_select_failed", err,
				zap.String(fieldDocumentID, documentID.String()))
			return newStoreError(opSaveContent, "document_select_failed", err)
		}
		if document.Type == DocumentTypeFile {
			return ErrNotTextDocument
		}

		appliedAt := s.clock().UTC().Unix()
		previousVersion := document.Version
		nextVersion := previousVersion + 1
		if nextVersion <= 0 {
			nextVersion = 1
		}

		updates := map[string]interface{}{
			"content":          content,
			"last_modified_by": editorID.String(),
			"updated_at_s":     appliedAt,
			"version":          nextVersion,
		}
		if err := tx.Model(&Document{}).Where(queryDocumentID, documentID.String()).Updates(updates).Error; err != nil {
			s.logError(opSaveContent, "document_update_failed", err,
				zap.String(fieldDocumentID, documentID.String()),
				zap.String(fieldEditorID, editorID.String()))
			return newStoreError(opSaveContent, "document_update_failed", err)
		}

		revisionID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opSaveContent, "id_generation_failed", err,
				zap.String(fieldDocumentID, documentID.String()))
			return newStoreError(opSaveContent, "id_generation_failed", err)
		}
		revision := DocumentRevision{
			RevisionID:       revisionID,
			DocumentID:       documentID.String(),
			EditorID:         editorID.String(),
			AppliedAtSeconds: appliedAt,
			PreviousVersion:  previousVersion,
			NewVersion:       nextVersion,
			ContentLength:    len(content),
		}
		if err := tx.Create(&revision).Error; err != nil {
			s.logError(opSaveContent, "revision_insert_failed", err,
				zap.String(fieldDocumentID, documentID.String()),
				zap.String(fieldEditorID, editorID.String()))
			return newStoreError(opSaveContent, "revision_insert_failed", err)
		}
		return nil
	})
}

// Create inserts a new document.
func (s *Store) Create(ctx context.Context, request CreateRequest) (Document, error) {
	if request.DocumentID == "" {
		return Document{}, fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	documentType := request.Type
	if documentType == "" {
		documentType = DocumentTypeText
	}
	now := s.clock().UTC().Unix()
	document := Document{
		DocumentID:       request.DocumentID.String(),
		Name:             request.Name,
		Type:             documentType,
		Content:          request.Content,
		FileURL:          request.FileURL,
		OwnerID:          request.OwnerID.String(),
		LastModifiedBy:   request.OwnerID.String(),
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
		Version:          1,
	}
	if err := s.db.WithContext(ctx).Create(&document).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String(fieldDocumentID, request.DocumentID.String()))
		return Document{}, newStoreError(opCreate, "insert_failed", err)
	}
	return document, nil
}

// ListRevisions returns the revisions of a document, oldest first.
func (s *Store) ListRevisions(ctx context.Context, documentID DocumentID) ([]DocumentRevision, error) {
	var revisions []DocumentRevision
	if err := s.db.WithContext(ctx).
		Where(queryDocumentID, documentID.String()).
		Order("applied_at_s ASC, new_version ASC").
		Find(&revisions).Error; err != nil {
		s.logError(opRevisions, "query_failed", err, zap.String(fieldDocumentID, documentID.String()))
		return nil, newStoreError(opRevisions, "query_failed", err)
	}
	return revisions, nil
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("document store error", attrs...)
}
