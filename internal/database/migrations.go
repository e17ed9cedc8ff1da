package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/documents"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationDefaultDocumentType = "2026-10-01_default_document_type"
	migrationStripEditorPrefix   = "2026-10-02_strip_editor_provider_prefix"

	legacyEditorPrefix = "google:"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationDefaultDocumentType, apply: backfillDocumentType},
		{name: migrationStripEditorPrefix, apply: stripEditorProviderPrefix},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return fmt.Errorf("migration %s: %w", migration.name, err)
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func backfillDocumentType(db *gorm.DB) error {
	return db.Model(&documents.Document{}).
		Where("type = ? OR type IS NULL", "").
		Update("type", documents.DocumentTypeText).Error
}

// Editor ids written before identities were canonicalized carried the provider prefix.
func stripEditorProviderPrefix(db *gorm.DB) error {
	start := len(legacyEditorPrefix) + 1
	pattern := legacyEditorPrefix + "%"
	if err := db.Model(&documents.Document{}).
		Where("last_modified_by LIKE ?", pattern).
		Update("last_modified_by", gorm.Expr("substr(last_modified_by, ?)", start)).Error; err != nil {
		return err
	}
	return db.Model(&documents.DocumentRevision{}).
		Where("editor_id LIKE ?", pattern).
		Update("editor_id", gorm.Expr("substr(editor_id, ?)", start)).Error
}
