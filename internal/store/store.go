// Package store persists trained model instances and their audit metadata
// in SQLite so a process restart recovers the latest model without
// retraining.
package store

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ModelRecord is one durable trained model instance: the opaque fitted
// state plus its family tag and version.
type ModelRecord struct {
	Version   string `gorm:"primaryKey"`
	Family    string `gorm:"index;not null"`
	State     []byte `gorm:"not null"`
	CreatedAt int64  `gorm:"autoCreateTime"`
}

// ModelMetadata is the optional per-version audit record.
type ModelMetadata struct {
	Version         string  `gorm:"primaryKey"`
	Family          string  `gorm:"not null"`
	TrainedAt       string  `gorm:"not null"`
	DataFingerprint string  `gorm:"not null"`
	SamplesTrained  int     `gorm:"not null"`
	R2Mean          float64 `gorm:"not null"`
	R2Std           float64 `gorm:"not null"`
	FoldScores      string  `gorm:"type:text"` // JSON array of per-fold R²
	Importances     string  `gorm:"type:text"` // JSON map feature -> importance
}

// Store wraps the SQLite model database.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (or creates) the model database at path and migrates the
// schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open model store %q: %w", path, err)
	}
	if err := db.AutoMigrate(&ModelRecord{}, &ModelMetadata{}); err != nil {
		return nil, fmt.Errorf("migrate model store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// SaveModel durably writes a model record and its metadata in one
// transaction. It is called as the terminal step of training.
func (s *Store) SaveModel(record *ModelRecord, meta *ModelMetadata) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		if meta != nil {
			if err := tx.Create(meta).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist model %s: %w", record.Version, err)
	}
	s.logger.Info("model persisted",
		zap.String("version", record.Version),
		zap.String("family", record.Family),
		zap.Int("state_bytes", len(record.State)))
	return nil
}

// LoadLatest returns the model record with the lexically greatest version,
// or nil when the store is empty.
func (s *Store) LoadLatest() (*ModelRecord, error) {
	var record ModelRecord
	err := s.db.Order("version DESC").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest model: %w", err)
	}
	return &record, nil
}

// LoadMetadata returns the audit record for a version, or nil when absent.
func (s *Store) LoadMetadata(version string) (*ModelMetadata, error) {
	var meta ModelMetadata
	err := s.db.First(&meta, "version = ?", version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load metadata %s: %w", version, err)
	}
	return &meta, nil
}

// Versions lists persisted versions in descending order.
func (s *Store) Versions() ([]string, error) {
	var versions []string
	if err := s.db.Model(&ModelRecord{}).Order("version DESC").Pluck("version", &versions).Error; err != nil {
		return nil, fmt.Errorf("list model versions: %w", err)
	}
	return versions, nil
}
