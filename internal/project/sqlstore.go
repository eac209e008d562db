package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gridfill/pkg/geometry"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// formRecord is the table row for a FormDocument.
type formRecord struct {
	gorm.Model
	FormID          string `gorm:"uniqueIndex;not null"`
	BaseImage       []byte
	CompositedImage []byte
	DrawingLayer    []byte
	BlankAreas      string // JSON array of rectangles
	Timestamp       time.Time
	Size            int64
}

func (formRecord) TableName() string { return "forms" }

func recordFromDocument(doc *FormDocument) (formRecord, error) {
	areas, err := json.Marshal(doc.BlankAreas)
	if err != nil {
		return formRecord{}, err
	}
	return formRecord{
		FormID:          doc.ID,
		BaseImage:       doc.BaseImage,
		CompositedImage: doc.CompositedImage,
		DrawingLayer:    doc.DrawingLayer,
		BlankAreas:      string(areas),
		Timestamp:       doc.Timestamp,
		Size:            doc.Size,
	}, nil
}

func (r *formRecord) document() (*FormDocument, error) {
	var areas []geometry.RectInt
	if r.BlankAreas != "" {
		if err := json.Unmarshal([]byte(r.BlankAreas), &areas); err != nil {
			return nil, fmt.Errorf("parse blank areas of %s: %w", r.FormID, err)
		}
	}
	return &FormDocument{
		ID:              r.FormID,
		BaseImage:       r.BaseImage,
		CompositedImage: r.CompositedImage,
		DrawingLayer:    r.DrawingLayer,
		BlankAreas:      areas,
		Timestamp:       r.Timestamp,
		Size:            r.Size,
	}, nil
}

// SQLStore keeps form records in a SQLite database.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLStore opens (or creates) the database at dsn and migrates the schema.
// dsn is a file path or ":memory:".
func OpenSQLStore(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&formRecord{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Load reads the record for id.
func (s *SQLStore) Load(ctx context.Context, id string) (*FormDocument, error) {
	var rec formRecord
	err := s.db.WithContext(ctx).Where("form_id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec.document()
}

// Save inserts doc or replaces the existing record with the same id.
func (s *SQLStore) Save(ctx context.Context, doc *FormDocument) error {
	if !validID(doc.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, doc.ID)
	}
	rec, err := recordFromDocument(doc)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing formRecord
		err := tx.Where("form_id = ?", doc.ID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&rec).Error
		case err != nil:
			return err
		}
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		return tx.Save(&rec).Error
	})
}

// List returns the ids of all stored forms in lexical order.
func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&formRecord{}).Order("form_id").Pluck("form_id", &ids).Error
	return ids, err
}

// Delete removes the record for id.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Unscoped().Where("form_id = ?", id).Delete(&formRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	return nil
}
