package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DocumentModel is the GORM row holding one document of one collection.
type DocumentModel struct {
	ID         uint   `gorm:"primaryKey"`
	Collection string `gorm:"not null;index"`
	Payload    datatypes.JSON
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time
}

// OpenGormDB opens the Postgres database and runs auto-migrations.
func OpenGormDB(dsn string) (*gorm.DB, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&DocumentModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return db, nil
}

// GormTable implements Table on a shared Postgres database, one logical
// collection per table value. Payloads live in a JSON column and predicates
// match on a top-level JSON field.
type GormTable struct {
	db         *gorm.DB
	collection string
}

// NewGormTable binds a collection name to the shared database handle.
func NewGormTable(db *gorm.DB, collection string) *GormTable {
	return &GormTable{db: db, collection: collection}
}

func (t *GormTable) Get(field string, value any) (Document, bool, error) {
	var row DocumentModel
	err := t.scope().
		Where(datatypes.JSONQuery("payload").Equals(value, field)).
		Order("id").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get document: %w", err)
	}
	doc, err := decodePayload(row.Payload)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (t *GormTable) Search(field string, value any) ([]Document, error) {
	var rows []DocumentModel
	err := t.scope().
		Where(datatypes.JSONQuery("payload").Equals(value, field)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	return decodeRows(rows)
}

func (t *GormTable) All() ([]Document, error) {
	var rows []DocumentModel
	if err := t.scope().Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return decodeRows(rows)
}

func (t *GormTable) Insert(doc Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	row := DocumentModel{
		Collection: t.collection,
		Payload:    datatypes.JSON(payload),
		CreatedAt:  time.Now().UTC(),
	}
	if err := t.db.Create(&row).Error; err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (t *GormTable) Update(fields Document, field string, value any) (int, error) {
	var rows []DocumentModel
	err := t.scope().
		Where(datatypes.JSONQuery("payload").Equals(value, field)).
		Find(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("update documents: %w", err)
	}
	for i := range rows {
		doc, err := decodePayload(rows[i].Payload)
		if err != nil {
			return 0, err
		}
		for k, v := range fields {
			doc[k] = v
		}
		payload, err := json.Marshal(doc)
		if err != nil {
			return 0, fmt.Errorf("update documents: %w", err)
		}
		rows[i].Payload = datatypes.JSON(payload)
		rows[i].UpdatedAt = time.Now().UTC()
		if err := t.db.Save(&rows[i]).Error; err != nil {
			return 0, fmt.Errorf("update documents: %w", err)
		}
	}
	return len(rows), nil
}

func (t *GormTable) Remove(field string, value any) ([]Document, error) {
	var rows []DocumentModel
	err := t.scope().
		Where(datatypes.JSONQuery("payload").Equals(value, field)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("remove documents: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	removed, err := decodeRows(rows)
	if err != nil {
		return nil, err
	}
	err = t.scope().
		Where(datatypes.JSONQuery("payload").Equals(value, field)).
		Delete(&DocumentModel{}).Error
	if err != nil {
		return nil, fmt.Errorf("remove documents: %w", err)
	}
	return removed, nil
}

func (t *GormTable) Truncate() error {
	if err := t.scope().Delete(&DocumentModel{}).Error; err != nil {
		return fmt.Errorf("truncate collection: %w", err)
	}
	return nil
}

func (t *GormTable) scope() *gorm.DB {
	return t.db.Model(&DocumentModel{}).Where("collection = ?", t.collection)
}

func decodePayload(payload datatypes.JSON) (Document, error) {
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return doc, nil
}

func decodeRows(rows []DocumentModel) ([]Document, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := decodePayload(row.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}
