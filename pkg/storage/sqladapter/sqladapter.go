// Package sqladapter provides the SQL-backed storage adapter. Two openers
// exist: an embedded file-backed sqlite database and a networked postgres
// database with a connection pool. Both share the same GORM record model and
// adapter logic.
package sqladapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/hearthd/hearthd/pkg/storage"
)

// Record is the GORM model for one stored value. The JSON document is kept
// as a serialized text column; the schema carries no domain knowledge.
type Record struct {
	Namespace string `gorm:"primaryKey;column:namespace;type:varchar(190);not null"`
	Key       string `gorm:"primaryKey;column:record_key;type:varchar(190);not null"`
	Value     string `gorm:"column:value;not null"`
}

// TableName returns the GORM table name.
func (Record) TableName() string { return "kv_records" }

// Adapter implements storage.Adapter on a *gorm.DB. GORM's pooled
// connections satisfy the one-connection-per-worker requirement; a
// Transaction call pins its statements to a single transaction connection.
type Adapter struct {
	db *gorm.DB
}

// OpenSQLite opens (and migrates) an embedded sqlite database at path.
// The pure-Go driver enables WAL journaling via the DSN.
func OpenSQLite(path string) (*Adapter, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return newAdapter(db)
}

// OpenPostgres opens (and migrates) a networked postgres database.
func OpenPostgres(dsn string) (*Adapter, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return newAdapter(db)
}

// NewWithDB wraps an existing GORM handle. Used by tests.
func NewWithDB(db *gorm.DB) (*Adapter, error) {
	return newAdapter(db)
}

func newAdapter(db *gorm.DB) (*Adapter, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("auto-migrate kv_records: %w", err)
	}
	return &Adapter{db: db}, nil
}

// Get returns the decoded value for (namespace, key).
func (a *Adapter) Get(ctx context.Context, namespace, key string) (map[string]any, bool, error) {
	var rec Record
	err := a.db.WithContext(ctx).
		Where("namespace = ? AND record_key = ?", namespace, key).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select record: %w", err)
	}

	var value map[string]any
	if err := json.Unmarshal([]byte(rec.Value), &value); err != nil {
		return nil, false, fmt.Errorf("decode record %s.%s: %w", namespace, key, err)
	}
	return value, true, nil
}

// Set upserts (namespace, key, value).
func (a *Adapter) Set(ctx context.Context, namespace, key string, value map[string]any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode record %s.%s: %w", namespace, key, err)
	}

	rec := Record{Namespace: namespace, Key: key, Value: string(raw)}
	err = a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "record_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// Delete removes (namespace, key). Absent records are not an error.
func (a *Adapter) Delete(ctx context.Context, namespace, key string) error {
	err := a.db.WithContext(ctx).
		Where("namespace = ? AND record_key = ?", namespace, key).
		Delete(&Record{}).Error
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// ListKeys returns all keys in a namespace.
func (a *Adapter) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	var keys []string
	err := a.db.WithContext(ctx).
		Model(&Record{}).
		Where("namespace = ?", namespace).
		Pluck("record_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// ClearNamespace removes every record in a namespace.
func (a *Adapter) ClearNamespace(ctx context.Context, namespace string) error {
	err := a.db.WithContext(ctx).
		Where("namespace = ?", namespace).
		Delete(&Record{}).Error
	if err != nil {
		return fmt.Errorf("clear namespace: %w", err)
	}
	return nil
}

// BatchSet writes all records inside a single transaction.
func (a *Adapter) BatchSet(ctx context.Context, namespace string, values map[string]map[string]any) error {
	return a.Transaction(ctx, func(tx storage.Adapter) error {
		for key, value := range values {
			if err := tx.Set(ctx, namespace, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Transaction runs fn against an adapter bound to a single transaction.
func (a *Adapter) Transaction(ctx context.Context, fn func(tx storage.Adapter) error) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Adapter{db: tx})
	})
}

// Close closes the underlying connection pool.
func (a *Adapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (a *Adapter) Ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
