package models

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/salesdesk_backend/config"
	"bitbucket.org/mmdatafocus/salesdesk_backend/utils"
)

// ColumnDescriptor is one row of the materialized schema snapshot: one live
// database column and its type, as reported by information_schema.
type ColumnDescriptor struct {
	TableSchema string `gorm:"column:table_schema" json:"table_schema"`
	TableName   string `gorm:"column:table_name" json:"table_name"`
	ColumnName  string `gorm:"column:column_name" json:"column_name"`
	DataType    string `gorm:"column:data_type" json:"data_type"`
}

// LoadSchemaSnapshotFile reads a pre-generated snapshot document (JSON array
// of column descriptors). Any read/parse failure wraps
// utils.ErrorSnapshotUnavailable: conformance checking cannot run without a
// snapshot and there is no safe default.
func LoadSchemaSnapshotFile(path string) ([]ColumnDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", utils.ErrorSnapshotUnavailable, path, err)
	}
	var snapshot []ColumnDescriptor
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", utils.ErrorSnapshotUnavailable, path, err)
	}
	return snapshot, nil
}

// LoadSchemaSnapshotDB introspects the live database. Ordered by table and
// ordinal position so repeated runs produce identical snapshots.
func LoadSchemaSnapshotDB(ctx context.Context) ([]ColumnDescriptor, error) {
	db := config.GetDB()
	if db == nil {
		return nil, fmt.Errorf("%w: database not initialized", utils.ErrorSnapshotUnavailable)
	}

	var snapshot []ColumnDescriptor
	err := db.WithContext(ctx).Raw(`
		SELECT table_schema, table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = @schemaName
		ORDER BY table_name, ordinal_position
	`, map[string]interface{}{
		"schemaName": config.SchemaQualifier(),
	}).Scan(&snapshot).Error
	if err != nil {
		return nil, fmt.Errorf("%w: introspection failed: %v", utils.ErrorSnapshotUnavailable, err)
	}
	return snapshot, nil
}

func snapshotCacheKey() string {
	return "schema:snapshot:" + config.SchemaQualifier()
}

// InvalidateSchemaSnapshotCache drops the cached snapshot document. Called
// when a schema-cache reload is issued: a snapshot taken before the DDL change
// must not outlive it.
func InvalidateSchemaSnapshotCache() {
	if err := config.DeleteRedisKey(snapshotCacheKey()); err != nil {
		config.LogWarn(config.GetLogger(), "schemaSnapshot.go", "InvalidateSchemaSnapshotCache", "snapshot cache delete", nil, err.Error())
	}
}

// LoadSchemaSnapshot is the default source: the redis-cached document when the
// cache is enabled and warm, live introspection otherwise. Cache failures are
// logged and fall through to the database; only introspection failure is fatal.
func LoadSchemaSnapshot(ctx context.Context) ([]ColumnDescriptor, error) {
	cacheKey := snapshotCacheKey()

	if config.SnapshotCacheEnabled() {
		var cached []ColumnDescriptor
		found, err := config.GetRedisObject(cacheKey, &cached)
		if err != nil {
			config.LogWarn(config.GetLogger(), "schemaSnapshot.go", "LoadSchemaSnapshot", "snapshot cache read", nil, err.Error())
		}
		if found && len(cached) > 0 {
			return cached, nil
		}
	}

	snapshot, err := LoadSchemaSnapshotDB(ctx)
	if err != nil {
		return nil, err
	}

	if config.SnapshotCacheEnabled() {
		if err := config.SetRedisObject(cacheKey, snapshot, config.SnapshotCacheTTL()); err != nil {
			config.LogWarn(config.GetLogger(), "schemaSnapshot.go", "LoadSchemaSnapshot", "snapshot cache write", nil, err.Error())
		}
	}
	return snapshot, nil
}
