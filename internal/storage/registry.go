package storage

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/pragmaxim-com/redbit-sub001/internal/schema"
)

// BuildEntityWriteContext interprets a schema.EntitySpec (the runtime
// registry a chain-specific package hands it, in place of per-entity
// generated code), instantiating one physical writer per persisted column
// and recursing into child relationships in declaration order to build
// their own EntityWriteContexts. A transient column
// (schema.ColumnTransient) is skipped; it is derived at read/write time
// from other tables rather than backed by its own bucket.
//
// dbs supplies the physical *bolt.DB backing each bucket, keyed by
// "<entityName>_<columnName>" for an unsharded column or
// "<entityName>_<columnName>_<shardIndex>" for a column whose ColumnSpec
// requests more than one shard.
func BuildEntityWriteContext(spec *schema.EntitySpec, dbs map[string]*bolt.DB) (*EntityWriteContext, error) {
	if err := validateUniqueBuckets(spec); err != nil {
		return nil, err
	}
	return buildEntityWriteContext(spec, dbs)
}

// validateUniqueBuckets uses schema.Walk to visit every entity in the
// tree once, depth first, checking that no two columns resolve to the
// same bucket name before any TableWriter is opened.
func validateUniqueBuckets(spec *schema.EntitySpec) error {
	seen := make(map[string]bool)
	var dupErr error
	schema.Walk(spec, func(s *schema.EntitySpec) {
		for _, col := range s.Columns {
			if col.Kind == schema.ColumnTransient {
				continue
			}
			bucket := s.Name + "_" + col.Name
			if seen[bucket] && dupErr == nil {
				dupErr = fmt.Errorf("storage: duplicate bucket name %q across entity schema", bucket)
			}
			seen[bucket] = true
		}
	})
	return dupErr
}

func buildEntityWriteContext(spec *schema.EntitySpec, dbs map[string]*bolt.DB) (*EntityWriteContext, error) {
	writers := make([]Writer, 0, len(spec.Columns))
	for _, col := range spec.Columns {
		if col.Kind == schema.ColumnTransient {
			continue
		}
		w, err := buildColumnWriter(spec.Name, col, dbs)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}

	children := make([]*EntityWriteContext, 0, len(spec.Relationships))
	for _, rel := range spec.Relationships {
		child, err := buildEntityWriteContext(rel.Child, dbs)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	return NewEntityWriteContext(spec.Name, writers, children...), nil
}

func buildColumnWriter(entityName string, col schema.ColumnSpec, dbs map[string]*bolt.DB) (Writer, error) {
	bucket := entityName + "_" + col.Name

	if col.Shards <= 1 {
		db, ok := dbs[bucket]
		if !ok {
			return nil, fmt.Errorf("storage: no db registered for column %q", bucket)
		}
		return newColumnTableWriter(bucket, db, col), nil
	}

	shards := make([]*TableWriter, col.Shards)
	for i := 0; i < col.Shards; i++ {
		key := fmt.Sprintf("%s_%d", bucket, i)
		db, ok := dbs[key]
		if !ok {
			return nil, fmt.Errorf("storage: no db registered for shard %q", key)
		}
		shards[i] = newColumnTableWriter(bucket, db, col)
	}

	partitioning := PartitionByKey
	if col.Partitioning == schema.PartitionByValue {
		partitioning = PartitionByValue
	}
	return NewShardedWriter(shards, partitioning)
}

func newColumnTableWriter(bucket string, db *bolt.DB, col schema.ColumnSpec) *TableWriter {
	switch col.Kind {
	case schema.ColumnIndex:
		return NewIndexTableWriter(bucket, db)
	case schema.ColumnDict:
		return NewDictTableWriter(bucket, db, col.LRUSize)
	default:
		return NewPlainTableWriter(bucket, db)
	}
}
