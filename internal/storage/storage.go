package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pragmaxim-com/redbit-sub001/pkg/log"
)

// Storage holds the opened set of physical databases backing one indexer
// instance. Unlike the redb original, which splits an owning Arc<Database>
// from a read-only Weak<Database> view so table writers on other threads
// don't keep the database alive past shutdown, Go's garbage collector
// makes that split unnecessary: every table writer simply shares the same
// *bolt.DB pointer, and Storage is the sole place that calls Close.
type Storage struct {
	DBs map[string]*bolt.DB
}

// Open opens (or creates, on first run) one bbolt file per DbDef under
// dbDir, allocating cache budget across them via AllocateCacheMB. Returns
// whether this was a fresh directory. When readOnly is true, every file is
// opened with bbolt's shared-lock read-only mode so it can run alongside a
// live writer process (used by `indexerctl stats`); readOnly requires the
// files to already exist.
func Open(dbDir string, defs []DbDef, totalCacheGB uint64, readOnly bool) (created bool, storage *Storage, err error) {
	withCache := AllocateCacheMB(defs, totalCacheGB*1024)
	logTable := formatCacheTable(withCache)

	fresh := false
	if _, statErr := os.Stat(dbDir); os.IsNotExist(statErr) {
		fresh = true
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return false, nil, wrap(KindDatabase, "mkdir", dbDir, err)
		}
	}

	if fresh {
		log.Logger.Info().Msgf("creating dbs at %s with total cache size %d GB:\n%s", dbDir, totalCacheGB, logTable)
	} else {
		log.Logger.Info().Msgf("opening existing dbs at %s with total cache size %d GB:\n%s", dbDir, totalCacheGB, logTable)
	}

	dbs := make(map[string]*bolt.DB, len(withCache))
	for _, d := range withCache {
		path := filepath.Join(dbDir, d.Name+".db")
		opts := &bolt.Options{Timeout: 5 * time.Second, ReadOnly: readOnly}
		if d.CacheMB > 0 {
			// bbolt has no cache-size knob; InitialMmapSize is the
			// closest analogue, pre-sizing the mmap so a cold database
			// doesn't pay repeated remap costs while warming up to its
			// allotted working set.
			opts.InitialMmapSize = int(d.CacheMB) * 1024 * 1024
		}
		db, openErr := bolt.Open(path, 0600, opts)
		if openErr != nil {
			for _, opened := range dbs {
				_ = opened.Close()
			}
			return false, nil, wrap(KindDatabase, "open", d.Name, openErr)
		}
		dbs[d.Name] = db
	}

	return fresh, &Storage{DBs: dbs}, nil
}

// Close closes every opened database.
func (s *Storage) Close() error {
	var firstErr error
	for name, db := range s.DBs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = wrap(KindDatabase, "close", name, err)
		}
	}
	return firstErr
}

func formatCacheTable(defs []DbDefWithCache) string {
	nameWidth := len("DB NAME")
	for _, d := range defs {
		if len(d.Name) > nameWidth {
			nameWidth = len(d.Name)
		}
	}
	sorted := append([]DbDefWithCache{}, defs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var b strings.Builder
	fmt.Fprintf(&b, "%-*s  %10s   %10s   %10s\n", nameWidth, "DB NAME", "weight", "size(MB)", "lru")
	for _, d := range sorted {
		fmt.Fprintf(&b, "%-*s  %10d   %10d   %10d\n", nameWidth, d.Name, d.CacheWeight, d.CacheMB, d.LRUCacheSize)
	}
	return b.String()
}
