package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/pragmaxim-com/redbit-sub001/internal/storage"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte("addresses"))
		return err
	})
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestHealthzOK(t *testing.T) {
	db := openTestDB(t)
	srv := New(&storage.Storage{DBs: map[string]*bolt.DB{"utxo": db}}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body healthzResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Status)
	}
}

func TestHealthzNotReadyBeforeFirstBegin(t *testing.T) {
	db := openTestDB(t)
	ready := false
	srv := New(&storage.Storage{DBs: map[string]*bolt.DB{"utxo": db}}, func() bool { return ready })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before readiness, got %d", rec.Code)
	}

	ready = true
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after readiness, got %d", rec.Code)
	}
}

func TestStatsTablesReportsBuckets(t *testing.T) {
	db := openTestDB(t)
	srv := New(&storage.Storage{DBs: map[string]*bolt.DB{"utxo": db}}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats/tables", nil)
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var tables []storage.TableInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &tables); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(tables) != 1 || tables[0].Table != "addresses" {
		t.Fatalf("expected one addresses table, got %+v", tables)
	}
}
