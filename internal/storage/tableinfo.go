package storage

import bolt "go.etcd.io/bbolt"

// TableInfo reports bbolt's own bucket statistics for one physical table,
// exposed verbatim through GET /stats/tables.
type TableInfo struct {
	DB           string `json:"db"`
	Table        string `json:"table"`
	Depth        int    `json:"depth"`
	BranchPages  int    `json:"branch_pages"`
	LeafPages    int    `json:"leaf_pages"`
	KeyN         int    `json:"key_count"`
	FragmentedKB int    `json:"fragmented_bytes"`
}

// CollectTableInfo opens a read transaction on db and reports stats for
// every top-level bucket.
func CollectTableInfo(dbName string, db *bolt.DB) ([]TableInfo, error) {
	var out []TableInfo
	err := db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			st := b.Stats()
			out = append(out, TableInfo{
				DB:           dbName,
				Table:        string(name),
				Depth:        st.Depth,
				BranchPages:  st.BranchPageN,
				LeafPages:    st.LeafPageN,
				KeyN:         st.KeyN,
				FragmentedKB: (st.LeafAlloc - st.LeafInuse) + (st.BranchAlloc - st.BranchInuse),
			})
			return nil
		})
	})
	if err != nil {
		return nil, wrap(KindStorage, "collect table info", dbName, err)
	}
	return out, nil
}
