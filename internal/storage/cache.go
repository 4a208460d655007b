package storage

import "sort"

// DbDef describes one physical database awaiting a cache budget: its name,
// a relative weight (0 means "no cache"), and an LRU entry-count hint for
// any dictionary columns it hosts.
type DbDef struct {
	Name           string
	CacheWeight    uint64
	LRUCacheSize   int
}

// DbDefWithCache is a DbDef after cache_mb has been resolved.
type DbDefWithCache struct {
	Name         string
	CacheWeight  uint64
	LRUCacheSize int
	CacheMB      uint64
}

// AllocateCacheMB splits totalMB across dbDefs using the largest-remainder
// (Hamilton) method on weights. Zero-weighted entries always receive 0 MB.
// Ties in the remainder distribution are broken by input order.
func AllocateCacheMB(dbDefs []DbDef, totalMB uint64) []DbDefWithCache {
	if len(dbDefs) == 0 || totalMB == 0 {
		return zeroAllocations(dbDefs)
	}

	sumW := sumPositiveWeights(dbDefs)
	if sumW == 0 {
		return zeroAllocations(dbDefs)
	}

	shares := computeShares(dbDefs, totalMB, sumW)
	var baseSum uint64
	for _, s := range shares {
		baseSum += s.baseMB
	}
	remainder := uint64(0)
	if totalMB > baseSum {
		remainder = totalMB - baseSum
	}
	if remainder > 0 {
		distributeRemainder(shares, remainder, dbDefs)
	}

	out := make([]DbDefWithCache, len(dbDefs))
	for _, s := range shares {
		d := dbDefs[s.idx]
		out[s.idx] = DbDefWithCache{
			Name:         d.Name,
			CacheWeight:  d.CacheWeight,
			LRUCacheSize: d.LRUCacheSize,
			CacheMB:      s.baseMB,
		}
	}
	return out
}

func zeroAllocations(dbDefs []DbDef) []DbDefWithCache {
	out := make([]DbDefWithCache, len(dbDefs))
	for i, d := range dbDefs {
		out[i] = DbDefWithCache{Name: d.Name, CacheWeight: d.CacheWeight, LRUCacheSize: d.LRUCacheSize, CacheMB: 0}
	}
	return out
}

func sumPositiveWeights(dbDefs []DbDef) uint64 {
	var sum uint64
	for _, d := range dbDefs {
		if d.CacheWeight > 0 {
			sum += d.CacheWeight
		}
	}
	return sum
}

type share struct {
	idx    int
	baseMB uint64
	remNum uint64
}

func computeShares(dbDefs []DbDef, totalMB, sumW uint64) []share {
	shares := make([]share, len(dbDefs))
	for i, d := range dbDefs {
		if d.CacheWeight == 0 {
			shares[i] = share{idx: i}
			continue
		}
		prod := totalMB * d.CacheWeight
		shares[i] = share{idx: i, baseMB: prod / sumW, remNum: prod % sumW}
	}
	return shares
}

func distributeRemainder(shares []share, remainder uint64, dbDefs []DbDef) {
	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		sa, sb := shares[order[a]], shares[order[b]]
		if sa.remNum != sb.remNum {
			return sa.remNum > sb.remNum
		}
		return sa.idx < sb.idx
	})
	for _, pos := range order {
		if remainder == 0 {
			break
		}
		if dbDefs[shares[pos].idx].CacheWeight > 0 {
			shares[pos].baseMB++
			remainder--
		}
	}
}
