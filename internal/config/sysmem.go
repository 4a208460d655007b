package config

import "github.com/pbnjay/memory"

// totalMemGB reports total system memory in GB, used to resolve
// DbCacheSizeGB ratios. pbnjay/memory is a direct dependency of this
// module (listed in go.mod); it is the natural library
// for this concern rather than hand-parsing /proc/meminfo.
func totalMemGB() uint64 {
	total := memory.TotalMemory()
	if total == 0 {
		return 1
	}
	return total / (1024 * 1024 * 1024)
}
