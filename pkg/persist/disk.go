package persist

import (
	"fmt"

	"go.uber.org/zap"
)

// MinFreeBytes is the free space a file slot write requires beyond twice
// the value size.
const MinFreeBytes = 10 * 1024 * 1024

// DiskSpaceInfo contains disk usage information.
type DiskSpaceInfo struct {
	Total     uint64 // Total disk space in bytes
	Free      uint64 // Free disk space in bytes
	Available uint64 // Available to non-root users
	UsedPct   int    // Percentage of disk used
}

// diskSpace is replaced in tests.
var diskSpace = checkDiskSpace

func newDiskSpaceInfo(total, free, available uint64) *DiskSpaceInfo {
	usedPct := 0
	if total > 0 {
		usedPct = int(100 * (total - free) / total)
	}
	return &DiskSpaceInfo{Total: total, Free: free, Available: available, UsedPct: usedPct}
}

// checkSpaceForWrite rejects a write of size bytes when the slot directory
// is nearly full. A failed disk query does not block the write.
func checkSpaceForWrite(dir string, size int, logger *zap.Logger) error {
	info, err := diskSpace(dir)
	if err != nil {
		logger.Warn("failed to check disk space", zap.String("dir", dir), zap.Error(err))
		return nil
	}

	required := max(uint64(MinFreeBytes), uint64(size)*2)
	if info.Available < required {
		return fmt.Errorf("%w: only %d MB available, need at least %d MB",
			ErrQuotaExceeded, info.Available/(1024*1024), required/(1024*1024))
	}
	return nil
}
