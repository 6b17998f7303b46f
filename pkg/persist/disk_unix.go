//go:build unix

package persist

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// checkDiskSpace returns disk space information for dir, or for its parent
// when dir does not exist yet.
func checkDiskSpace(dir string) (*DiskSpaceInfo, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		if err := unix.Statfs(filepath.Dir(dir), &stat); err != nil {
			return nil, fmt.Errorf("persist: failed to get disk stats: %w", err)
		}
	}

	bsize := uint64(stat.Bsize)
	return newDiskSpaceInfo(uint64(stat.Blocks)*bsize, uint64(stat.Bfree)*bsize, uint64(stat.Bavail)*bsize), nil
}
