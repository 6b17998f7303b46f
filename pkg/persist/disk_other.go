//go:build !unix && !windows

package persist

import "errors"

func checkDiskSpace(string) (*DiskSpaceInfo, error) {
	return nil, errors.New("persist: disk stats unsupported on this platform")
}
