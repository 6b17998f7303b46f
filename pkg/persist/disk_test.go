package persist

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func stubDiskSpace(t *testing.T, fn func(string) (*DiskSpaceInfo, error)) {
	t.Helper()
	orig := diskSpace
	diskSpace = fn
	t.Cleanup(func() { diskSpace = orig })
}

func TestCheckDiskSpace(t *testing.T) {
	info, err := checkDiskSpace(t.TempDir())
	if err != nil {
		t.Skipf("disk stats unavailable: %v", err)
	}
	if info.Total == 0 || info.Available > info.Total || info.UsedPct < 0 || info.UsedPct > 100 {
		t.Errorf("implausible disk stats %+v", info)
	}

	if _, err := checkDiskSpace(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Errorf("expected fallback to parent directory, got %v", err)
	}
}

func TestFileSetRejectsLowDiskSpace(t *testing.T) {
	f, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}

	stubDiskSpace(t, func(string) (*DiskSpaceInfo, error) {
		return newDiskSpaceInfo(100*MinFreeBytes, MinFreeBytes/2, MinFreeBytes/2), nil
	})
	if err := f.Set(testKey, "{}"); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if _, ok, _ := f.Get(testKey); ok {
		t.Error("rejected write must not create the slot")
	}

	stubDiskSpace(t, func(string) (*DiskSpaceInfo, error) {
		return nil, errors.New("statfs failed")
	})
	if err := f.Set(testKey, "{}"); err != nil {
		t.Errorf("a failed disk query must not block writes, got %v", err)
	}
}

func TestCheckSpaceForWriteScalesWithSize(t *testing.T) {
	stubDiskSpace(t, func(string) (*DiskSpaceInfo, error) {
		return newDiskSpaceInfo(100*MinFreeBytes, 2*MinFreeBytes, 2*MinFreeBytes), nil
	})
	if err := checkSpaceForWrite("dir", 1024, zap.NewNop()); err != nil {
		t.Errorf("small write should pass, got %v", err)
	}
	if err := checkSpaceForWrite("dir", 2*MinFreeBytes, zap.NewNop()); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("expected ErrQuotaExceeded for large write, got %v", err)
	}
}

func TestNewDiskSpaceInfo(t *testing.T) {
	info := newDiskSpaceInfo(200, 50, 40)
	if info.UsedPct != 75 {
		t.Errorf("expected 75%% used, got %d", info.UsedPct)
	}
	if newDiskSpaceInfo(0, 0, 0).UsedPct != 0 {
		t.Error("expected 0% for empty disk")
	}
}
