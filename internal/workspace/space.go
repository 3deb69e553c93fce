package workspace

import (
	"fmt"

	"golang.org/x/sys/unix"

	"ntpidump/internal/pipeline"
)

// CheckFreeSpace verifies that path's filesystem has at least required
// bytes available. Extraction knows its decompressed total up front, so
// running out of disk mid-run is a preventable failure.
func CheckFreeSpace(path string, required int64) error {
	if required <= 0 {
		return nil
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return pipeline.Wrap(pipeline.ErrIO, "workspace", "statfs", path, err)
	}
	available := int64(stat.Bavail) * stat.Bsize
	if available < required {
		return pipeline.Wrap(pipeline.ErrIO, "workspace", "free space",
			fmt.Sprintf("%s has %d bytes available, need %d", path, available, required), nil)
	}
	return nil
}
