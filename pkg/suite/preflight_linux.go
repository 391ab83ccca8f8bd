//go:build linux

package suite

import "golang.org/x/sys/unix"

// freeSpaceMB reports the free megabytes on the filesystem holding path.
func freeSpaceMB(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * st.Bsize / (1 << 20), nil
}
