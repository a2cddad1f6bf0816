//go:build darwin

package directio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const (
	AlignSize = 0
	BlockSize = 4096
	DirectIO  = true
)

// OpenFile opens the file and sets F_NOCACHE to avoid OS caching.
func OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	file, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}

	if _, err := unix.FcntlInt(file.Fd(), unix.F_NOCACHE, 1); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to set F_NOCACHE: %w", err)
	}

	return file, nil
}
