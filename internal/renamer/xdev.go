package renamer

import (
	"errors"
	"syscall"
)

// isCrossDevice reports whether err is the cross-device-link error rename
// returns when source and destination span different filesystems.
func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}
