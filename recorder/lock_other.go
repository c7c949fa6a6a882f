//go:build !unix

package recorder

import (
	"errors"
	"os"
)

// ErrLogLocked means another process holds the result log
var ErrLogLocked = errors.New("result log is locked by another process")

// Advisory locking is only implemented on unix
func lockFile(_ *os.File) error { return nil }

func unlockFile(_ *os.File) error { return nil }
