//go:build unix

package conn

import (
	"errors"

	"golang.org/x/sys/unix"
)

func interrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}
