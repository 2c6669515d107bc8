//go:build !unix

package pipe

import "errors"

// NewOS is not available on this platform.
func NewOS() (Reader, Writer, error) {
	return nil, nil, errors.New("pipe: OS pipes are not supported on this platform")
}
