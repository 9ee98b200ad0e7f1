//go:build !linux

package source

import (
	"fmt"

	severrors "sever/internal/errors"
	"sever/util"
)

// NewPlatformSessionSource is unavailable on this platform; run with
// safe mode instead.
func NewPlatformSessionSource(_ *util.Logger) (SessionSource, error) {
	return nil, fmt.Errorf("session source: %w", severrors.ErrNotSupported)
}

// NewPlatformClientSource is unavailable on this platform; run with
// safe mode instead.
func NewPlatformClientSource(_ []string, _ *util.Logger) (ClientProcessSource, error) {
	return nil, fmt.Errorf("client source: %w", severrors.ErrNotSupported)
}
