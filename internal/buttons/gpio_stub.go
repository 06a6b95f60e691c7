//go:build !linux || (!arm && !arm64)

package buttons

import (
	"fmt"
	"io"
	"time"
)

// Stub implementation for non-Linux and/or non-ARM platforms.
func openInput(pin int, debounce time.Duration, onPress func(ts time.Duration)) (io.Closer, error) {
	return nil, fmt.Errorf("gpio unsupported on this platform")
}

var openInputFn = openInput
