//go:build !linux

package gps

import (
	"fmt"
	"os"
)

func openSerial(path string, _ int) (*os.File, error) {
	return nil, fmt.Errorf("gps: serial device %s not supported on this platform", path)
}
