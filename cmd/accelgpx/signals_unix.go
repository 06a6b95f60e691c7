//go:build !windows

package main

import (
	"os"
	"syscall"
)

// exportSignals request an export without stopping the session.
var exportSignals = []os.Signal{syscall.SIGUSR1}
