//go:build windows

package main

import "os"

var exportSignals []os.Signal
