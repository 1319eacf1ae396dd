//go:build !windows

package ui

import (
	"os"
)

// openTerminalInput opens the controlling terminal so the UI keeps working
// when stdin is redirected.
func openTerminalInput() (*os.File, error) {
	return os.OpenFile("/dev/tty", os.O_RDWR, 0)
}
