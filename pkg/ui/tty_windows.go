//go:build windows

package ui

import (
	"os"
)

func openTerminalInput() (*os.File, error) {
	return os.OpenFile("CONIN$", os.O_RDWR, 0)
}
