package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// NewRealSerialMux opens the bridge at path. Bytes buffered before the open
// are discarded so the first line read is a whole one.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset serial port %s: %w", path, err)
	}
	logf("opened %s at %d baud", path, mode.BaudRate)
	return NewSerialMux[serial.Port](port), nil
}

// ListPorts returns the serial ports present on the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
