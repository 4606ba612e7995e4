package transport

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Port is the serial device surface a Link drives. Ports opened by
// go.bug.st/serial satisfy it directly; tests substitute in-memory
// implementations.
type Port interface {
	io.ReadWriteCloser

	// ResetInputBuffer discards bytes the driver has received but the
	// link has not yet read.
	ResetInputBuffer() error

	// ResetOutputBuffer discards bytes written but not yet transmitted.
	ResetOutputBuffer() error
}

// PortFactory opens the device a Link runs on.
type PortFactory func(path string, baudRate int) (Port, error)

// OpenSerialPort opens a real serial device in 8N1 mode. It is the
// default PortFactory.
func OpenSerialPort(path string, baudRate int) (Port, error) {
	port, err := serial.Open(path, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return port, nil
}
