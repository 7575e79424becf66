package devicelink

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenSerial opens the controller's serial port with the given options and
// applies the read timeout, so a silent device surfaces as a TransportError
// instead of blocking forever.
func OpenSerial(path string, opts PortOptions) (SerialPorter, error) {
	opts, err := opts.Normalise()
	if err != nil {
		return nil, err
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, &TransportError{Op: "open", Err: fmt.Errorf("%s: %w", path, err)}
	}
	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		port.Close()
		return nil, &TransportError{Op: "open", Err: fmt.Errorf("set read timeout on %s: %w", path, err)}
	}
	return port, nil
}

// ListPorts returns the serial ports visible to the operating system.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
