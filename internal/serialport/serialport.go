// Package serialport abstracts the OS serial interface so monitor sessions
// can be driven by real hardware or by fakes in tests.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.bug.st/serial"
)

// Port is the device surface a monitor session drives. With a read timeout
// configured, Read returns (0, nil) when no data arrived in time.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetBaudRate(rate int) error
	Close() error
}

// Opener opens serial ports
type Opener interface {
	Open(name string, baudRate int) (Port, error)
}

// SystemOpener implements Opener using the host serial driver. Ports are
// opened with 8N1 framing and a bounded read timeout so read loops poll
// instead of blocking indefinitely.
type SystemOpener struct {
	ReadTimeout time.Duration
}

// NewSystemOpener creates a SystemOpener with the given read timeout
func NewSystemOpener(readTimeout time.Duration) *SystemOpener {
	return &SystemOpener{ReadTimeout: readTimeout}
}

// Open opens the named device at the requested baud rate
func (o *SystemOpener) Open(name string, baudRate int) (Port, error) {
	port, err := serial.Open(name, mode(baudRate))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}

	if err := port.SetReadTimeout(o.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("setting read timeout on %s: %w", name, err)
	}

	return &systemPort{port: port}, nil
}

func mode(baudRate int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// systemPort wraps a driver handle to implement Port
type systemPort struct {
	port serial.Port
}

func (p *systemPort) Read(buf []byte) (int, error) {
	return p.port.Read(buf)
}

func (p *systemPort) Write(buf []byte) (int, error) {
	return p.port.Write(buf)
}

// SetBaudRate reconfigures the line speed on the open handle. Framing stays
// 8N1; the connection is not reopened.
func (p *systemPort) SetBaudRate(rate int) error {
	return p.port.SetMode(mode(rate))
}

func (p *systemPort) Close() error {
	return p.port.Close()
}

// List enumerates the serial devices currently visible to the OS. This is a
// driver query, not a registry lookup.
func List() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerating serial ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}

// SanitizeName converts a port name into a form usable in file names,
// e.g. /dev/ttyUSB0 -> _dev_ttyUSB0.
func SanitizeName(port string) string {
	r := strings.NewReplacer("/", "_", "\\", "_")
	return r.Replace(port)
}

// IsFatal reports whether a read error means the device is gone and the
// session's read loop cannot continue. Anything else is treated as
// transient.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortClosed, serial.PortNotFound, serial.InvalidSerialPort, serial.PermissionDenied:
			return true
		}
	}

	return errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, syscall.ENXIO) ||
		errors.Is(err, syscall.ENODEV) ||
		errors.Is(err, syscall.EBADF)
}
