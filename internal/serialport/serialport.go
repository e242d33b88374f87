// Package serialport adapts go.bug.st/serial to the minimal
// io.ReadWriteCloser surface the relay's links need, plus port
// discovery for the "auto" configuration mode.
package serialport

import (
	"time"

	"go.bug.st/serial"

	"github.com/stewlg/craftrelay/internal/relayerr"
)

// Port wraps a serial.Port. It exists mainly so the rest of the relay
// depends on this package's narrow surface rather than go.bug.st/serial
// directly.
type Port struct {
	name string
	port serial.Port
}

// Open opens name at baud with 8N1 framing and a short read timeout so
// the link's one-byte-at-a-time poller never blocks indefinitely.
func Open(name string, baud int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := serial.Open(name, mode)
	if err != nil {
		return nil, relayerr.IO(name, "failed to open serial port", err)
	}
	if err := sp.SetReadTimeout(50 * time.Millisecond); err != nil {
		sp.Close()
		return nil, relayerr.IO(name, "failed to set read timeout", err)
	}
	return &Port{name: name, port: sp}, nil
}

// Name returns the port name Open was called with.
func (p *Port) Name() string { return p.name }

func (p *Port) Read(buf []byte) (int, error) {
	n, err := p.port.Read(buf)
	if err != nil {
		return n, relayerr.IO(p.name, "read failed", err)
	}
	return n, nil
}

func (p *Port) Write(buf []byte) (int, error) {
	n, err := p.port.Write(buf)
	if err != nil {
		return n, relayerr.IO(p.name, "write failed", err)
	}
	return n, nil
}

func (p *Port) Close() error {
	if err := p.port.Close(); err != nil {
		return relayerr.IO(p.name, "close failed", err)
	}
	return nil
}

// ListPorts enumerates available serial devices, used to expand the
// "auto" port configuration value.
func ListPorts() ([]string, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, relayerr.Configuration("failed to enumerate serial ports", err)
	}
	if len(names) == 0 {
		return nil, relayerr.Configuration("no serial ports found", nil)
	}
	return names, nil
}
