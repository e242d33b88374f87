// Package fakeport provides an in-memory serial port double for
// deterministic tests: a pair of byte queues a test can feed and drain
// without any real hardware.
package fakeport

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// Port is an in-memory stand-in for a real serial connection. Reads
// drain from an inbound buffer a test fills with Feed; writes
// accumulate into an outbound buffer a test inspects with Written.
// Safe for concurrent Read/Write/Feed/Written calls.
type Port struct {
	mu       sync.Mutex
	cond     *sync.Cond
	inbound  bytes.Buffer
	outbound bytes.Buffer
	closed   bool
}

// New returns an open Port with empty buffers.
func New() *Port {
	p := &Port{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Feed appends bytes to the inbound buffer, as if they had just arrived
// over the wire, and wakes any blocked Read.
func (p *Port) Feed(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inbound.Write(data)
	p.cond.Broadcast()
}

// Read blocks until at least one byte is available, the port is
// closed, or the buffer already has data, then behaves like
// io.Reader.Read.
func (p *Port) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.inbound.Len() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.inbound.Len() == 0 && p.closed {
		return 0, io.EOF
	}
	return p.inbound.Read(buf)
}

// Write appends to the outbound buffer.
func (p *Port) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("fakeport: write on closed port")
	}
	return p.outbound.Write(buf)
}

// Written returns a snapshot of everything written so far.
func (p *Port) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, p.outbound.Len())
	copy(out, p.outbound.Bytes())
	return out
}

// ResetWritten clears the outbound buffer, for tests that assert
// output poll by poll.
func (p *Port) ResetWritten() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outbound.Reset()
}

// Close marks the port closed and wakes any blocked Read with io.EOF.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}
