// Package msp implements the MSP V2 wire protocol: byte-by-byte frame
// parsing with CRC-8/DVB-S2 validation and the small message catalog
// the relay speaks.
package msp

import (
	"github.com/stewlg/craftrelay/internal/codec"
	"github.com/stewlg/craftrelay/internal/relayerr"
)

// Direction is the MSP V2 direction byte.
type Direction byte

const (
	DirToController   Direction = '<'
	DirFromController Direction = '>'
	DirError          Direction = '!'
)

// MaxPayloadLength is the largest payload the length field can
// represent. Checked explicitly even though the 16-bit length field
// makes exceeding it impossible in practice, so the invariant is
// stated rather than merely implied by the field width.
const MaxPayloadLength = 65535

// Frame is a fully validated, framing-valid MSP V2 message.
type Frame struct {
	Direction Direction
	ID        ID
	Payload   []byte
}

type parseState int

const (
	statePreambleOne parseState = iota
	statePreambleTwo
	stateDirection
	stateZeroFlag
	stateIDLow
	stateIDHigh
	stateLenLow
	stateLenHigh
	statePayload
	stateCRC
)

// Parser is a one-byte-at-a-time MSP V2 frame decoder. It holds no
// references to any link; each link owns exactly one Parser as its
// scratchpad for the byte stream currently in flight.
type Parser struct {
	state     parseState
	direction Direction
	id        uint16
	length    uint16
	payload   []byte
	remaining uint16
	crc       uint8
	portName  string // used only to attribute errors, not for identity
}

// NewParser returns a Parser ready to accept bytes for the named port.
func NewParser(portName string) *Parser {
	return &Parser{portName: portName}
}

// Reset clears all scratchpad state and returns the parser to
// PreambleOne, discarding any partially-accumulated frame.
func (p *Parser) Reset() {
	p.state = statePreambleOne
	p.direction = 0
	p.id = 0
	p.length = 0
	p.payload = nil
	p.remaining = 0
	p.crc = 0
}

// Feed consumes one byte. It returns (frame, nil) when a fully
// validated frame completes, (nil, nil) when more bytes are needed,
// and (nil, err) on a framing error — in every error case the parser
// has already reset itself to PreambleOne before returning.
func (p *Parser) Feed(b byte) (*Frame, error) {
	switch p.state {
	case statePreambleOne:
		if b == '$' {
			p.state = statePreambleTwo
			return nil, nil
		}
		return nil, p.resetWithError("expected preamble '$'")

	case statePreambleTwo:
		if b == 'X' {
			p.state = stateDirection
			return nil, nil
		}
		return nil, p.resetWithError("expected preamble 'X' (MSP V2 only)")

	case stateDirection:
		switch Direction(b) {
		case DirToController, DirFromController, DirError:
			p.direction = Direction(b)
			p.state = stateZeroFlag
			return nil, nil
		default:
			return nil, p.resetWithError("expected direction '<', '>' or '!'")
		}

	case stateZeroFlag:
		if b != 0x00 {
			return nil, p.resetWithError("expected zero flag byte")
		}
		p.crc = codec.CRC8DVBS2Update(0, b)
		p.state = stateIDLow
		return nil, nil

	case stateIDLow:
		p.id = uint16(b)
		p.crc = codec.CRC8DVBS2Update(p.crc, b)
		p.state = stateIDHigh
		return nil, nil

	case stateIDHigh:
		p.id |= uint16(b) << 8
		p.crc = codec.CRC8DVBS2Update(p.crc, b)
		p.state = stateLenLow
		return nil, nil

	case stateLenLow:
		p.length = uint16(b)
		p.crc = codec.CRC8DVBS2Update(p.crc, b)
		p.state = stateLenHigh
		return nil, nil

	case stateLenHigh:
		p.length |= uint16(b) << 8
		p.crc = codec.CRC8DVBS2Update(p.crc, b)
		if p.length > MaxPayloadLength {
			return nil, p.resetWithError("payload length exceeds MaxPayloadLength")
		}
		p.remaining = p.length
		if p.remaining == 0 {
			p.payload = nil
			p.state = stateCRC
		} else {
			p.payload = make([]byte, 0, p.length)
			p.state = statePayload
		}
		return nil, nil

	case statePayload:
		p.payload = append(p.payload, b)
		p.crc = codec.CRC8DVBS2Update(p.crc, b)
		p.remaining--
		if p.remaining == 0 {
			p.state = stateCRC
		}
		return nil, nil

	case stateCRC:
		expected := p.crc
		direction, id, payload := p.direction, p.id, p.payload
		p.Reset()

		if b != expected {
			return nil, relayerr.Framing(p.portName, "CRC mismatch", nil)
		}
		if direction == DirError {
			return nil, relayerr.FramingDirectionError(p.portName, id)
		}
		return &Frame{Direction: direction, ID: ID(id), Payload: payload}, nil

	default:
		// Unreachable: every state above is handled explicitly.
		p.Reset()
		return nil, relayerr.Framing(p.portName, "parser in unknown state", nil)
	}
}

func (p *Parser) resetWithError(msg string) error {
	err := relayerr.Framing(p.portName, msg, nil)
	p.Reset()
	return err
}
