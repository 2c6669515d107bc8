// Package packet defines the frames that nodes exchange over ports.
package packet

import (
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the size of the fixed frame header: src, dst, type and
	// length, one byte each.
	HeaderSize = 4

	// PayloadMax is the largest payload a single packet can carry.
	PayloadMax = 100

	// FrameMax is the size of the largest frame on the wire.
	FrameMax = HeaderSize + PayloadMax

	// BroadcastID is the destination that every host accepts.
	BroadcastID = 100
)

// Type tags what a packet carries.
type Type uint8

// Packet types.
const (
	TypePingRequest Type = iota
	TypePingReply
	TypeFileUploadStart
	TypeFileUploadEnd
	TypeFileUploadContinue
	TypeFileDownloadRequest
	TypeData
)

func (t Type) String() string {
	switch t {
	case TypePingRequest:
		return "PingRequest"
	case TypePingReply:
		return "PingReply"
	case TypeFileUploadStart:
		return "FileUploadStart"
	case TypeFileUploadEnd:
		return "FileUploadEnd"
	case TypeFileUploadContinue:
		return "FileUploadContinue"
	case TypeFileDownloadRequest:
		return "FileDownloadRequest"
	case TypeData:
		return "Data"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

var (
	// ErrProtocol is wrapped by every framing error.
	ErrProtocol = errors.New("protocol error")

	// ErrShortFrame means a frame is shorter than its header.
	ErrShortFrame = fmt.Errorf("%w: frame shorter than header", ErrProtocol)

	// ErrPayloadTooLong means a length field or payload exceeds PayloadMax.
	ErrPayloadTooLong = fmt.Errorf(
		"%w: payload longer than %d bytes", ErrProtocol, PayloadMax)

	// ErrFrameLength means the frame size disagrees with its length field.
	ErrFrameLength = fmt.Errorf(
		"%w: frame size does not match length field", ErrProtocol)
)

// A Packet is the unit of data carried between nodes.
type Packet struct {
	Src     uint8
	Dst     uint8
	Type    Type
	Payload []byte
}

// Length returns the payload length as carried in the header.
func (p *Packet) Length() int {
	return len(p.Payload)
}

// Clone returns a deep copy of the packet.
func (p *Packet) Clone() *Packet {
	c := *p
	c.Payload = append([]byte(nil), p.Payload...)

	return &c
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s %d->%d len=%d", p.Type, p.Src, p.Dst, len(p.Payload))
}

// Encode returns the wire form of the packet.
func (p *Packet) Encode() ([]byte, error) {
	if len(p.Payload) > PayloadMax {
		return nil, ErrPayloadTooLong
	}

	frame := make([]byte, HeaderSize+len(p.Payload))
	frame[0] = p.Src
	frame[1] = p.Dst
	frame[2] = byte(p.Type)
	frame[3] = byte(len(p.Payload))
	copy(frame[HeaderSize:], p.Payload)

	return frame, nil
}

// Decode parses exactly one frame.
func Decode(frame []byte) (*Packet, error) {
	if len(frame) < HeaderSize {
		return nil, ErrShortFrame
	}

	length := int(frame[3])
	if length > PayloadMax {
		return nil, ErrPayloadTooLong
	}

	if len(frame) != HeaderSize+length {
		return nil, ErrFrameLength
	}

	p := &Packet{
		Src:     frame[0],
		Dst:     frame[1],
		Type:    Type(frame[2]),
		Payload: make([]byte, length),
	}
	copy(p.Payload, frame[HeaderSize:])

	return p, nil
}

// FrameLen reports the size of the frame at the head of buf. It returns 0 if
// the header is not complete yet. The returned size may exceed len(buf).
func FrameLen(buf []byte) (int, error) {
	if len(buf) < HeaderSize {
		return 0, nil
	}

	length := int(buf[3])
	if length > PayloadMax {
		return 0, ErrPayloadTooLong
	}

	return HeaderSize + length, nil
}

// ReadFrame reads one complete frame from a byte stream.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	size, err := FrameLen(header)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, size)
	copy(frame, header)

	if _, err := io.ReadFull(r, frame[HeaderSize:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}

		return nil, err
	}

	return frame, nil
}
