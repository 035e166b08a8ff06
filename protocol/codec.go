package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Frame body layout: [1 byte type][4 bytes sequence][4 bytes checksum][payload]
// On a stream transport each frame body is preceded by a 4-byte
// big-endian length prefix (see WriteFrame/ReadFrame). The checksum is
// the reflected CRC-32 (IEEE polynomial) over type + sequence + payload,
// so both sides cover the same byte range.

var (
	ErrFrameTooShort     = errors.New("protocol: frame too short")
	ErrPayloadTooLarge   = errors.New("protocol: payload too large")
	ErrUnknownPacketType = errors.New("protocol: unknown packet type")
)

const (
	typeOffset     = 0
	sequenceOffset = 1
	checksumOffset = 5
	payloadOffset  = HeaderSize
)

// Checksum computes the frame checksum over the type tag, the
// big-endian sequence number and the payload, in that order.
func Checksum(typ PacketType, sequence uint32, payload []byte) uint32 {
	var head [5]byte
	head[0] = byte(typ)
	binary.BigEndian.PutUint32(head[1:], sequence)
	sum := crc32.Update(0, crc32.IEEETable, head[:])
	return crc32.Update(sum, crc32.IEEETable, payload)
}

// Encode builds a frame body for the given type, sequence and payload.
func Encode(typ PacketType, sequence uint32, payload []byte) ([]byte, error) {
	if !typ.Defined() {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownPacketType, byte(typ))
	}
	size := HeaderSize + len(payload)
	if size > typ.MaxSize() {
		return nil, fmt.Errorf("%w: %s frame is %d bytes, limit %d",
			ErrPayloadTooLarge, typ, size, typ.MaxSize())
	}

	frame := make([]byte, size)
	frame[typeOffset] = byte(typ)
	binary.BigEndian.PutUint32(frame[sequenceOffset:], sequence)
	binary.BigEndian.PutUint32(frame[checksumOffset:], Checksum(typ, sequence, payload))
	copy(frame[payloadOffset:], payload)
	return frame, nil
}

// Decode parses a frame body. Structural violations (short frame,
// unknown type, oversized frame) are returned as errors; a checksum
// mismatch is not an error, the returned Packet has Valid=false so
// the read loop can log and drop it.
func Decode(frame []byte) (Packet, error) {
	if len(frame) < MinFrameSize {
		return Packet{}, fmt.Errorf("%w: %d bytes, need at least %d",
			ErrFrameTooShort, len(frame), MinFrameSize)
	}
	typ := PacketType(frame[typeOffset])
	if !typ.Defined() {
		return Packet{Type: TypeUnknown}, fmt.Errorf("%w: 0x%02x", ErrUnknownPacketType, frame[typeOffset])
	}
	if len(frame) > typ.MaxSize() {
		return Packet{}, fmt.Errorf("%w: %s frame is %d bytes, limit %d",
			ErrPayloadTooLarge, typ, len(frame), typ.MaxSize())
	}

	sequence := binary.BigEndian.Uint32(frame[sequenceOffset:])
	embedded := binary.BigEndian.Uint32(frame[checksumOffset:])

	payload := make([]byte, len(frame)-HeaderSize)
	copy(payload, frame[payloadOffset:])

	return Packet{
		Type:     typ,
		Sequence: sequence,
		Payload:  payload,
		Checksum: embedded,
		Valid:    Checksum(typ, sequence, payload) == embedded,
	}, nil
}

// WriteFrame writes a length-prefixed frame body to the writer using
// buffer pooling so header and body reach the transport in one write.
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) < MinFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}
	if len(frame) > DataMaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(frame))
	}

	buf := GetBufferWithSize(4 + len(frame))
	defer PutBuffer(buf)

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(frame)))
	buf.Write(prefix[:])
	buf.Write(frame)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame body from the reader.
// The length prefix is validated against the global frame bounds
// before any allocation, so a corrupted prefix cannot trigger an
// excessive read.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length < MinFrameSize {
		return nil, fmt.Errorf("%w: length prefix %d", ErrFrameTooShort, length)
	}
	if length > DataMaxFrameSize {
		return nil, fmt.Errorf("%w: length prefix %d", ErrPayloadTooLarge, length)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return frame, nil
}
