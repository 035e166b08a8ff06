package protocol

// PacketType is the single-byte wire tag identifying a frame's purpose.
type PacketType byte

const (
	TypeLogin       PacketType = 0x00 // Authentication request, JSON payload
	TypeCommand     PacketType = 0x01 // Text command to execute
	TypeAcknowledge PacketType = 0x02 // Bare acknowledgment of a request
	TypeResponse    PacketType = 0x03 // Command output
	TypeEvent       PacketType = 0x04 // Unsolicited server event, JSON payload
	TypePing        PacketType = 0x05 // Keepalive probe
	TypePong        PacketType = 0x06 // Keepalive reply
	TypeError       PacketType = 0x07 // Error report, JSON payload

	// TypeUnknown is never written to the wire; it marks a frame whose
	// tag byte fell outside the defined range.
	TypeUnknown PacketType = 0xFF
)

// HeaderSize is the fixed portion of every frame body:
// 1 byte type + 4 bytes sequence + 4 bytes checksum.
const HeaderSize = 1 + 4 + 4

// Frame size bounds. Control frames carry no payload, so their maximum
// equals the header size. Data frames are capped to keep a single
// command or response bounded on the wire.
const (
	MinFrameSize        = HeaderSize
	ControlMaxFrameSize = HeaderSize
	DataMaxFrameSize    = 4096
)

// MaxPayloadSize is the largest payload a data-carrying frame may hold.
const MaxPayloadSize = DataMaxFrameSize - HeaderSize

var typeNames = [...]string{
	TypeLogin:       "login",
	TypeCommand:     "command",
	TypeAcknowledge: "acknowledge",
	TypeResponse:    "response",
	TypeEvent:       "event",
	TypePing:        "ping",
	TypePong:        "pong",
	TypeError:       "error",
}

var typeMaxSizes = [...]int{
	TypeLogin:       DataMaxFrameSize,
	TypeCommand:     DataMaxFrameSize,
	TypeAcknowledge: ControlMaxFrameSize,
	TypeResponse:    DataMaxFrameSize,
	TypeEvent:       DataMaxFrameSize,
	TypePing:        ControlMaxFrameSize,
	TypePong:        ControlMaxFrameSize,
	TypeError:       DataMaxFrameSize,
}

// Defined reports whether t is one of the known wire tags.
func (t PacketType) Defined() bool {
	return t <= TypeError
}

// String returns a human-readable name for the packet type.
func (t PacketType) String() string {
	if t.Defined() {
		return typeNames[t]
	}
	return "unknown"
}

// MinSize returns the smallest legal frame size for this type.
func (t PacketType) MinSize() int {
	return MinFrameSize
}

// MaxSize returns the largest legal frame size for this type.
func (t PacketType) MaxSize() int {
	if t.Defined() {
		return typeMaxSizes[t]
	}
	return 0
}

// IsControl reports whether the type carries no payload.
func (t PacketType) IsControl() bool {
	return t.Defined() && typeMaxSizes[t] == ControlMaxFrameSize
}

// Packet is a decoded wire frame. It is immutable once decoded; the
// Valid flag reflects the checksum verification so callers can choose
// to log and drop a corrupted frame instead of aborting the read loop.
type Packet struct {
	Type     PacketType
	Sequence uint32
	Payload  []byte
	Checksum uint32
	Valid    bool
}
