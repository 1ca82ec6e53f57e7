package dmx

import (
	"fmt"

	"github.com/pkg/term"
)

// Enttec DMX USB Pro "Output Only Send DMX Packet" framing.
const (
	frameStart       = 0x7E
	frameEnd         = 0xE7
	labelSendDmx     = 6
	dmxStartCodeSlot = 0x00
)

// SerialTransport sends a full universe frame over a serial link using
// Enttec-DMX-USB-Pro-style packet framing, grounded on the teacher's
// pkg/term-based serial_port_open/serial_port_write idiom (src/serial_port.go),
// generalized from the teacher's AX.25 TNC link to a DMX interface.
type SerialTransport struct {
	port *term.Term
}

// OpenSerialTransport opens device at baud and returns a ready
// SerialTransport. Per the teacher's serial_port_open, an unsupported baud
// falls back to a safe default rather than failing.
func OpenSerialTransport(device string, baud int) (*SerialTransport, error) {
	t, err := term.Open(device, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", device, err)
	}

	switch baud {
	case 0:
	case 9600, 19200, 38400, 57600, 115200, 250000:
		if err := t.SetSpeed(baud); err != nil {
			t.Close()
			return nil, fmt.Errorf("setting speed %d on %s: %w", baud, device, err)
		}
	default:
		if err := t.SetSpeed(57600); err != nil {
			t.Close()
			return nil, fmt.Errorf("setting fallback speed on %s: %w", device, err)
		}
	}

	return &SerialTransport{port: t}, nil
}

// buildFrame assembles one Enttec-DMX-USB-Pro-style "Output Only Send DMX
// Packet" frame around data. Split out from Send so the framing itself is
// testable without a real serial port.
func buildFrame(data [UniverseSize]byte) []byte {
	frame := make([]byte, 0, UniverseSize+5)
	payloadLen := UniverseSize + 1 // + start code

	frame = append(frame, frameStart, labelSendDmx,
		byte(payloadLen&0xFF), byte((payloadLen>>8)&0xFF),
		dmxStartCodeSlot)
	frame = append(frame, data[:]...)
	frame = append(frame, frameEnd)
	return frame
}

// Send writes one full-universe DMX packet. universe is ignored, since Enttec-DMX-USB-Pro-style interfaces address a single
// universe per serial device.
func (s *SerialTransport) Send(universe int, data [UniverseSize]byte) error {
	frame := buildFrame(data)

	n, err := s.port.Write(frame)
	if err != nil {
		return fmt.Errorf("writing dmx frame: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(frame))
	}
	return nil
}

// Close releases the underlying serial port.
func (s *SerialTransport) Close() error {
	return s.port.Close()
}
