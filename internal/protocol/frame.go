package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WebSocket opcodes used by the push channel.
const (
	OpText  byte = 0x1
	OpClose byte = 0x8
	OpPing  byte = 0x9
	OpPong  byte = 0xA
)

// MaxFramePayload caps inbound frame payloads. The push channel is
// unidirectional; clients have no business sending large frames.
const MaxFramePayload = 1 << 20

// wsMagicGUID is the fixed GUID from RFC 6455 used to derive the
// Sec-WebSocket-Accept token.
const wsMagicGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// ErrFrameTooLarge is returned for inbound frames above MaxFramePayload.
var ErrFrameTooLarge = errors.New("frame payload too large")

// AcceptKey computes the Sec-WebSocket-Accept token for a client key:
// base64(SHA-1(key + magic GUID)).
func AcceptKey(clientKey string) string {
	h := sha1.Sum([]byte(clientKey + wsMagicGUID))
	return base64.StdEncoding.EncodeToString(h[:])
}

// Frame is one decoded WebSocket frame. The mask, if present, has already
// been stripped from Payload.
type Frame struct {
	Opcode  byte
	Payload []byte
}

// EncodeFrame builds a single unmasked server-to-client frame with FIN set.
// Length encoding: 1 byte below 126, 2-byte extended up to 65535, 8-byte
// extended beyond.
func EncodeFrame(opcode byte, payload []byte) []byte {
	n := len(payload)
	var header []byte
	switch {
	case n < 126:
		header = []byte{0x80 | opcode, byte(n)}
	case n <= 65535:
		header = []byte{0x80 | opcode, 126, 0, 0}
		binary.BigEndian.PutUint16(header[2:], uint16(n))
	default:
		header = []byte{0x80 | opcode, 127, 0, 0, 0, 0, 0, 0, 0, 0}
		binary.BigEndian.PutUint64(header[2:], uint64(n))
	}
	return append(header, payload...)
}

// EncodeTextFrame builds an unmasked text frame.
func EncodeTextFrame(payload []byte) []byte {
	return EncodeFrame(OpText, payload)
}

// ReadFrame reads one frame from r. Client-to-server frames must be masked
// per RFC 6455; the mask is applied and discarded.
func ReadFrame(r io.Reader) (*Frame, error) {
	var head [2]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	opcode := head[0] & 0x0F
	masked := head[1]&0x80 != 0
	length := uint64(head[1] & 0x7F)

	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		length = binary.BigEndian.Uint64(ext[:])
	}
	if length > MaxFramePayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	var mask [4]byte
	if masked {
		if _, err := io.ReadFull(r, mask[:]); err != nil {
			return nil, err
		}
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	if masked {
		for i := range payload {
			payload[i] ^= mask[i%4]
		}
	}
	return &Frame{Opcode: opcode, Payload: payload}, nil
}
