// Package wire implements the named binary envelope used to ship encoded
// frames over message-oriented transports.
//
// A message is laid out as
//
//	[name bytes][payload bytes][int32 little-endian len(name)]
//
// There is no delimiter between name and payload; the trailing length is
// authoritative. Names may carry one level of hierarchy ("folder/leaf")
// which Place uses to reconstruct the message on disk.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// TrailerSize is the size of the name length trailer in bytes.
const TrailerSize = 4

// ErrMalformedMessage is returned when the length trailer is missing or
// inconsistent with the message size.
var ErrMalformedMessage = errors.New("malformed wire message")

// ErrInvalidName is returned by Encode for names that cannot be represented.
var ErrInvalidName = errors.New("invalid message name")

// Message is a decoded wire message.
type Message struct {
	Name    string
	Payload []byte
}

// Encode lays out name, payload and the name length trailer in one buffer.
func Encode(name string, payload []byte) []byte {
	out := make([]byte, len(name)+len(payload)+TrailerSize)
	n := copy(out, name)
	n += copy(out[n:], payload)
	binary.LittleEndian.PutUint32(out[n:], uint32(int32(len(name))))
	return out
}

// EncodeMessage encodes m, validating the name first.
func EncodeMessage(m Message) ([]byte, error) {
	if !utf8.ValidString(m.Name) {
		return nil, fmt.Errorf("%w: not valid UTF-8", ErrInvalidName)
	}
	if len(m.Name) > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidName, len(m.Name))
	}
	return Encode(m.Name, m.Payload), nil
}

// Decode splits data into name and payload. The returned payload does not
// alias data.
func Decode(data []byte) (Message, error) {
	if len(data) < TrailerSize {
		return Message{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedMessage, len(data), TrailerSize)
	}

	body := len(data) - TrailerSize
	nameLen := int64(int32(binary.LittleEndian.Uint32(data[body:])))
	if nameLen < 0 || nameLen > int64(body) {
		return Message{}, fmt.Errorf("%w: name length %d, body %d", ErrMalformedMessage, nameLen, body)
	}

	payload := make([]byte, body-int(nameLen))
	copy(payload, data[nameLen:body])

	return Message{
		Name:    string(data[:nameLen]),
		Payload: payload,
	}, nil
}
