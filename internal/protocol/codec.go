package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/zlx-network/swarmd/internal/domain"
)

// OpcodeSize is the fixed length of the opcode prefix.
const OpcodeSize = 2

// Encode frames payload behind op. A nil payload yields the bare opcode.
func Encode(op Opcode, payload any) ([]byte, error) {
	hdr := op.Bytes()
	if payload == nil {
		return hdr[:], nil
	}

	var body []byte
	switch p := payload.(type) {
	case json.RawMessage:
		if len(p) == 0 {
			return hdr[:], nil
		}
		if !json.Valid(p) {
			return nil, fmt.Errorf("encode %s: %w", op, domain.ErrMalformedPayload)
		}
		body = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", op, err)
		}
		body = b
	}

	frame := make([]byte, 0, OpcodeSize+len(body))
	frame = append(frame, hdr[:]...)
	return append(frame, body...), nil
}

// MustEncode is Encode for payloads that are known to marshal.
func MustEncode(op Opcode, payload any) []byte {
	frame, err := Encode(op, payload)
	if err != nil {
		panic(err)
	}
	return frame
}

// Decode splits frame into its opcode and raw payload. The payload is nil
// when the frame carries only an opcode. Invalid JSON is rejected whole.
func Decode(frame []byte) (Opcode, json.RawMessage, error) {
	if len(frame) < OpcodeSize {
		return 0, nil, domain.ErrShortFrame
	}
	op := Opcode(binary.BigEndian.Uint16(frame[:OpcodeSize]))
	if len(frame) == OpcodeSize {
		return op, nil, nil
	}

	body := frame[OpcodeSize:]
	if !json.Valid(body) {
		return op, nil, fmt.Errorf("decode %s: %w", op, domain.ErrMalformedPayload)
	}
	payload := make(json.RawMessage, len(body))
	copy(payload, body)
	return op, payload, nil
}

// DecodeInto decodes frame and unmarshals its payload into v. A frame
// without payload leaves v untouched.
func DecodeInto(frame []byte, v any) (Opcode, error) {
	op, payload, err := Decode(frame)
	if err != nil {
		return op, err
	}
	if payload == nil {
		return op, nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return op, fmt.Errorf("decode %s: %w: %v", op, domain.ErrMalformedPayload, err)
	}
	return op, nil
}
