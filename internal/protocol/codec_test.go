package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/zlx-network/swarmd/internal/domain"
)

var allOpcodes = []Opcode{
	JoinSwarm, LocalPeerOffer, LocalPeerAnswer, LocalICECandidate,
	RemotePeer, RemotePeerOffer, RemotePeerAnswer, ICECandidate,
	Identity, SwarmData, PeerDisconnected,
}

// ─── Opcodes ────────────────────────────────────────────────────────────────

func TestOpcode_WireValues(t *testing.T) {
	tests := []struct {
		op   Opcode
		want [2]byte
	}{
		{JoinSwarm, [2]byte{0x00, 0x01}},
		{LocalPeerOffer, [2]byte{0x00, 0x02}},
		{LocalPeerAnswer, [2]byte{0x00, 0x03}},
		{LocalICECandidate, [2]byte{0x00, 0x04}},
		{RemotePeer, [2]byte{0x01, 0x01}},
		{RemotePeerOffer, [2]byte{0x01, 0x02}},
		{RemotePeerAnswer, [2]byte{0x01, 0x03}},
		{ICECandidate, [2]byte{0x01, 0x04}},
		{Identity, [2]byte{0x01, 0x05}},
		{SwarmData, [2]byte{0x01, 0x06}},
		{PeerDisconnected, [2]byte{0x01, 0x07}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			if got := tt.op.Bytes(); got != tt.want {
				t.Errorf("Bytes() = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestOpcode_DirectionsDisjoint(t *testing.T) {
	for _, op := range allOpcodes {
		if op.IsRequest() == op.IsResponse() {
			t.Errorf("%s: IsRequest=%v IsResponse=%v, want exactly one", op, op.IsRequest(), op.IsResponse())
		}
	}
	if Opcode(0x0200).Known() {
		t.Error("0x0200 should not be a known opcode")
	}
	if got := Opcode(0x0999).String(); got != "0x0999" {
		t.Errorf("String() = %q, want 0x0999", got)
	}
}

// ─── Encode / Decode ────────────────────────────────────────────────────────

func TestEncode_NoPayload(t *testing.T) {
	frame, err := Encode(Identity, nil)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if !bytes.Equal(frame, []byte{0x01, 0x05}) {
		t.Errorf("frame = %x, want 0105", frame)
	}
}

func TestEncode_WithPayload(t *testing.T) {
	frame, err := Encode(Identity, IdentityMessage{ID: "abc"})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	want := append([]byte{0x01, 0x05}, []byte(`{"id":"abc"}`)...)
	if !bytes.Equal(frame, want) {
		t.Errorf("frame = %q, want %q", frame, want)
	}
}

func TestRoundTrip_AllOpcodes(t *testing.T) {
	payloads := []any{
		nil,
		map[string]any{},
		map[string]any{"filePath": "/v.mp4"},
		[]any{1.0, "two", true},
		"plain string",
		42.0,
	}
	for _, op := range allOpcodes {
		for _, p := range payloads {
			frame, err := Encode(op, p)
			if err != nil {
				t.Fatalf("Encode(%s, %v) error: %v", op, p, err)
			}
			gotOp, raw, err := Decode(frame)
			if err != nil {
				t.Fatalf("Decode(%s) error: %v", op, err)
			}
			if gotOp != op {
				t.Errorf("opcode = %s, want %s", gotOp, op)
			}
			if p == nil {
				if raw != nil {
					t.Errorf("%s: payload = %s, want absent", op, raw)
				}
				continue
			}
			var got any
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			wantJSON, _ := json.Marshal(p)
			gotJSON, _ := json.Marshal(got)
			if !bytes.Equal(wantJSON, gotJSON) {
				t.Errorf("%s: payload = %s, want %s", op, gotJSON, wantJSON)
			}
		}
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"empty", nil, domain.ErrShortFrame},
		{"one byte", []byte{0x00}, domain.ErrShortFrame},
		{"garbage payload", append([]byte{0x00, 0x01}, []byte("{not json")...), domain.ErrMalformedPayload},
		{"truncated payload", append([]byte{0x00, 0x01}, []byte(`{"filePath":`)...), domain.ErrMalformedPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, payload, err := Decode(tt.frame)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if payload != nil {
				t.Errorf("payload = %s, want nil on error", payload)
			}
		})
	}
}

func TestEncode_InvalidRawMessage(t *testing.T) {
	_, err := Encode(SwarmData, json.RawMessage("{oops"))
	if !errors.Is(err, domain.ErrMalformedPayload) {
		t.Errorf("err = %v, want ErrMalformedPayload", err)
	}
}

// ─── ParseRequest ───────────────────────────────────────────────────────────

func TestParseRequest(t *testing.T) {
	frame := MustEncode(LocalPeerOffer, map[string]any{
		"to":      "peer-a",
		"swarmId": "/v.mp4",
		"sdp":     map[string]string{"type": "offer", "sdp": "v=0"},
	})
	req, err := ParseRequest(frame)
	if err != nil {
		t.Fatalf("ParseRequest() error: %v", err)
	}
	offer, ok := req.(OfferRequest)
	if !ok {
		t.Fatalf("req = %T, want OfferRequest", req)
	}
	if offer.To != "peer-a" || offer.SwarmID != "/v.mp4" {
		t.Errorf("offer = %+v", offer)
	}
	if string(offer.SDP) != `{"sdp":"v=0","type":"offer"}` {
		t.Errorf("SDP = %s", offer.SDP)
	}
}

func TestParseRequest_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"response opcode", MustEncode(Identity, IdentityMessage{ID: "x"}), domain.ErrUnknownOpcode},
		{"unknown opcode", []byte{0x7f, 0x7f}, domain.ErrUnknownOpcode},
		{"join without payload", MustEncode(JoinSwarm, nil), domain.ErrMissingField},
		{"join without filePath", MustEncode(JoinSwarm, map[string]string{"x": "y"}), domain.ErrMissingField},
		{"offer without to", MustEncode(LocalPeerOffer, map[string]string{"sdp": "v=0"}), domain.ErrMissingField},
		{"candidate wrong type", MustEncode(LocalICECandidate, map[string]int{"to": 3}), domain.ErrMalformedPayload},
		{"short", []byte{0x00}, domain.ErrShortFrame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest(tt.frame)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if req != nil {
				t.Errorf("req = %+v, want nil", req)
			}
		})
	}
}
