package streamcrypto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// TypeCiphertext is the packet type for encrypted stream payloads.
const TypeCiphertext = "ciphertext"

// Packet is one authenticated unit of the streaming wire format, serialized
// as a single NDJSON line. The AAD string is bound into the AEAD
// computation, so reordering, cross-conversation splicing, or sequence
// alteration is detected at decryption.
type Packet struct {
	Type       string `json:"type"`
	Seq        uint64 `json:"seq"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
	AAD        string `json:"aad"`
}

// FormatAAD builds the associated-data string binding a packet to its
// conversation and sequence number.
func FormatAAD(conversationID string, seq uint64) string {
	return fmt.Sprintf("cid=%s;seq=%d", conversationID, seq)
}

// MarshalLine serializes the packet as one newline-terminated JSON line.
func (p *Packet) MarshalLine() ([]byte, error) {
	line, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "error serializing packet")
	}

	return append(line, '\n'), nil
}

// ParseLine parses a single NDJSON line into a Packet.
func ParseLine(line []byte) (*Packet, error) {
	var p Packet
	if err := json.Unmarshal(bytes.TrimSpace(line), &p); err != nil {
		return nil, errors.Wrap(err, "error parsing packet")
	}

	if p.Type != TypeCiphertext {
		return nil, errors.Errorf("unexpected packet type %q", p.Type)
	}

	return &p, nil
}
