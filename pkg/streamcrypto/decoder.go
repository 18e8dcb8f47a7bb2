package streamcrypto

import (
	"crypto/cipher"
	"encoding/base64"

	"github.com/pkg/errors"
)

// ErrPacketRejected indicates a packet failed authentication. The protocol
// carries no reason code: tampering, a wrong or rotated key, and
// sequence/AAD mismatch are indistinguishable to the receiver.
var ErrPacketRejected = errors.New("packet rejected")

// Decoder authenticates and decrypts one session's packet stream. Packets
// must be presented in strictly increasing seq order; the protocol provides
// no resequencing, so the transport must preserve order.
type Decoder struct {
	conversationID string
	aead           cipher.AEAD

	lastSeq uint64
}

// NewDecoder returns a Decoder for one stream session of conversationID
// using the derived per-conversation cipher.
func NewDecoder(conversationID string, aeadCipher cipher.AEAD) *Decoder {
	return &Decoder{
		conversationID: conversationID,
		aead:           aeadCipher,
	}
}

// DecodeLine parses one NDJSON line and returns its authenticated plaintext.
func (d *Decoder) DecodeLine(line []byte) ([]byte, error) {
	p, err := ParseLine(line)
	if err != nil {
		return nil, err
	}

	return d.DecodePacket(p)
}

// DecodePacket authenticates and decrypts a single packet. The AAD is
// recomputed from the conversation ID and the packet's own seq; a packet
// whose aad field disagrees with the recomputation, or whose iv,
// ciphertext, or seq were altered, is rejected outright.
func (d *Decoder) DecodePacket(p *Packet) ([]byte, error) {
	if p.Seq != d.lastSeq+1 {
		return nil, errors.WithMessagef(ErrPacketRejected, "seq %d does not follow %d", p.Seq, d.lastSeq)
	}

	aadStr := FormatAAD(d.conversationID, p.Seq)
	if p.AAD != aadStr {
		return nil, errors.WithMessage(ErrPacketRejected, "aad mismatch")
	}

	iv, err := base64.StdEncoding.DecodeString(p.IV)
	if err != nil {
		return nil, errors.WithMessage(ErrPacketRejected, "invalid iv encoding")
	}

	if len(iv) != d.aead.NonceSize() {
		return nil, errors.WithMessage(ErrPacketRejected, "invalid iv length")
	}

	ct, err := base64.StdEncoding.DecodeString(p.Ciphertext)
	if err != nil {
		return nil, errors.WithMessage(ErrPacketRejected, "invalid ciphertext encoding")
	}

	plaintext, err := d.aead.Open(nil, iv, ct, []byte(aadStr))
	if err != nil {
		return nil, errors.WithMessage(ErrPacketRejected, "authentication failed")
	}

	d.lastSeq = p.Seq

	return plaintext, nil
}
