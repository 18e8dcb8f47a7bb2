package streamcrypto

import (
	"context"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/suhana-ai/appsecurity"
	"github.com/suhana-ai/appsecurity/internal"
)

// Encoder metrics
var (
	flushTimer    = metrics.GetOrRegisterTimer(fmt.Sprintf("%s.stream.flush", appsecurity.MetricsPrefix), nil)
	packetCounter = metrics.GetOrRegisterCounter(fmt.Sprintf("%s.stream.packets", appsecurity.MetricsPrefix), nil)
)

// Default flush thresholds. Count and size bound worst-case per-packet
// overhead; delay bounds perceived latency for a human reading the stream.
const (
	DefaultMaxTokens = 20
	DefaultMaxBytes  = 2048
	DefaultMaxDelay  = 40 * time.Millisecond
)

// EmitFunc delivers one packet to the transport. Emission is synchronous:
// the encoder does not consume further fragments until the call returns, so
// a caller driving the stream incrementally sees packets as they are
// produced.
type EmitFunc func(ctx context.Context, p *Packet) error

// Encoder turns a sequence of text fragments into authenticated packets
// under adaptive batching. An Encoder is a single stream session: its
// sequence counter starts at zero and is never reused. Encoders are not safe
// for concurrent use; independent sessions share no mutable state.
type Encoder struct {
	conversationID string
	aead           cipher.AEAD

	maxTokens int
	maxBytes  int
	maxDelay  time.Duration

	seq      uint64
	buf      []string
	bufBytes int
}

// EncoderOption is used to configure the flush thresholds of an Encoder.
type EncoderOption func(*Encoder)

// WithMaxTokens sets the buffered fragment count that forces a flush.
func WithMaxTokens(n int) EncoderOption {
	return func(e *Encoder) {
		e.maxTokens = n
	}
}

// WithMaxBytes sets the buffered byte count that forces a flush.
func WithMaxBytes(n int) EncoderOption {
	return func(e *Encoder) {
		e.maxBytes = n
	}
}

// WithMaxDelay sets the elapsed time since the last flush that forces a
// flush.
func WithMaxDelay(d time.Duration) EncoderOption {
	return func(e *Encoder) {
		e.maxDelay = d
	}
}

// NewEncoder returns an Encoder for one stream session of conversationID
// using the derived per-conversation cipher.
func NewEncoder(conversationID string, aeadCipher cipher.AEAD, opts ...EncoderOption) *Encoder {
	e := &Encoder{
		conversationID: conversationID,
		aead:           aeadCipher,
		maxTokens:      DefaultMaxTokens,
		maxBytes:       DefaultMaxBytes,
		maxDelay:       DefaultMaxDelay,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Encode consumes fragments from tokens until the channel closes, emitting a
// packet whenever the count, size, or time trigger fires and a final packet
// for any remainder. An empty flush is a no-op: empty packets are never
// emitted. Aborting via ctx is safe at any point; packets are self-contained
// and no partially encrypted state crosses fragment boundaries.
func (e *Encoder) Encode(ctx context.Context, tokens <-chan string, emit EmitFunc) error {
	timer := time.NewTimer(e.maxDelay)
	defer timer.Stop()

	lastFlush := time.Now()

	flush := func() error {
		if len(e.buf) == 0 {
			return nil
		}

		p, err := e.seal()
		if err != nil {
			return err
		}

		if err := emit(ctx, p); err != nil {
			return err
		}

		lastFlush = time.Now()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(e.maxDelay)

		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case tok, ok := <-tokens:
			if !ok {
				// Source exhausted: final unconditional flush.
				return flush()
			}

			e.buf = append(e.buf, tok)
			e.bufBytes += len(tok)

			if len(e.buf) >= e.maxTokens || e.bufBytes >= e.maxBytes || time.Since(lastFlush) >= e.maxDelay {
				if err := flush(); err != nil {
					return err
				}
			}

		case <-timer.C:
			if err := flush(); err != nil {
				return err
			}

			timer.Reset(e.maxDelay)
		}
	}
}

// seal encrypts the buffered fragments into one packet with a fresh random
// IV. IV reuse under the same key breaks the AEAD, so the IV is drawn from
// the CSPRNG for every packet without exception.
func (e *Encoder) seal() (*Packet, error) {
	defer flushTimer.UpdateSince(time.Now())

	payload := []byte(strings.Join(e.buf, ""))

	iv := internal.GetRandBytes(e.aead.NonceSize())

	e.seq++
	aadStr := FormatAAD(e.conversationID, e.seq)

	ct := e.aead.Seal(nil, iv, payload, []byte(aadStr))

	e.buf = e.buf[:0]
	e.bufBytes = 0

	packetCounter.Inc(1)

	return &Packet{
		Type:       TypeCiphertext,
		Seq:        e.seq,
		IV:         base64.StdEncoding.EncodeToString(iv),
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		AAD:        aadStr,
	}, nil
}
