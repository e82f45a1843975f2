// Package codec implements transparent compression of cached result
// payloads. Every encoded blob carries a magic prefix and a single
// version byte so a future format change can be rejected cleanly
// instead of silently misread.
package codec

import (
	"bytes"
	"strconv"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/arborcache/engine/internal/cacheerr"
)

// magic identifies an arborcache-encoded payload.
var magic = [4]byte{'A', 'C', 'C', 'Z'}

// version1 is the only codec version currently produced.
const version1 = 0x01

// headerLen is len(magic) + 1 version byte.
const headerLen = 5

// Codec compresses and decompresses CacheEntry payloads with zstd.
//
// A single Codec owns a reusable encoder/decoder pair; it is safe for
// concurrent use.
type Codec struct {
	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// New creates a Codec at SpeedBetterCompression, which balances ratio
// and speed for the JSON-shaped results this engine caches.
func New() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, cacheerr.Wrap(cacheerr.CodeCodecVersionMismatch, err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, cacheerr.Wrap(cacheerr.CodeCodecVersionMismatch, err)
	}
	return &Codec{encoder: enc, decoder: dec}, nil
}

// Encode compresses data and prefixes it with the magic header and
// version byte.
func (c *Codec) Encode(data []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]byte, 0, headerLen+len(data)/2)
	out = append(out, magic[:]...)
	out = append(out, version1)
	return c.encoder.EncodeAll(data, out)
}

// Decode validates the header and decompresses the payload, returning
// CodecVersionMismatch for an unrecognized header and CorruptedPayload
// when the zstd stream itself is invalid.
func (c *Codec) Decode(encoded []byte) ([]byte, error) {
	if len(encoded) < headerLen || !bytes.Equal(encoded[:4], magic[:]) {
		return nil, cacheerr.CodecVersionMismatch("payload missing arborcache codec header", nil)
	}
	if encoded[4] != version1 {
		return nil, cacheerr.CodecVersionMismatch("unsupported codec version byte", nil).
			WithDetail("version", strconv.Itoa(int(encoded[4])))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	decoded, err := c.decoder.DecodeAll(encoded[headerLen:], nil)
	if err != nil {
		return nil, cacheerr.CorruptedPayload("payload failed to decompress", err)
	}
	return decoded, nil
}

// Close releases the encoder/decoder's background resources.
func (c *Codec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoder.Close()
	c.decoder.Close()
}
