package gossip

import (
	"bytes"
	"fmt"

	"github.com/ugorji/go/codec"
)

// supportedVersion is the wire format version. Messages with any other
// version are rejected at decode time.
const supportedVersion uint8 = 0

var msgpackHandle codec.MsgpackHandle

// Encode encodes the message to its compact wire representation: a one byte
// version header followed by the msgpack encoded message.
//
// Returns an error if the encoding exceeds maxSize, so callers never hand
// the network transport a message above its datagram budget.
func Encode(m *Message, maxSize int) ([]byte, error) {
	var buf bytes.Buffer
	_ = buf.WriteByte(supportedVersion)

	enc := codec.NewEncoder(&buf, &msgpackHandle)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	if maxSize > 0 && buf.Len() > maxSize {
		return nil, fmt.Errorf(
			"message exceeds max packet size: %d > %d", buf.Len(), maxSize,
		)
	}
	return buf.Bytes(), nil
}

// Decode decodes a message encoded by Encode. Any malformed or version
// incompatible input returns an error; callers drop such messages silently
// as gossip's redundancy absorbs the loss.
func Decode(b []byte) (*Message, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("message too small: %d", len(b))
	}
	if b[0] != supportedVersion {
		return nil, fmt.Errorf("unsupported version: %d", b[0])
	}

	var m Message
	dec := codec.NewDecoder(bytes.NewReader(b[1:]), &msgpackHandle)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &m, nil
}
