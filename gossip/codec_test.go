package gossip

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	m := &Message{
		Sender:   7,
		Round:    42,
		Class:    ClassPriority,
		Kind:     KindDelta,
		UpdateID: uuid.New(),
		Origin:   123456789,
		Payload:  []byte("delta"),
	}

	b, err := Encode(m, 1400)
	require.NoError(t, err)

	decoded, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestCodec_MaxSize(t *testing.T) {
	m := &Message{
		Kind:    KindState,
		Payload: make([]byte, 2048),
	}

	_, err := Encode(m, 1400)
	assert.Error(t, err)

	// No bound when maxSize is zero.
	_, err = Encode(m, 0)
	assert.NoError(t, err)
}

func TestCodec_Malformed(t *testing.T) {
	t.Run("too small", func(t *testing.T) {
		_, err := Decode(nil)
		assert.Error(t, err)

		_, err = Decode([]byte{supportedVersion})
		assert.Error(t, err)
	})

	t.Run("unsupported version", func(t *testing.T) {
		b, err := Encode(&Message{Kind: KindDelta}, 0)
		require.NoError(t, err)

		b[0] = supportedVersion + 1
		_, err = Decode(b)
		assert.Error(t, err)
	})

	t.Run("corrupt body", func(t *testing.T) {
		_, err := Decode([]byte{supportedVersion, 0xc1, 0xc1, 0xc1})
		assert.Error(t, err)
	})
}
