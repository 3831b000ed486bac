package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pheromesh/pheromesh/gossip"
)

func TestChannelNetwork_SendRecv(t *testing.T) {
	network := NewChannelNetwork(16)
	defer network.Close()

	a, err := network.Transport(0)
	require.NoError(t, err)
	b, err := network.Transport(1)
	require.NoError(t, err)

	assert.Equal(t, gossip.NodeID(0), a.LocalID())

	sent := &gossip.Message{Sender: 0, Kind: gossip.KindDelta}
	require.NoError(t, a.Send(1, sent))

	received, err := b.Recv(time.Second)
	require.NoError(t, err)
	assert.Equal(t, sent, received)
}

func TestChannelNetwork_Register(t *testing.T) {
	network := NewChannelNetwork(16)
	defer network.Close()

	_, err := network.Transport(0)
	require.NoError(t, err)

	// Duplicate registration is rejected.
	_, err = network.Transport(0)
	assert.Error(t, err)
}

func TestChannelNetwork_UnknownPeer(t *testing.T) {
	network := NewChannelNetwork(16)
	defer network.Close()

	a, err := network.Transport(0)
	require.NoError(t, err)

	assert.Error(t, a.Send(99, &gossip.Message{}))
}

func TestChannelNetwork_RecvTimeout(t *testing.T) {
	network := NewChannelNetwork(16)
	defer network.Close()

	a, err := network.Transport(0)
	require.NoError(t, err)

	// Non-blocking poll.
	_, err = a.Recv(0)
	assert.ErrorIs(t, err, gossip.ErrTimeout)

	_, err = a.Recv(time.Millisecond)
	assert.ErrorIs(t, err, gossip.ErrTimeout)
}

func TestChannelNetwork_DropOnFull(t *testing.T) {
	network := NewChannelNetwork(1)
	defer network.Close()

	a, err := network.Transport(0)
	require.NoError(t, err)
	b, err := network.Transport(1)
	require.NoError(t, err)

	// The second send exceeds the buffer and is dropped, not blocked on.
	require.NoError(t, a.Send(1, &gossip.Message{Round: 1}))
	require.NoError(t, a.Send(1, &gossip.Message{Round: 2}))

	received, err := b.Recv(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), received.Round)

	_, err = b.Recv(0)
	assert.ErrorIs(t, err, gossip.ErrTimeout)
}

func TestChannelNetwork_Close(t *testing.T) {
	network := NewChannelNetwork(16)

	a, err := network.Transport(0)
	require.NoError(t, err)

	require.NoError(t, network.Close())

	_, err = a.Recv(time.Second)
	assert.ErrorIs(t, err, gossip.ErrClosed)
	assert.ErrorIs(t, a.Send(0, &gossip.Message{}), gossip.ErrClosed)

	_, err = network.Transport(1)
	assert.ErrorIs(t, err, gossip.ErrClosed)
}
