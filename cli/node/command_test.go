package node

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pheromesh/pheromesh/gossip"
)

func TestViewMembers(t *testing.T) {
	peers := map[uint32]string{
		5: "10.26.104.14:7661",
		1: "10.26.104.75:7661",
		3: "10.26.104.32:7661",
		2: "10.26.104.90:7661",
	}

	// Map iteration order varies; the member list must not.
	want := []gossip.NodeID{1, 2, 3, 5}
	for i := 0; i < 10; i++ {
		assert.Equal(t, want, viewMembers(peers))
	}
}
