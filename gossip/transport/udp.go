package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pheromesh/pheromesh/gossip"
	"github.com/pheromesh/pheromesh/pkg/log"
	"go.uber.org/zap"
)

// UDPTransport gossips over UDP datagrams. Each message is encoded into a
// single datagram, so sends never block on the peer and loss surfaces only
// as missed deliveries, which the protocol already tolerates.
type UDPTransport struct {
	id gossip.NodeID

	conn *net.UDPConn

	// peers maps node IDs to resolved addresses. Immutable after
	// construction.
	peers map[gossip.NodeID]*net.UDPAddr

	maxPacketSize int

	readBuf []byte

	metrics *gossip.Metrics

	logger log.Logger
}

// NewUDPTransport binds bindAddr and resolves the peer addresses up front.
// An unresolvable peer fails construction rather than the first send.
func NewUDPTransport(
	id gossip.NodeID,
	bindAddr string,
	peers map[gossip.NodeID]string,
	maxPacketSize int,
	metrics *gossip.Metrics,
	logger log.Logger,
) (*UDPTransport, error) {
	laddr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind addr: %s: %w", bindAddr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen: %s: %w", bindAddr, err)
	}

	resolved := make(map[gossip.NodeID]*net.UDPAddr, len(peers))
	for peer, addr := range peers {
		raddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("resolve peer addr: %s: %w", addr, err)
		}
		resolved[peer] = raddr
	}

	return &UDPTransport{
		id:            id,
		conn:          conn,
		peers:         resolved,
		maxPacketSize: maxPacketSize,
		readBuf:       make([]byte, maxPacketSize),
		metrics:       metrics,
		logger:        logger.WithSubsystem("transport.udp"),
	}, nil
}

func (t *UDPTransport) Send(peer gossip.NodeID, m *gossip.Message) error {
	addr, ok := t.peers[peer]
	if !ok {
		return fmt.Errorf("unknown peer: %d", peer)
	}

	b, err := gossip.Encode(m, t.maxPacketSize)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if _, err := t.conn.WriteToUDP(b, addr); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Recv reads the next decodable datagram, waiting up to timeout. Corrupt
// datagrams are counted and skipped.
func (t *UDPTransport) Recv(timeout time.Duration) (*gossip.Message, error) {
	deadline := time.Now().Add(timeout)
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	for {
		n, addr, err := t.conn.ReadFromUDP(t.readBuf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, gossip.ErrTimeout
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, gossip.ErrClosed
			}
			return nil, fmt.Errorf("read: %w", err)
		}

		m, err := gossip.Decode(t.readBuf[:n])
		if err != nil {
			if t.metrics != nil {
				t.metrics.DecodeErrors.Inc()
			}
			t.logger.Debug(
				"discarding undecodable datagram",
				zap.Stringer("addr", addr),
				zap.Int("len", n),
				zap.Error(err),
			)
			continue
		}
		return m, nil
	}
}

func (t *UDPTransport) LocalID() gossip.NodeID {
	return t.id
}

// LocalAddr returns the bound address, which may differ from the
// configured bind address when the port was dynamic.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

var _ gossip.Transport = &UDPTransport{}
