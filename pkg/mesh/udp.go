package mesh

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/kabili207/meshtastic-go/core/crypto"
	pb "github.com/kabili207/meshtastic-go/core/proto"
	"google.golang.org/protobuf/proto"
)

const udpReadBufferSize = 2048

var _ Transport = (*UDPTransport)(nil)

// UDPTransport is the reference Transport over a shared UDP multicast group.
// Datagrams are serialized MeshPacket protos with XOR-encrypted payloads,
// matching what the mesh firmware emits on its multicast port.
type UDPTransport struct {
	group   string
	port    int
	handler Handler

	mu       sync.Mutex
	running  bool
	cfg      StartConfig
	conn     *net.UDPConn
	groupUDP *net.UDPAddr
	done     chan struct{}

	packetID atomic.Uint32
}

// NewUDPTransport creates a transport bound to the given multicast group and
// port. Inbound packets are delivered to handler from the read loop.
func NewUDPTransport(group string, port int, handler Handler) (*UDPTransport, error) {
	t := &UDPTransport{
		group:   group,
		port:    port,
		handler: handler,
	}
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("seed packet id counter: %w", err)
	}
	t.packetID.Store(binary.BigEndian.Uint32(seed[:]))
	return t, nil
}

func (t *UDPTransport) Start(cfg StartConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("transport already running")
	}
	if len(cfg.Key) == 0 {
		return fmt.Errorf("transport requires a channel key")
	}

	groupAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", t.group, t.port))
	if err != nil {
		return fmt.Errorf("resolve multicast group: %w", err)
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, groupAddr)
	if err != nil {
		return fmt.Errorf("join multicast group: %w", err)
	}
	if err := conn.SetReadBuffer(udpReadBufferSize * 64); err != nil {
		slog.Debug("could not grow udp read buffer", "error", err)
	}

	t.cfg = cfg
	t.conn = conn
	t.groupUDP = groupAddr
	t.done = make(chan struct{})
	t.running = true

	go t.readLoop(conn, cfg.Key, t.done)

	slog.Info("mesh transport started",
		"group", t.group, "port", t.port,
		"node", cfg.NodeID, "channel", cfg.Channel)
	return nil
}

func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	t.running = false
	err := t.conn.Close()
	<-t.done
	t.conn = nil
	slog.Info("mesh transport stopped", "channel", t.cfg.Channel)
	return err
}

func (t *UDPTransport) readLoop(conn *net.UDPConn, key []byte, done chan struct{}) {
	defer close(done)
	buf := make([]byte, udpReadBufferSize)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			// Closed during Stop, or the socket died. Either way the loop is over.
			slog.Debug("udp read loop exiting", "error", err)
			return
		}

		var pkt pb.MeshPacket
		if err := proto.Unmarshal(buf[:n], &pkt); err != nil {
			slog.Debug("dropping non-mesh datagram", "remote", addr, "bytes", n)
			continue
		}

		data, err := crypto.TryDecode(&pkt, key)
		if err != nil || data == nil {
			// Wrong channel key or garbled payload. Not ours to decode.
			continue
		}

		t.handler(Packet{
			From:         pkt.From,
			To:           pkt.To,
			ID:           pkt.Id,
			Channel:      pkt.Channel,
			PortNum:      data.Portnum,
			Payload:      data.Payload,
			WantResponse: data.WantResponse,
			HopLimit:     pkt.HopLimit,
			HopStart:     pkt.HopStart,
			RxSnr:        pkt.RxSnr,
			RxRssi:       pkt.RxRssi,
		})
	}
}

// SendText broadcasts a text message on the loaded channel.
func (t *UDPTransport) SendText(content string, hopLimit uint32) error {
	return t.send(&pb.Data{
		Portnum: pb.PortNum_TEXT_MESSAGE_APP,
		Payload: []byte(content),
	}, hopLimit)
}

// SendNodeInfo broadcasts the loaded identity so peers can learn our name.
func (t *UDPTransport) SendNodeInfo(hopLimit uint32) error {
	t.mu.Lock()
	cfg := t.cfg
	running := t.running
	t.mu.Unlock()
	if !running {
		return fmt.Errorf("transport not running")
	}

	user := &pb.User{
		Id:        cfg.NodeID,
		LongName:  cfg.LongName,
		ShortName: cfg.ShortName,
	}
	rawUser, err := proto.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal node info: %w", err)
	}
	return t.send(&pb.Data{
		Portnum: pb.PortNum_NODEINFO_APP,
		Payload: rawUser,
	}, hopLimit)
}

func (t *UDPTransport) send(data *pb.Data, hopLimit uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return fmt.Errorf("transport not running")
	}
	if hopLimit > 7 {
		hopLimit = 7
	}

	rawData, err := proto.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	packetID := t.nextPacketID()
	encrypted, err := crypto.XOR(rawData, t.cfg.Key, packetID, t.cfg.NodeNum)
	if err != nil {
		return fmt.Errorf("encrypt payload: %w", err)
	}

	pkt := pb.MeshPacket{
		From:     t.cfg.NodeNum,
		To:       BroadcastNum,
		Id:       packetID,
		Channel:  t.cfg.Channel,
		HopLimit: hopLimit,
		HopStart: hopLimit,
		Priority: pb.MeshPacket_DEFAULT,
		Delayed:  pb.MeshPacket_NO_DELAY,
		PayloadVariant: &pb.MeshPacket_Encrypted{
			Encrypted: encrypted,
		},
	}
	raw, err := proto.Marshal(&pkt)
	if err != nil {
		return fmt.Errorf("marshal packet: %w", err)
	}

	if _, err := t.conn.WriteToUDP(raw, t.groupUDP); err != nil {
		return fmt.Errorf("send packet: %w", err)
	}
	return nil
}

func (t *UDPTransport) nextPacketID() uint32 {
	for {
		if id := t.packetID.Add(1); id != 0 {
			return id
		}
	}
}
