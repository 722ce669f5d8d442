package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	pb "github.com/kabili207/meshtastic-go/core/proto"
	"google.golang.org/protobuf/proto"

	"github.com/firefly-mesh/firefly/pkg/mesh"
	"github.com/firefly-mesh/firefly/pkg/models"
	"github.com/firefly-mesh/firefly/pkg/nodeinfo"
	"github.com/firefly-mesh/firefly/pkg/notify"
)

type memMessages struct {
	mu     sync.Mutex
	stored []*models.Message
}

func (m *memMessages) Store(msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = append(m.stored, msg)
	return nil
}

func (m *memMessages) GetForChannel(channel uint32, limit int) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Message
	for _, msg := range m.stored {
		if msg.Channel == channel {
			out = append(out, msg)
		}
	}
	return out, nil
}

type memNodes struct {
	mu    sync.Mutex
	nodes map[string]*models.Node
}

func newMemNodes() *memNodes {
	return &memNodes{nodes: make(map[string]*models.Node)}
}

func (m *memNodes) key(channel, nodeNum uint32) string {
	return nameKey(channel, nodeNum)
}

func (m *memNodes) Upsert(node *models.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(node.Channel, node.NodeNum)
	if prev, ok := m.nodes[k]; ok {
		merged := *prev
		if node.NodeID != "" {
			merged.NodeID = node.NodeID
		}
		if node.LongName != "" {
			merged.LongName = node.LongName
		}
		if node.ShortName != "" {
			merged.ShortName = node.ShortName
		}
		if node.HwModel != "" {
			merged.HwModel = node.HwModel
		}
		if node.Role != "" {
			merged.Role = node.Role
		}
		merged.PacketCount++
		m.nodes[k] = &merged
		return nil
	}
	cp := *node
	cp.PacketCount = 1
	m.nodes[k] = &cp
	return nil
}

func (m *memNodes) Get(channel, nodeNum uint32) (*models.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[m.key(channel, nodeNum)]; ok {
		cp := *n
		return &cp, nil
	}
	return nil, nil
}

func (m *memNodes) GetForChannel(channel uint32) ([]*models.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Node
	for _, n := range m.nodes {
		if n.Channel == channel {
			out = append(out, n)
		}
	}
	return out, nil
}

type stubSession struct {
	mu        sync.Mutex
	local     uint32
	running   bool
	announces int
}

func (s *stubSession) LocalNode() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local, s.running
}

func (s *stubSession) Announce(hopLimit uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announces++
	return nil
}

func (s *stubSession) announceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.announces
}

func newTestPipeline() (*Pipeline, *memMessages, *memNodes, *stubSession) {
	messages := &memMessages{}
	nodes := newMemNodes()
	sessions := &stubSession{local: 0xdeadbeef, running: true}
	p := New(messages, nodes, notify.New(), sessions, Options{AnnounceDelay: time.Millisecond})
	return p, messages, nodes, sessions
}

func textPacket(channel, from, id uint32, content string) mesh.Packet {
	return mesh.Packet{
		From:     from,
		To:       mesh.BroadcastNum,
		ID:       id,
		Channel:  channel,
		PortNum:  pb.PortNum_TEXT_MESSAGE_APP,
		Payload:  []byte(content),
		HopLimit: 3,
		HopStart: 3,
	}
}

func TestTextMessageStoredOnce(t *testing.T) {
	p, messages, _, _ := newTestPipeline()

	pkt := textPacket(77, 99, 42, "hello-back")
	p.handlePacket(pkt)
	// Same packet heard again, e.g. rebroadcast by a router node.
	p.handlePacket(pkt)

	stored, _ := messages.GetForChannel(77, 10)
	if len(stored) != 1 {
		t.Fatalf("stored %d messages, want exactly 1", len(stored))
	}
	msg := stored[0]
	if msg.Direction != models.DirectionReceived {
		t.Errorf("direction = %q, want received", msg.Direction)
	}
	if msg.Content != "hello-back" {
		t.Errorf("content = %q", msg.Content)
	}
	if msg.SenderNum == nil || *msg.SenderNum != 99 {
		t.Errorf("sender num = %v, want 99", msg.SenderNum)
	}
	if msg.SenderDisplay != "!00000063" {
		t.Errorf("sender display = %q, want hex fallback", msg.SenderDisplay)
	}
}

func TestLoopbackPacketDropped(t *testing.T) {
	p, messages, _, _ := newTestPipeline()

	p.handlePacket(textPacket(77, 0xdeadbeef, 7, "echo of our own send"))

	if stored, _ := messages.GetForChannel(77, 10); len(stored) != 0 {
		t.Errorf("loopback packet reached storage: %+v", stored)
	}
}

func TestPacketWithoutIDDropped(t *testing.T) {
	p, messages, _, _ := newTestPipeline()

	p.handlePacket(textPacket(77, 99, 0, "no id"))

	if stored, _ := messages.GetForChannel(77, 10); len(stored) != 0 {
		t.Error("undeduplicatable packet was processed")
	}
}

func TestUnknownPortIgnored(t *testing.T) {
	p, messages, _, _ := newTestPipeline()

	pkt := textPacket(77, 99, 12, "position bytes")
	pkt.PortNum = pb.PortNum_POSITION_APP
	p.handlePacket(pkt)

	if stored, _ := messages.GetForChannel(77, 10); len(stored) != 0 {
		t.Error("non-text packet was stored as a message")
	}
}

func TestSenderNameResolvedFromNodeTable(t *testing.T) {
	p, messages, nodes, _ := newTestPipeline()

	nodes.Upsert(&models.Node{Channel: 77, NodeNum: 99, LongName: "Summit Relay"})

	p.handlePacket(textPacket(77, 99, 5, "hi"))

	stored, _ := messages.GetForChannel(77, 10)
	if len(stored) != 1 || stored[0].SenderDisplay != "Summit Relay" {
		t.Errorf("sender display = %v, want Summit Relay", stored)
	}
}

func TestNameResolutionScopedByChannel(t *testing.T) {
	p, messages, nodes, _ := newTestPipeline()

	// Same node number known under a different channel must not leak in.
	nodes.Upsert(&models.Node{Channel: 12, NodeNum: 99, LongName: "Other Channel Node"})

	p.handlePacket(textPacket(77, 99, 5, "hi"))

	stored, _ := messages.GetForChannel(77, 10)
	if len(stored) != 1 || stored[0].SenderDisplay != "!00000063" {
		t.Errorf("sender display = %v, want hex fallback", stored)
	}
}

func nodeInfoPacket(t *testing.T, channel, from, id uint32, user *pb.User) mesh.Packet {
	t.Helper()
	payload, err := proto.Marshal(user)
	if err != nil {
		t.Fatalf("marshal user: %v", err)
	}
	return mesh.Packet{
		From:    from,
		To:      mesh.BroadcastNum,
		ID:      id,
		Channel: channel,
		PortNum: pb.PortNum_NODEINFO_APP,
		Payload: payload,
	}
}

func TestNodeInfoCreatesAndUpdatesNode(t *testing.T) {
	p, _, nodes, _ := newTestPipeline()
	notifier := notify.New()
	p.notifier = notifier
	sub := notifier.Subscribe(77)

	p.handlePacket(nodeInfoPacket(t, 77, 300, 1, &pb.User{
		Id: "!0000012c", LongName: "First Name", ShortName: "FST",
	}))

	node, _ := nodes.Get(77, 300)
	if node == nil || node.LongName != "First Name" {
		t.Fatalf("node not stored: %+v", node)
	}

	ev := <-sub
	if ev.Kind != string(nodeinfo.EventNew) {
		t.Errorf("first announcement kind = %q, want %q", ev.Kind, nodeinfo.EventNew)
	}

	// Renamed node announces again with a fresh packet id.
	p.handlePacket(nodeInfoPacket(t, 77, 300, 2, &pb.User{
		Id: "!0000012c", LongName: "Second Name", ShortName: "SND",
	}))

	node, _ = nodes.Get(77, 300)
	if node.LongName != "Second Name" {
		t.Errorf("node not updated: %+v", node)
	}
	ev = <-sub
	if ev.Kind != string(nodeinfo.EventUpdated) {
		t.Errorf("second announcement kind = %q, want %q", ev.Kind, nodeinfo.EventUpdated)
	}

	// Identical announcement again: stored (packet count), published as seen.
	p.handlePacket(nodeInfoPacket(t, 77, 300, 3, &pb.User{
		Id: "!0000012c", LongName: "Second Name", ShortName: "SND",
	}))
	ev = <-sub
	if ev.Kind != string(nodeinfo.EventSeen) {
		t.Errorf("third announcement kind = %q, want %q", ev.Kind, nodeinfo.EventSeen)
	}
}

func TestNodeInfoDuplicateSuppressed(t *testing.T) {
	p, _, nodes, _ := newTestPipeline()

	pkt := nodeInfoPacket(t, 77, 300, 9, &pb.User{Id: "!0000012c", LongName: "N"})
	p.handlePacket(pkt)
	p.handlePacket(pkt)

	node, _ := nodes.Get(77, 300)
	if node.PacketCount != 1 {
		t.Errorf("packet count = %d, want 1 (duplicate suppressed)", node.PacketCount)
	}
}

func TestAnnouncementReplyWhenAddressedToUs(t *testing.T) {
	p, _, _, sessions := newTestPipeline()

	pkt := nodeInfoPacket(t, 77, 300, 4, &pb.User{Id: "!0000012c", LongName: "Asker"})
	pkt.To = 0xdeadbeef
	pkt.WantResponse = true
	p.handlePacket(pkt)

	deadline := time.After(time.Second)
	for sessions.announceCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no announcement reply dispatched")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestAnnouncementNotRepliedWhenBroadcast(t *testing.T) {
	p, _, _, sessions := newTestPipeline()

	pkt := nodeInfoPacket(t, 77, 300, 5, &pb.User{Id: "!0000012c", LongName: "Asker"})
	pkt.WantResponse = true // broadcast, not addressed to us
	p.handlePacket(pkt)

	time.Sleep(20 * time.Millisecond)
	if sessions.announceCount() != 0 {
		t.Error("replied to a broadcast announcement request")
	}
}

func TestRunDrainsQueue(t *testing.T) {
	p, messages, _, _ := newTestPipeline()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	for id := uint32(1); id <= 5; id++ {
		p.Enqueue(textPacket(77, 99, id, "queued"))
	}

	deadline := time.After(time.Second)
	for {
		stored, _ := messages.GetForChannel(77, 10)
		if len(stored) == 5 {
			return
		}
		select {
		case <-deadline:
			stored, _ := messages.GetForChannel(77, 10)
			t.Fatalf("consumer processed %d of 5 packets", len(stored))
		case <-time.After(5 * time.Millisecond):
		}
	}
}
