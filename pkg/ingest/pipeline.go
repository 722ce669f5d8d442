// Package ingest drains inbound mesh packets from a bounded queue and routes
// them by port type. A single consumer goroutine does all the work, which
// keeps packet ordering and backpressure explicit.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"
	pb "github.com/kabili207/meshtastic-go/core/proto"

	"github.com/firefly-mesh/firefly/pkg/dedup"
	"github.com/firefly-mesh/firefly/pkg/mesh"
	"github.com/firefly-mesh/firefly/pkg/notify"
	"github.com/firefly-mesh/firefly/pkg/store"
)

const (
	// DefaultQueueSize bounds the packet queue between the transport's read
	// loop and the consumer.
	DefaultQueueSize = 256
	// senderNameTTL bounds how long a resolved display name is served from
	// cache before the node table is consulted again.
	senderNameTTL = 15 * time.Minute
)

// Dedup classes. Separate namespaces so a text packet and an announcement
// with the same id never shadow each other.
const (
	classText     = "text"
	classNodeInfo = "nodeinfo"
)

// SessionState is the slice of the session manager the pipeline needs: which
// node the transport speaks as, and the ability to answer announcement
// requests.
type SessionState interface {
	LocalNode() (uint32, bool)
	Announce(hopLimit uint32) error
}

// Pipeline consumes decoded packets and feeds messages and node records to
// storage and live notification, scoped by the channel number each packet
// carries. Attribution never depends on which channel the manager thinks is
// active, so a packet arriving mid-switch still lands in the right place.
type Pipeline struct {
	queue         chan mesh.Packet
	cache         *dedup.Cache
	names         *ttlcache.Cache[string, string]
	messages      store.MessageStore
	nodes         store.NodeStore
	notifier      *notify.Notifier
	sessions      SessionState
	announceDelay time.Duration
}

// Options configures a Pipeline. Zero values select the defaults.
type Options struct {
	QueueSize     int
	DedupCapacity int
	AnnounceDelay time.Duration
}

// New creates a pipeline. Run must be called for packets to be processed.
func New(messages store.MessageStore, nodes store.NodeStore, notifier *notify.Notifier, sessions SessionState, opts Options) *Pipeline {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.AnnounceDelay <= 0 {
		opts.AnnounceDelay = 500 * time.Millisecond
	}

	names := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](senderNameTTL),
	)
	go names.Start()

	return &Pipeline{
		queue:         make(chan mesh.Packet, opts.QueueSize),
		cache:         dedup.New(opts.DedupCapacity),
		names:         names,
		messages:      messages,
		nodes:         nodes,
		notifier:      notifier,
		sessions:      sessions,
		announceDelay: opts.AnnounceDelay,
	}
}

// Enqueue hands a packet to the consumer. Called from the transport's read
// loop; when the queue is full the packet is dropped rather than stalling
// the socket.
func (p *Pipeline) Enqueue(pkt mesh.Packet) {
	select {
	case p.queue <- pkt:
	default:
		slog.Warn("packet queue full, dropping packet", "from", pkt.From, "id", pkt.ID)
	}
}

// Run drains the queue until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt := <-p.queue:
			p.handlePacket(pkt)
		}
	}
}

// handlePacket classifies one packet and dispatches it.
func (p *Pipeline) handlePacket(pkt mesh.Packet) {
	// Our own packets are mirrored locally at send time; hearing them back
	// from the mesh must not ingest them twice.
	if local, ok := p.sessions.LocalNode(); ok && pkt.From == local {
		slog.Debug("dropping loopback packet", "from", pkt.From, "id", pkt.ID)
		return
	}

	switch pkt.PortNum {
	case pb.PortNum_TEXT_MESSAGE_APP:
		p.handleText(pkt)
	case pb.PortNum_NODEINFO_APP:
		p.handleNodeInfo(pkt)
	default:
		slog.Debug("ignoring packet", "port", pkt.PortNum.String(), "from", pkt.From)
	}
}
