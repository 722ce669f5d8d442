package ingest

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/firefly-mesh/firefly/pkg/mesh"
	"github.com/firefly-mesh/firefly/pkg/models"
	"github.com/firefly-mesh/firefly/pkg/nodeinfo"
	"github.com/firefly-mesh/firefly/pkg/notify"
)

// handleText deduplicates a text packet, resolves the sender's display name,
// and forwards the message to storage and live subscribers of its channel.
func (p *Pipeline) handleText(pkt mesh.Packet) {
	if pkt.ID == 0 {
		// No packet id means no dedup key; double-processing is worse than
		// dropping, so these are rejected.
		slog.Debug("dropping text packet without id", "from", pkt.From)
		return
	}
	if p.cache.Seen(classText, pkt.ID) {
		return
	}

	packetID := pkt.ID
	senderNum := pkt.From
	hopLimit := pkt.HopLimit
	hopStart := pkt.HopStart
	rxSnr := pkt.RxSnr
	rxRssi := pkt.RxRssi

	msg := &models.Message{
		MessageID:     uuid.NewString(),
		PacketID:      &packetID,
		Channel:       pkt.Channel,
		SenderNum:     &senderNum,
		SenderDisplay: p.resolveSender(pkt.Channel, pkt.From),
		Content:       string(pkt.Payload),
		Timestamp:     time.Now(),
		Direction:     models.DirectionReceived,
		HopLimit:      &hopLimit,
		HopStart:      &hopStart,
		RxSnr:         &rxSnr,
		RxRssi:        &rxRssi,
	}

	if err := p.messages.Store(msg); err != nil {
		slog.Error("failed to store message", "channel", pkt.Channel, "error", err)
	}
	p.notifier.Publish(pkt.Channel, notify.KindMessage, msg)
	slog.Info("text message received",
		"channel", pkt.Channel, "from", msg.SenderDisplay, "id", pkt.ID)
}

// handleNodeInfo parses an identity announcement, merges it into the node
// table, and publishes what changed. When the announcement asks us for a
// reply and is addressed to the local node, one is dispatched after a short
// settle delay.
func (p *Pipeline) handleNodeInfo(pkt mesh.Packet) {
	if pkt.ID == 0 {
		slog.Debug("dropping announcement without id", "from", pkt.From)
		return
	}
	if p.cache.Seen(classNodeInfo, pkt.ID) {
		return
	}

	identity := nodeinfo.Parse(pkt.Payload, pkt.From)

	prev, err := p.nodes.Get(pkt.Channel, pkt.From)
	if err != nil {
		slog.Error("failed to load node", "channel", pkt.Channel, "node", pkt.From, "error", err)
	}
	kind, changes := nodeinfo.Diff(prev, identity)

	node := &models.Node{
		Channel:   pkt.Channel,
		NodeNum:   pkt.From,
		NodeID:    identity.NodeID,
		LongName:  identity.LongName,
		ShortName: identity.ShortName,
		Mac:       identity.Mac,
		HwModel:   identity.HwModel,
		Role:      identity.Role,
		PublicKey: identity.PublicKey,
	}
	if err := p.nodes.Upsert(node); err != nil {
		slog.Error("failed to store node", "channel", pkt.Channel, "node", pkt.From, "error", err)
	}
	p.names.Set(nameKey(pkt.Channel, pkt.From), node.DisplayName(), senderNameTTL)

	switch kind {
	case nodeinfo.EventNew:
		slog.Info("node discovered", "channel", pkt.Channel, "node", identity.String())
	case nodeinfo.EventUpdated:
		for _, change := range changes {
			slog.Info("node changed", "channel", pkt.Channel, "node", node.SafeNodeID(), "change", change.String())
		}
	}
	p.notifier.Publish(pkt.Channel, string(kind), node)

	if pkt.WantResponse {
		if local, ok := p.sessions.LocalNode(); ok && pkt.To == local {
			delay := p.announceDelay
			go func() {
				time.Sleep(delay)
				if err := p.sessions.Announce(models.HopLimitDefault); err != nil {
					slog.Debug("announcement reply skipped", "error", err)
				}
			}()
		}
	}
}

// resolveSender finds the display name for a sender, consulting the name
// cache first, then the node table for the packet's channel, and finally
// falling back to the hex-formatted node id.
func (p *Pipeline) resolveSender(channel, from uint32) string {
	key := nameKey(channel, from)
	if item := p.names.Get(key); item != nil {
		return item.Value()
	}

	if node, err := p.nodes.Get(channel, from); err == nil && node != nil {
		name := node.DisplayName()
		p.names.Set(key, name, senderNameTTL)
		return name
	}

	return models.FormatNodeNum(from)
}

func nameKey(channel, from uint32) string {
	return fmt.Sprintf("%d:%d", channel, from)
}
